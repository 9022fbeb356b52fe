package native

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaligo/thali/internal/ifaces"
	"github.com/thaligo/thali/internal/registry"
)

type fakeBridge struct {
	events chan ifaces.NativeBridgeEvent
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{events: make(chan ifaces.NativeBridgeEvent, 8)}
}

func (f *fakeBridge) StartAdvertisingAndListening(ctx context.Context, peerIdentifier string, generation uint32) error {
	return nil
}
func (f *fakeBridge) StopAdvertisingAndListening() error               { return nil }
func (f *fakeBridge) Events() <-chan ifaces.NativeBridgeEvent          { return f.events }
func (f *fakeBridge) OpenConnection(ctx context.Context, id string) (uint16, error) {
	return 9000, nil
}

func TestTranslatesPeerAvailabilityEvent(t *testing.T) {
	bridge := newFakeBridge()
	tr := New(bridge, registry.Bluetooth)

	require.NoError(t, tr.Start(context.Background(), "me", 0))
	defer tr.Stop()

	port := uint16(1234)
	bridge.events <- ifaces.PeerAvailabilityEvent{
		PeerIdentifier: "peer-a",
		Generation:     3,
		PeerAvailable:  true,
		PortNumber:     &port,
	}

	select {
	case msg := <-tr.Events():
		raw, ok := msg.(registry.RawPeerEvent)
		require.True(t, ok)
		assert.Equal(t, "peer-a", raw.PeerID)
		assert.Equal(t, uint32(3), raw.Generation)
		assert.True(t, raw.Available)
		require.True(t, raw.PortNumber.Valid)
		assert.Equal(t, uint16(1234), raw.PortNumber.Val)
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
	}
}

func TestTranslatesNetworkChangedEvent(t *testing.T) {
	bridge := newFakeBridge()
	tr := New(bridge, registry.MultiPeerConnectivity)
	require.NoError(t, tr.Start(context.Background(), "me", 0))
	defer tr.Stop()

	bridge.events <- ifaces.NetworkChangedEvent{Wifi: false, Bluetooth: true}

	select {
	case msg := <-tr.Events():
		nc, ok := msg.(registry.NetworkChange)
		require.True(t, ok)
		assert.False(t, nc.Wifi)
		assert.True(t, nc.Bluetooth)
	case <-time.After(time.Second):
		t.Fatal("no event forwarded")
	}
}

func TestOpenConnectionDelegatesToBridge(t *testing.T) {
	bridge := newFakeBridge()
	tr := New(bridge, registry.MultiPeerConnectivity)

	port, err := tr.OpenConnection(context.Background(), "peer-a")
	require.NoError(t, err)
	assert.Equal(t, uint16(9000), port)
}
