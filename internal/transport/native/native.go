// Package native implements the C4 NativeTransport: a thin driver over
// ifaces.NativeBridge that translates bridge events into the Registry's
// RawPeerEvent/NetworkChange/ListenerRecreated/AdvertisingState vocabulary.
package native

import (
	"context"
	"log/slog"

	"github.com/LukaGiorgadze/gonull"

	"github.com/thaligo/thali/internal/ifaces"
	"github.com/thaligo/thali/internal/logging"
	"github.com/thaligo/thali/internal/registry"
)

// Transport bridges one ifaces.NativeBridge into the registry event
// vocabulary. Its output is merged with WifiTransport's via eventbus.Merge
// in Manager, not written to the Registry's inbox directly, so it can be
// fanned in alongside other sources without each source hand-rolling its
// own forwarding loop.
type Transport struct {
	bridge         ifaces.NativeBridge
	connectionType registry.ConnectionType
	out            chan any
	log            *slog.Logger

	cancel context.CancelFunc
}

// New builds a Transport. connectionType names which non-TCP radio bridge
// backs this instance (Bluetooth or MultiPeerConnectivity).
func New(bridge ifaces.NativeBridge, connectionType registry.ConnectionType) *Transport {
	t := &Transport{
		bridge:         bridge,
		connectionType: connectionType,
		out:            make(chan any, 32),
	}
	t.log = logging.For(t)
	return t
}

// Events returns the translated registry-vocabulary event stream. Valid
// only after a successful Start.
func (t *Transport) Events() <-chan any {
	return t.out
}

// Start begins advertising peerIdentifier at generation and listening for
// peers, translating every bridge event until ctx is cancelled or Stop is
// called.
func (t *Transport) Start(ctx context.Context, peerIdentifier string, generation uint32) error {
	if err := t.bridge.StartAdvertisingAndListening(ctx, peerIdentifier, generation); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.pump(runCtx)
	return nil
}

// Stop is idempotent.
func (t *Transport) Stop() error {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	return t.bridge.StopAdvertisingAndListening()
}

func (t *Transport) pump(ctx context.Context) {
	events := t.bridge.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			t.translate(ev)
		}
	}
}

func (t *Transport) translate(ev ifaces.NativeBridgeEvent) {
	var msg any

	switch v := ev.(type) {
	case ifaces.PeerAvailabilityEvent:
		raw := registry.RawPeerEvent{
			PeerID:         v.PeerIdentifier,
			Generation:     v.Generation,
			Available:      v.PeerAvailable,
			ConnectionType: t.connectionType,
		}
		if v.PortNumber != nil {
			raw.PortNumber = gonull.NewNullable(*v.PortNumber)
		}
		msg = raw

	case ifaces.NetworkChangedEvent:
		msg = registry.NetworkChange{
			Wifi:               v.Wifi,
			Bluetooth:          v.Bluetooth,
			BluetoothLowEnergy: v.BluetoothLowEnergy,
			Cellular:           v.Cellular,
			BSSIDName:          v.BSSIDName,
		}

	case ifaces.DiscoveryAdvertisingStateEvent:
		msg = registry.AdvertisingState{
			DiscoveryActive:   v.DiscoveryActive,
			AdvertisingActive: v.AdvertisingActive,
		}

	case ifaces.ListenerRecreatedEvent:
		msg = registry.ListenerRecreated{
			PeerIdentifier: v.PeerIdentifier,
			PortNumber:     v.PortNumber,
		}

	default:
		t.log.Warn("native: unrecognized bridge event", "type", v)
		return
	}

	select {
	case t.out <- msg:
	default:
		t.log.Warn("native: output buffer full, dropping event")
	}
}

// OpenConnection opens an on-demand connection to peerIdentifier (MPCF/iOS)
// and returns the local forwarder port.
func (t *Transport) OpenConnection(ctx context.Context, peerIdentifier string) (uint16, error) {
	return t.bridge.OpenConnection(ctx, peerIdentifier)
}
