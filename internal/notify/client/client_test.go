package client

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thaligo/thali/internal/beacon"
	"github.com/thaligo/thali/internal/key"
	"github.com/thaligo/thali/internal/peerpool"
	"github.com/thaligo/thali/internal/registry"
)

type fakeResolver struct {
	host registry.HostInfo
	ok   bool
}

func (f fakeResolver) GetPeerHostInfo(ct registry.ConnectionType, peerID string) (registry.HostInfo, bool) {
	return f.host, f.ok
}

// recordingPolicy reports every key the pool schedules, then runs it.
type recordingPolicy struct {
	keys chan peerpool.Key
}

func (p recordingPolicy) Schedule(ctx context.Context, key peerpool.Key, run func()) {
	p.keys <- key
	go run()
}

func TestHandleStatusMatchesBeaconAndSubmitsToPool(t *testing.T) {
	alice := key.New() // the peer being discovered
	bob := key.New()   // this client's own identity, a recipient of the beacon

	codec := beacon.NewCodec(nil)
	stream, err := codec.Generate([]key.Public{bob.Public()}, alice, 3600)
	require.NoError(t, err)

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(stream)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	resolver := fakeResolver{host: registry.HostInfo{HostAddress: host, PortNumber: uint16(port)}, ok: true}

	policy := recordingPolicy{keys: make(chan peerpool.Key, 1)}
	pool := peerpool.New(2, policy)
	c, err := New(bob, codec, resolver, pool, []key.Public{alice.Public()}, srv.Client())
	require.NoError(t, err)
	defer c.Close()

	status := registry.PeerStatus{PeerID: "alice", ConnectionType: registry.TCPNative, Available: true}
	assert.NotPanics(t, func() {
		c.HandleStatus(context.Background(), status)
	})

	select {
	case k := <-policy.keys:
		assert.Equal(t, peerpool.Key{ConnectionType: registry.TCPNative, PeerID: "alice"}, k)
	case <-time.After(time.Second):
		t.Fatal("matched beacon was not submitted to the pool")
	}
}

func TestHandleStatusCancelsPoolActionOnUnavailability(t *testing.T) {
	pool := peerpool.New(2, nil)
	c := &Client{pool: pool, log: slog.Default()}

	started := make(chan struct{})
	cancelled := make(chan struct{})
	poolKey := peerpool.Key{ConnectionType: registry.TCPNative, PeerID: "peer-a"}
	require.True(t, pool.Submit(context.Background(), poolKey, func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	}))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("pool action never started")
	}

	status := registry.PeerStatus{PeerID: "peer-a", ConnectionType: registry.TCPNative, Available: false}
	assert.NotPanics(t, func() {
		c.HandleStatus(context.Background(), status)
	})

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("unavailability did not cancel the pool action")
	}
}
