// Package client implements the C7 NotificationClient: it subscribes to
// peerAvailabilityChanged, fetches and parses each newly-available peer's
// beacon stream, and on a match enqueues a pull-replication action to the
// PeerPool. Grounded on the teacher's MDNSManager's rate-limiter use
// (toversok/actors/a_mman.go) to guard against a flapping peer re-fetching
// its own beacon stream faster than useful.
package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/thaligo/thali/internal/beacon"
	"github.com/thaligo/thali/internal/key"
	"github.com/thaligo/thali/internal/logging"
	"github.com/thaligo/thali/internal/peerpool"
	"github.com/thaligo/thali/internal/registry"
)

// HostResolver gives the client the address to dial for a newly-available
// peer; backed by Registry.GetPeerHostInfo.
type HostResolver interface {
	GetPeerHostInfo(ct registry.ConnectionType, peerID string) (registry.HostInfo, bool)
}

// Client is the C7 NotificationClient.
type Client struct {
	local      key.Private
	codec      beacon.Codec
	resolver   HostResolver
	pool       *peerpool.Pool
	httpClient *http.Client
	rlStore    limiter.Store

	remoteKeys map[key.Hash]key.Public
	log        *slog.Logger
}

// New builds a Client. remoteKeys is the address book of keys this node is
// willing to discover beacons for. httpClient is supplied by the caller
// (Manager) already wired to whatever PSK-TLS transport the native bridge
// provides; a nil httpClient defaults to http.DefaultClient.
func New(local key.Private, codec beacon.Codec, resolver HostResolver, pool *peerpool.Pool, remoteKeys []key.Public, httpClient *http.Client) (*Client, error) {
	store, err := memorystore.New(&memorystore.Config{
		Tokens:        1,
		Interval:      5 * time.Second,
		SweepInterval: time.Minute,
		SweepMinTTL:   time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("client: build rate limiter: %w", err)
	}

	book := make(map[key.Hash]key.Public, len(remoteKeys))
	for _, k := range remoteKeys {
		book[k.Hash()] = k
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		local:      local,
		codec:      codec,
		resolver:   resolver,
		pool:       pool,
		httpClient: httpClient,
		rlStore:    store,
		remoteKeys: book,
	}
	c.log = logging.For(c)
	return c, nil
}

// Close stops the client's rate limiter.
func (c *Client) Close() {
	c.rlStore.Close(context.Background())
}

// Run consumes statuses until ctx is cancelled, calling HandleStatus for
// each. Intended to be started with `go c.Run(ctx, registry.Out())`.
func (c *Client) Run(ctx context.Context, statuses <-chan registry.PeerStatus) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				return
			}
			c.HandleStatus(ctx, status)
		}
	}
}

// HandleStatus processes one PeerStatus from the Registry: a new
// availability fetches and parses the peer's beacon stream; an
// unavailability cancels any in-flight action for that peer.
func (c *Client) HandleStatus(ctx context.Context, status registry.PeerStatus) {
	poolKey := peerpool.Key{ConnectionType: status.ConnectionType, PeerID: status.PeerID}

	if !status.Available {
		c.pool.Cancel(poolKey)
		return
	}

	if _, _, _, ok, err := c.rlStore.Take(ctx, status.PeerID); err != nil {
		c.log.Warn("client: rate limiter error", "peer", status.PeerID, "err", err)
	} else if !ok {
		return
	}

	host, found := c.resolver.GetPeerHostInfo(status.ConnectionType, status.PeerID)
	if !found {
		return
	}

	stream, err := c.fetchBeacons(ctx, host)
	if err != nil {
		c.log.Warn("client: fetch beacons failed", "peer", status.PeerID, "err", err)
		return
	}

	matched, err := c.codec.Parse(stream, c.local, c.addressBook)
	if err != nil {
		c.log.Warn("client: malformed beacon stream", "peer", status.PeerID, "err", err)
		return
	}
	if matched == nil {
		return
	}

	c.pool.Submit(ctx, poolKey, func(ctx context.Context) {
		c.log.Info("client: beacon matched, pull replication scheduled", "peer", status.PeerID)
	})
}

func (c *Client) addressBook(h key.Hash) *key.Public {
	if pub, ok := c.remoteKeys[h]; ok {
		return &pub
	}
	return nil
}

func (c *Client) fetchBeacons(ctx context.Context, host registry.HostInfo) ([]byte, error) {
	url := fmt.Sprintf("https://%s:%d/NotificationBeacons", host.HostAddress, host.PortNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("client: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
