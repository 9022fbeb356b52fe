// Package manager implements the C8 Manager: the top-level lifecycle that
// wires every other component together and mounts the admission
// middleware on the caller's HTTP router. Its explicit state machine
// replaces the promise-chained start sequence spec.md §9 flags.
package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/thaligo/thali/internal/acl"
	"github.com/thaligo/thali/internal/beacon"
	"github.com/thaligo/thali/internal/config"
	"github.com/thaligo/thali/internal/eventbus"
	"github.com/thaligo/thali/internal/ifaces"
	"github.com/thaligo/thali/internal/key"
	"github.com/thaligo/thali/internal/logging"
	"github.com/thaligo/thali/internal/notify/client"
	"github.com/thaligo/thali/internal/notify/sender"
	"github.com/thaligo/thali/internal/peerpool"
	"github.com/thaligo/thali/internal/registry"
	"github.com/thaligo/thali/internal/transport/native"
	"github.com/thaligo/thali/internal/transport/wifi"
)

// State is a node of the Manager's explicit lifecycle state machine.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// ErrAlreadyStarted is returned by Start when the Manager isn't Stopped.
var ErrAlreadyStarted = errors.New("thali: manager already started (call Stop!)")

// ErrNotStarted is returned by Stop, or any operation requiring a running
// Manager, when the Manager isn't Running.
var ErrNotStarted = errors.New("thali: manager not started (call Start!)")

// Deps are the out-of-scope collaborators a Manager needs at Start time;
// see internal/ifaces.
type Deps struct {
	Router       ifaces.Router
	PSKServer    ifaces.PSKServer
	NativeBridge ifaces.NativeBridge
	HTTPClient   *http.Client // for NotificationClient's beacon fetches; may be nil
}

// StartArgs are the per-start parameters spec.md §4.8 threads through the
// component chain.
type StartArgs struct {
	Local          key.Private
	PeerIdentifier string
	RemoteKeys     []key.Public
	NonTCPRadio    registry.ConnectionType

	// BeaconValidity is how long a published beacon stream claims to be
	// valid for; a zero value defaults to twice BeaconMillisecondsToExpire,
	// so the scheduled rotation lands at its midpoint.
	BeaconValidity time.Duration
}

// Manager is the C8 top-level lifecycle owner.
type Manager struct {
	cfg  config.Config
	deps Deps

	mu    sync.Mutex
	state State

	cancel context.CancelFunc

	reg    *registry.Registry
	wifiTr *wifi.Transport
	nonTCP *native.Transport
	snd    *sender.Sender
	cl     *client.Client
	pool   *peerpool.Pool
}

// New builds a Manager in the Stopped state.
func New(cfg config.Config, deps Deps) *Manager {
	return &Manager{cfg: cfg, deps: deps, state: Stopped}
}

// State reports the Manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Peers reports every peer currently cached by the Registry, for
// inspection tools; it returns nil when the Manager isn't Running.
func (m *Manager) Peers() []registry.PeerStatus {
	m.mu.Lock()
	reg := m.reg
	running := m.state == Running
	m.mu.Unlock()
	if !running || reg == nil {
		return nil
	}
	return reg.Snapshot()
}

// Start wires and starts every component, in the order spec.md §4.8
// requires: NotificationClient, the admission router, advertisement
// listening, advertising+listening, then NotificationSender.
//
// Start is not idempotent across differing arguments: a second call before
// Stop returns ErrAlreadyStarted.
func (m *Manager) Start(ctx context.Context, args StartArgs) error {
	m.mu.Lock()
	if m.state != Stopped {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state = Starting
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	m.pool = peerpool.New(8, nil)
	m.reg = registry.New(runCtx, m.cfg, args.NonTCPRadio)
	go m.reg.Run()

	codec := beacon.NewCodec(nil)

	cl, err := client.New(args.Local, codec, m.reg, m.pool, args.RemoteKeys, m.deps.HTTPClient)
	if err != nil {
		cancel()
		m.setStopped()
		return fmt.Errorf("manager: start notification client: %w", err)
	}
	m.cl = cl
	go cl.Run(runCtx, m.reg.Out())

	m.snd = sender.New(args.Local, codec, m.deps.PSKServer, m.cfg.BeaconMillisecondsToExpire)

	m.mountRouter()

	m.wifiTr = wifi.New(args.PeerIdentifier, m.cfg.SSDPAdvertisementInterval)
	if err := m.wifiTr.StartListening(runCtx); err != nil {
		cancel()
		m.setStopped()
		return fmt.Errorf("manager: start wifi listening: %w", err)
	}
	if err := m.wifiTr.StartAdvertising(runCtx); err != nil {
		cancel()
		m.setStopped()
		return fmt.Errorf("manager: start wifi advertising: %w", err)
	}

	if m.deps.NativeBridge != nil {
		m.nonTCP = native.New(m.deps.NativeBridge, args.NonTCPRadio)
		if err := m.nonTCP.Start(runCtx, args.PeerIdentifier, 0); err != nil {
			logging.For(m).Warn("manager: native transport start failed", "err", err)
			m.nonTCP = nil
		}
	}

	go m.pumpEvents(runCtx)

	validity := args.BeaconValidity
	if validity <= 0 {
		validity = m.cfg.BeaconMillisecondsToExpire * 2
	}
	if err := m.snd.SetBeaconKeys(args.RemoteKeys, validity); err != nil {
		cancel()
		m.setStopped()
		return fmt.Errorf("manager: start notification sender: %w", err)
	}

	m.mu.Lock()
	m.cancel = cancel
	m.state = Running
	m.mu.Unlock()
	return nil
}

// Stop reverses Start, mirroring its order, and is silent: no
// unavailability events are emitted for entries still cached when the
// Registry is torn down.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != Running {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.state = Stopping
	cancel := m.cancel
	m.mu.Unlock()

	m.snd.Stop()
	if m.nonTCP != nil {
		_ = m.nonTCP.Stop()
	}
	_ = m.wifiTr.StopAdvertising()
	_ = m.wifiTr.StopListening()
	m.cl.Close()
	if cancel != nil {
		cancel()
	}
	m.reg.Cancel()

	m.setStopped()
	return nil
}

func (m *Manager) setStopped() {
	m.mu.Lock()
	m.state = Stopped
	m.mu.Unlock()
}

// pumpEvents fans the Wi-Fi transport's raw event channel and (when
// present) the native transport's translated event channel into one stream
// via eventbus.Merge, and forwards that stream into the Registry's inbox.
func (m *Manager) pumpEvents(ctx context.Context) {
	sources := []<-chan any{wifiEventsAsAny(ctx, m.wifiTr.Events())}
	if m.nonTCP != nil {
		sources = append(sources, m.nonTCP.Events())
	}
	merged := eventbus.Merge(ctx, sources...)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-merged:
			if !ok {
				return
			}
			select {
			case m.reg.Inbox() <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// wifiEventsAsAny widens WifiTransport's typed event channel to the any
// channel eventbus.Merge needs to fan it in alongside the native
// transport's already-any-typed stream.
func wifiEventsAsAny(ctx context.Context, events <-chan registry.RawPeerEvent) <-chan any {
	out := make(chan any)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (m *Manager) mountRouter() {
	if m.deps.Router == nil {
		return
	}
	table := acl.NewTable(m.cfg.BaseDBPath, m.cfg.LocalSeqPointPrefix)
	resolver := compositeResolver{psk: m.deps.PSKServer, sender: m.snd}
	m.deps.Router.Use(acl.Middleware(resolver, table))
	m.deps.Router.Handle(http.MethodGet, "/NotificationBeacons", func(w http.ResponseWriter, r *http.Request) {
		stream, err := m.snd.BeaconStream(r.Context())
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Write(stream)
	})
}

// compositeResolver joins the externally-supplied PSKServer (identity
// hinting) with the Sender's current snapshot (secret/public-key lookup)
// into one acl.Resolver, per spec.md §4.8's admission gate.
type compositeResolver struct {
	psk    ifaces.PSKServer
	sender *sender.Sender
}

func (c compositeResolver) IdentityHint(r *http.Request) (string, bool) {
	return c.psk.IdentityHint(r)
}

func (c compositeResolver) Lookup(id string) ([]byte, *key.Public, bool) {
	return c.sender.Lookup(id)
}
