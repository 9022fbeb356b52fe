package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/LukaGiorgadze/gonull"
	"github.com/thaligo/thali/internal/config"
	"github.com/thaligo/thali/internal/logging"
)

// sweepInterval is how often the Registry re-evaluates unavailability
// deadlines. A single sweep ticker scanning all entries replaces one
// time.Timer per entry; see DESIGN.md Decision D1.
const sweepInterval = 250 * time.Millisecond

// runCheck ensures Run is only ever active once, mirroring the teacher's
// actor package's CompareAndSwap-based guard.
type runCheck struct{ atomic.Bool }

func (rc *runCheck) checkOrMark() bool { return rc.CompareAndSwap(false, true) }

type hostInfoRequest struct {
	key   PeerKey
	reply chan hostInfoReply
}

type hostInfoReply struct {
	info HostInfo
	ok   bool
}

type snapshotRequest struct {
	reply chan []PeerStatus
}

// Registry is the C5 PeerRegistry actor: it owns the one mutable view of
// "which peers are available right now", built from the raw Wi-Fi and
// native event streams, and publishes deduplicated PeerStatus transitions.
//
// All state is touched only from the Run goroutine; callers interact
// exclusively through the inbox and the Out channel, never a mutex.
type Registry struct {
	cfg         thresholds
	quiescence  time.Duration
	nonTCPRadio ConnectionType // Bluetooth or MultiPeerConnectivity, whichever this platform runs

	ctx    context.Context
	cancel context.CancelFunc
	inbox  chan any
	running runCheck

	out    chan PeerStatus
	advOut chan AdvertisingState
	errOut chan error

	entries map[PeerKey]*cacheEntry
	lastAdv *AdvertisingState

	log *slog.Logger
}

// New builds a Registry. nonTCPRadio names whichever single non-TCP
// transport this platform runs (spec.md: "exactly one non-TCP type is
// active per platform").
func New(parent context.Context, cfg config.Config, nonTCPRadio ConnectionType) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		cfg: thresholds{
			tcp:    cfg.TCPPeerUnavailabilityThreshold,
			nonTCP: cfg.NonTCPPeerUnavailabilityThreshold,
		},
		quiescence:  cfg.UpdateWindowsForegroundMS,
		nonTCPRadio: nonTCPRadio,
		ctx:         ctx,
		cancel:      cancel,
		inbox:       make(chan any, 64),
		out:         make(chan PeerStatus, 64),
		advOut:      make(chan AdvertisingState, 4),
		errOut:      make(chan error, 8),
		entries:     make(map[PeerKey]*cacheEntry),
	}
	r.log = logging.For(r)
	return r
}

// Inbox accepts RawPeerEvent, NetworkChange, ListenerRecreated and
// AdvertisingState values for the Registry to process.
func (r *Registry) Inbox() chan<- any { return r.inbox }

// Out delivers deduplicated peer availability transitions.
func (r *Registry) Out() <-chan PeerStatus { return r.out }

// AdvertisingStateOut delivers deduplicated discovery/advertising state.
func (r *Registry) AdvertisingStateOut() <-chan AdvertisingState { return r.advOut }

// Errors delivers non-fatal processing errors, notably
// ErrAmbiguousGenerationRollover, for an operator to log or alert on. The
// Registry keeps running whether or not anything drains this channel.
func (r *Registry) Errors() <-chan error { return r.errOut }

// Cancel stops the Registry's Run loop.
func (r *Registry) Cancel() { r.cancel() }

// Run is the Registry's single-goroutine event loop. It must be started
// with `go r.Run()`.
func (r *Registry) Run() {
	if !r.running.checkOrMark() {
		r.log.Warn("registry already running")
		return
	}

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep(time.Now())
		case m := <-r.inbox:
			r.handle(m)
		}
	}
}

func (r *Registry) handle(m any) {
	switch v := m.(type) {
	case RawPeerEvent:
		r.handleRaw(v)
	case NetworkChange:
		r.handleNetworkChange(v)
	case ListenerRecreated:
		r.handleListenerRecreated(v)
	case AdvertisingState:
		r.handleAdvertisingState(v)
	case hostInfoRequest:
		r.handleHostInfoRequest(v)
	case snapshotRequest:
		r.handleSnapshotRequest(v)
	default:
		r.log.Warn("registry: unrecognized message", "type", m)
	}
}

func (r *Registry) handleRaw(ev RawPeerEvent) {
	key := PeerKey{ConnectionType: ev.ConnectionType, PeerID: ev.PeerID}
	cached := r.entries[key]

	if !ev.Available {
		if cached != nil {
			delete(r.entries, key)
			r.emit(PeerStatus{
				PeerID:         ev.PeerID,
				ConnectionType: ev.ConnectionType,
				Generation:     cached.generation,
				Available:      false,
				NewAddressPort: gonull.Nullable[bool]{},
			})
		}
		return
	}

	obs := observation{
		generation: ev.Generation,
		hasAddr:    ev.HostAddress.Valid && ev.PortNumber.Valid,
	}
	if obs.hasAddr {
		obs.host = ev.HostAddress.Val
		obs.port = ev.PortNumber.Val
	}

	now := time.Now()
	accept, err := shouldAccept(ev.ConnectionType, cached, obs, now, r.quiescence)
	if err != nil {
		r.log.Warn("registry: rejecting ambiguous peer event", "peer", ev.PeerID, "err", err)
		select {
		case r.errOut <- fmt.Errorf("peer %s: %w", ev.PeerID, err):
		default:
		}
		return
	}
	if !accept {
		// The peer is still being heard from, so an ignored observation
		// still pushes its unavailability deadline out.
		if cached != nil {
			cached.deadline = now.Add(unavailabilityThreshold(r.cfg, ev.ConnectionType))
		}
		return
	}

	isNew := newAddressPort(cached, obs)
	windowStart, rolloversInWindow := nextRolloverState(cached, obs, now, r.quiescence)

	r.entries[key] = &cacheEntry{
		generation:          obs.generation,
		hasAddr:             obs.hasAddr,
		host:                obs.host,
		port:                obs.port,
		lastObserved:        now,
		deadline:            now.Add(unavailabilityThreshold(r.cfg, ev.ConnectionType)),
		rolloverWindowStart: windowStart,
		rolloversInWindow:   rolloversInWindow,
	}

	r.emit(PeerStatus{
		PeerID:         ev.PeerID,
		ConnectionType: ev.ConnectionType,
		Generation:     obs.generation,
		Available:      true,
		NewAddressPort: gonull.NewNullable(isNew),
	})
}

// handleListenerRecreated treats a recreated local listener as an address
// change even when the port number is identical to before, since the old
// socket is dead and any peer still holding it needs to redial.
func (r *Registry) handleListenerRecreated(ev ListenerRecreated) {
	key := PeerKey{ConnectionType: r.nonTCPRadio, PeerID: ev.PeerIdentifier}
	cached := r.entries[key]
	if cached == nil {
		return
	}

	now := time.Now()
	r.entries[key] = &cacheEntry{
		generation:   cached.generation,
		hasAddr:      true,
		host:         cached.host,
		port:         ev.PortNumber,
		lastObserved: now,
		deadline:     now.Add(unavailabilityThreshold(r.cfg, r.nonTCPRadio)),
	}

	r.emit(PeerStatus{
		PeerID:         ev.PeerIdentifier,
		ConnectionType: r.nonTCPRadio,
		Generation:     cached.generation,
		Available:      true,
		NewAddressPort: gonull.NewNullable(true),
	})
}

// handleNetworkChange implements the radio-state reactions from spec.md
// §4.5: Wi-Fi going off drops every TCP_NATIVE entry; whether the non-TCP
// radio going off drops entries depends on which single non-TCP transport
// this platform runs. MultiPeerConnectivity additionally needs both Wi-Fi
// and Bluetooth off before it's considered unreachable, since it can ride
// either radio.
func (r *Registry) handleNetworkChange(ev NetworkChange) {
	if !ev.Wifi {
		r.dropAll(TCPNative)
	}

	switch r.nonTCPRadio {
	case Bluetooth:
		if !ev.Bluetooth {
			r.dropAll(Bluetooth)
		}
	case MultiPeerConnectivity:
		if !ev.Wifi && !ev.Bluetooth {
			r.dropAll(MultiPeerConnectivity)
		}
	}
}

func (r *Registry) dropAll(ct ConnectionType) {
	for key, cached := range r.entries {
		if key.ConnectionType != ct {
			continue
		}
		delete(r.entries, key)
		r.emit(PeerStatus{
			PeerID:         key.PeerID,
			ConnectionType: ct,
			Generation:     cached.generation,
			Available:      false,
			NewAddressPort: gonull.Nullable[bool]{},
		})
	}
}

func (r *Registry) handleAdvertisingState(state AdvertisingState) {
	if r.lastAdv != nil && *r.lastAdv == state {
		return
	}
	s := state
	r.lastAdv = &s
	// Never block the actor on an undrained advOut: when the buffer is
	// full, drop the oldest queued state to make room for the newest.
	for {
		select {
		case r.advOut <- state:
			return
		default:
		}
		select {
		case <-r.advOut:
		default:
		}
	}
}

func (r *Registry) handleHostInfoRequest(req hostInfoRequest) {
	cached, ok := r.entries[req.key]
	if !ok || !cached.hasAddr {
		req.reply <- hostInfoReply{ok: false}
		return
	}
	req.reply <- hostInfoReply{
		ok: true,
		info: HostInfo{
			HostAddress:         cached.host,
			PortNumber:          cached.port,
			SuggestedTCPTimeout: unavailabilityThreshold(r.cfg, req.key.ConnectionType),
		},
	}
}

func (r *Registry) handleSnapshotRequest(req snapshotRequest) {
	out := make([]PeerStatus, 0, len(r.entries))
	for key, cached := range r.entries {
		out = append(out, PeerStatus{
			PeerID:         key.PeerID,
			ConnectionType: key.ConnectionType,
			Generation:     cached.generation,
			Available:      true,
			NewAddressPort: gonull.NewNullable(cached.hasAddr),
		})
	}
	req.reply <- out
}

func (r *Registry) sweep(now time.Time) {
	for key, cached := range r.entries {
		if now.Before(cached.deadline) {
			continue
		}
		delete(r.entries, key)
		r.emit(PeerStatus{
			PeerID:         key.PeerID,
			ConnectionType: key.ConnectionType,
			Generation:     cached.generation,
			Available:      false,
			NewAddressPort: gonull.Nullable[bool]{},
		})
	}
}

func (r *Registry) emit(status PeerStatus) {
	select {
	case r.out <- status:
	case <-r.ctx.Done():
	}
}

// Snapshot returns every currently-cached peer, synchronously, for
// inspection (e.g. cmd/thalictl's "peers" command). Snapshot entries are
// not transitions: their NewAddressPort reports whether the entry has a
// cached host/port, not whether the address changed.
func (r *Registry) Snapshot() []PeerStatus {
	reply := make(chan []PeerStatus, 1)
	select {
	case r.inbox <- snapshotRequest{reply: reply}:
	case <-r.ctx.Done():
		return nil
	}
	select {
	case out := <-reply:
		return out
	case <-r.ctx.Done():
		return nil
	}
}

// GetPeerHostInfo returns the cached address/port for a peer, synchronously,
// by round-tripping through the actor's own goroutine.
func (r *Registry) GetPeerHostInfo(ct ConnectionType, peerID string) (HostInfo, bool) {
	reply := make(chan hostInfoReply, 1)
	req := hostInfoRequest{key: PeerKey{ConnectionType: ct, PeerID: peerID}, reply: reply}

	select {
	case r.inbox <- req:
	case <-r.ctx.Done():
		return HostInfo{}, false
	}

	select {
	case rep := <-reply:
		return rep.info, rep.ok
	case <-r.ctx.Done():
		return HostInfo{}, false
	}
}
