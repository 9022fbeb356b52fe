package registry

import "time"

// cacheEntry is what the Registry remembers about one (connectionType,
// peerID) pair between events.
type cacheEntry struct {
	generation   uint32
	hasAddr      bool
	host         string
	port         uint16
	lastObserved time.Time
	deadline     time.Time

	// rolloverWindowStart and rolloversInWindow track Bluetooth generation
	// rollovers (see shouldAccept) within one quiescence window, so a second
	// rollover observed before the window closes can be flagged ambiguous
	// rather than silently accepted.
	rolloverWindowStart time.Time
	rolloversInWindow   int
}

// observation is the (generation, host, port) triple a raw event carries,
// normalized so shouldAccept and newAddressPort don't need to reach into
// gonull.Nullable directly.
type observation struct {
	generation uint32
	hasAddr    bool
	host       string
	port       uint16
}

// shouldAccept decides, per spec.md §4.5's generation-semantics table,
// whether obs supersedes cached (nil if this is the first sighting of the
// key). now is used for Bluetooth's quiescence carve-out.
//
// For Bluetooth, a rollover of the 8-bit generation counter (obs.generation
// < cached.generation) is inherently ambiguous if a second one is observed
// before the quiescence window that started with the first has elapsed:
// the counter alone can't say whether one or several advertisement cycles
// elapsed in between, and spec.md §9's Open Question (ii) says not to guess
// at it. shouldAccept returns ErrAmbiguousGenerationRollover in that case
// rather than accepting or rejecting.
func shouldAccept(ct ConnectionType, cached *cacheEntry, obs observation, now time.Time, quiescence time.Duration) (bool, error) {
	if cached == nil {
		return true, nil
	}

	identical := cached.generation == obs.generation &&
		cached.hasAddr == obs.hasAddr &&
		cached.host == obs.host &&
		cached.port == obs.port

	switch ct {
	case Bluetooth:
		// Any generation change, with or without an address change, is a
		// new advertisement. A fully identical repeat only counts as a new
		// cycle once the foreground quiescence window has elapsed, since
		// Android's 8-bit counter can otherwise repeat while still
		// advertising the same cycle.
		if identical {
			return now.Sub(cached.lastObserved) >= quiescence, nil
		}
		if obs.generation < cached.generation {
			windowOpen := !cached.rolloverWindowStart.IsZero() && now.Sub(cached.rolloverWindowStart) < quiescence
			if windowOpen && cached.rolloversInWindow >= 1 {
				return false, ErrAmbiguousGenerationRollover
			}
		}
		return true, nil

	case MultiPeerConnectivity:
		// Monotonic: only a strictly greater generation is ever accepted,
		// regardless of whether the address also changed.
		return obs.generation > cached.generation, nil

	case TCPNative:
		// Generation is carried for symmetry with the other transports but
		// doesn't gate anything; only an address or port change matters.
		return obs.hasAddr != cached.hasAddr || obs.host != cached.host || obs.port != cached.port, nil

	default:
		return false, nil
	}
}

// nextRolloverState computes the (windowStart, count) a Bluetooth cacheEntry
// should carry forward after accepting obs, given the previous cached entry
// (nil on first sighting). Only called once shouldAccept has approved obs.
func nextRolloverState(cached *cacheEntry, obs observation, now time.Time, quiescence time.Duration) (time.Time, int) {
	if cached == nil || obs.generation >= cached.generation {
		return time.Time{}, 0
	}
	if !cached.rolloverWindowStart.IsZero() && now.Sub(cached.rolloverWindowStart) < quiescence {
		return cached.rolloverWindowStart, cached.rolloversInWindow + 1
	}
	return now, 1
}

// newAddressPort computes the tri-state NewAddressPort field: null is
// reserved for unavailability events and handled by the caller, so this
// always returns a concrete bool. false means first discovery.
func newAddressPort(cached *cacheEntry, obs observation) bool {
	if cached == nil {
		return false
	}
	return obs.hasAddr != cached.hasAddr || obs.host != cached.host || obs.port != cached.port
}

func unavailabilityThreshold(cfg thresholds, ct ConnectionType) time.Duration {
	if ct == TCPNative {
		return cfg.tcp
	}
	return cfg.nonTCP
}

// thresholds avoids an import cycle with internal/config in this file; the
// Registry constructor fills it in from config.Config.
type thresholds struct {
	tcp    time.Duration
	nonTCP time.Duration
}
