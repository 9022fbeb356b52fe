// Package ifaces defines the contracts this module expects from its
// out-of-scope external collaborators: the native mobile bridges, the HTTP
// router library, and the TLS-PSK server. Per spec.md §1, only their
// consumed/exposed interfaces are specified here; their implementations
// (real mobile bindings, or test doubles) live outside this module.
package ifaces

import (
	"context"
	"net/http"
)

// NativeBridge is the native mobile bridge for the non-TCP transport
// (Bluetooth or Multipeer Connectivity radio control). NativeTransport (C4)
// drives it; it never reaches into the radio stack directly.
type NativeBridge interface {
	// StartAdvertisingAndListening begins advertising peerIdentifier at the
	// given generation, and listening for other peers' advertisements.
	// Returns a non-nil error if the underlying radio is off; this module
	// defines no dedicated error value for that case.
	StartAdvertisingAndListening(ctx context.Context, peerIdentifier string, generation uint32) error

	// StopAdvertisingAndListening is idempotent.
	StopAdvertisingAndListening() error

	// Events returns the channel of raw native bridge events (peer
	// availability changes, radio state changes, discovery/advertising
	// state, listener recreation). Valid only after a successful Start.
	Events() <-chan NativeBridgeEvent

	// OpenConnection opens a connection to peerIdentifier on iOS/MPCF,
	// where connections must be established on demand, and returns the
	// port of the newly bound local forwarder.
	OpenConnection(ctx context.Context, peerIdentifier string) (port uint16, err error)
}

// NativeBridgeEvent is the union of event shapes NativeBridge can emit; the
// native transport discriminates on the concrete type. The interface's
// unexported method confines implementations to this package, so the
// concrete event types below are the only legal values.
type NativeBridgeEvent interface {
	nativeBridgeEvent()
}

// PeerAvailabilityEvent carries {peerIdentifier, generation, peerAvailable,
// portNumber?} per spec.md §4.4.
type PeerAvailabilityEvent struct {
	PeerIdentifier string
	Generation     uint32
	PeerAvailable  bool
	PortNumber     *uint16
}

func (PeerAvailabilityEvent) nativeBridgeEvent() {}

// NetworkChangedEvent carries a radio-state transition.
type NetworkChangedEvent struct {
	Wifi               bool
	Bluetooth          bool
	BluetoothLowEnergy bool
	Cellular           bool
	BSSIDName          string
}

func (NetworkChangedEvent) nativeBridgeEvent() {}

// DiscoveryAdvertisingStateEvent carries the native bridge's current
// discovery/advertising activity.
type DiscoveryAdvertisingStateEvent struct {
	DiscoveryActive   bool
	AdvertisingActive bool
}

func (DiscoveryAdvertisingStateEvent) nativeBridgeEvent() {}

// ListenerRecreatedEvent signals that a local listener port bound to a
// native peer was recreated after a failure.
type ListenerRecreatedEvent struct {
	PeerIdentifier string
	PortNumber     uint16
}

func (ListenerRecreatedEvent) nativeBridgeEvent() {}

// Router is the HTTP router library (out of scope). Manager (C8) mounts the
// admission middleware on every request via this contract; the concrete
// router (chi, net/http.ServeMux, or a mobile-embedded router) is supplied
// by the caller.
type Router interface {
	// Use registers middleware to run before every handler.
	Use(mw func(http.Handler) http.Handler)

	// Handle registers a handler for method+pattern, in the router's own
	// pattern syntax (e.g. "/db/_local/{id}").
	Handle(method, pattern string, handler http.HandlerFunc)

	http.Handler
}

// PSKServer is the TLS-PSK server (out of scope). NotificationSender (C6)
// publishes its PSK tables here on every rotation; the server consults
// IdentityHint to resolve the connecting peer's PSK identity into the
// admission context acl uses for role assignment.
type PSKServer interface {
	// SetPSKTable swaps in a new id->secret map, atomically.
	SetPSKTable(idToSecret map[string][]byte)

	// IdentityHint returns the PSK identity the TLS handshake resolved for
	// the connection backing r, or ok=false if the connection is not
	// PSK-authorized (should result in a 401 per spec.md §4.8).
	IdentityHint(r *http.Request) (identity string, ok bool)
}
