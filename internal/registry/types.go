// Package registry implements the PeerRegistry (C5): the hardest
// subcomponent in spec.md. It merges the Wi-Fi and native raw event
// streams into one debounced, generation-tracked peerAvailabilityChanged
// stream, and owns per-entry unavailability timers and radio-state
// reactions. See spec.md §4.5 and §8.
package registry

import (
	"time"

	"github.com/LukaGiorgadze/gonull"
)

// ConnectionType identifies which link layer a peer was discovered over.
type ConnectionType int

const (
	// TCPNative is the Wi-Fi transport (named for historical reasons: it's
	// the one that carries a regular TCP connection).
	TCPNative ConnectionType = iota
	Bluetooth
	MultiPeerConnectivity
)

func (c ConnectionType) String() string {
	switch c {
	case TCPNative:
		return "TCP_NATIVE"
	case Bluetooth:
		return "BLUETOOTH"
	case MultiPeerConnectivity:
		return "MULTI_PEER_CONNECTIVITY"
	default:
		return "UNKNOWN"
	}
}

// PeerKey identifies a registry entry.
type PeerKey struct {
	ConnectionType ConnectionType
	PeerID         string
}

// RawPeerEvent is a peer-availability observation from a transport, before
// debounce/generation/timer reasoning. Host and port are absent for native
// peers on iOS (where a connection is opened on demand) and always present
// for Wi-Fi peers when available.
type RawPeerEvent struct {
	PeerID         string
	Generation     uint32
	Available      bool
	ConnectionType ConnectionType
	HostAddress    gonull.Nullable[string]
	PortNumber     gonull.Nullable[uint16]
}

// PeerStatus is the deduplicated, emitted availability transition.
type PeerStatus struct {
	PeerID         string
	ConnectionType ConnectionType
	Generation     uint32
	Available      bool

	// NewAddressPort is null on unavailability events, false on first
	// discovery, and true when host or port changed vs. the prior cached
	// entry.
	NewAddressPort gonull.Nullable[bool]
}

// AdvertisingState is the deduplicated discovery/advertising state.
type AdvertisingState struct {
	DiscoveryActive   bool
	AdvertisingActive bool
}

// NetworkChange is the radio-state transition from spec.md §4.4's
// networkChangedNonTCP event.
type NetworkChange struct {
	Wifi               bool
	Bluetooth          bool
	BluetoothLowEnergy bool
	Cellular           bool
	BSSIDName          string
}

// ListenerRecreated signals that a local listener port bound to a native
// peer was recreated after a failure; the Registry must treat this as an
// address change even if the port is bit-identical to before.
type ListenerRecreated struct {
	PeerIdentifier string
	PortNumber     uint16
}

// HostInfo is returned by GetPeerHostInfo.
type HostInfo struct {
	HostAddress         string
	PortNumber          uint16
	SuggestedTCPTimeout time.Duration
}
