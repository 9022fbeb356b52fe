// Package config carries the tunable constants named in spec.md §6 as a
// plain record passed into Manager.Start, instead of the package-level
// mutable variables a test-driven rewrite of the original would reach for
// (spec.md §9, "Global mutability of tunables").
package config

import "time"

// Config holds every tunable named in spec.md §6.
type Config struct {
	// TCPPeerUnavailabilityThreshold is how long a Wi-Fi peer may stay
	// silent before the Registry declares it unavailable.
	TCPPeerUnavailabilityThreshold time.Duration

	// NonTCPPeerUnavailabilityThreshold is the native-transport analogue.
	NonTCPPeerUnavailabilityThreshold time.Duration

	// SSDPAdvertisementInterval is how often WifiTransport re-broadcasts
	// its SSDP advertisement.
	SSDPAdvertisementInterval time.Duration

	// UpdateWindowsForegroundMS is the Bluetooth generation-rollover
	// quiescence window: after this long without an observation, a
	// repeated generation is accepted as a new advertisement cycle.
	UpdateWindowsForegroundMS time.Duration

	// BeaconMillisecondsToExpire is how long before expiry the sender
	// schedules a beacon-stream rotation.
	BeaconMillisecondsToExpire time.Duration

	// BaseDBPath is the document-store base path exposed to ACL path
	// matching (the store itself is out of scope; only its path prefix
	// matters here).
	BaseDBPath string

	// LocalSeqPointPrefix prefixes the per-identity local-sequence-point
	// document id under /db/_local/.
	LocalSeqPointPrefix string
}

// Default returns the defaults used by the reference mobile clients.
func Default() Config {
	return Config{
		TCPPeerUnavailabilityThreshold:    30 * time.Second,
		NonTCPPeerUnavailabilityThreshold: 15 * time.Second,
		SSDPAdvertisementInterval:         500 * time.Millisecond,
		UpdateWindowsForegroundMS:         10 * time.Second,
		BeaconMillisecondsToExpire:        5 * time.Minute,
		BaseDBPath:                        "/db",
		LocalSeqPointPrefix:               "thali_",
	}
}
