package beacon

import "errors"

// Errors surfaced by Generate. Per-beacon decrypt/HMAC failures are never
// among these: they are skipped silently inside Parse.
var (
	ErrArgumentRange = errors.New("beacon: argument out of range")
	ErrArgumentNull  = errors.New("beacon: argument must not be nil")
)

// Errors surfaced by Parse. These are the only errors Parse can return;
// everything past the preamble is recovered locally.
var (
	ErrMalformedPreamble = errors.New("beacon: malformed preamble")
	ErrMalformedBeacon   = errors.New("beacon: malformed beacon stream length")
)

// MaxSecondsUntilExpiration bounds the expiration field: 0 <= x <= 86400.
const MaxSecondsUntilExpiration = 86400
