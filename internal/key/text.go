package key

import (
	"encoding/hex"
	"fmt"

	"go4.org/mem"
)

const (
	publicHexPrefix = "pub:"
	hashHexPrefix   = "hash:"
)

// AppendText implements encoding.TextAppender.
func (p Public) AppendText(b []byte) ([]byte, error) {
	b = append(b, publicHexPrefix...)
	return hex.AppendEncode(b, p[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Public) MarshalText() ([]byte, error) {
	return p.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Public) UnmarshalText(b []byte) error {
	raw, err := parseHexPrefixed(b, publicHexPrefix)
	if err != nil {
		return err
	}
	if len(raw) != PublicLen {
		return fmt.Errorf("key: public key has wrong length %d, want %d", len(raw), PublicLen)
	}
	copy(p[:], raw)
	return nil
}

// HexString returns the bare hex encoding of h, with no type prefix; this
// is the representation used in URL path segments (e.g. the ACL's
// local-sequence-point {id}), where a typed prefix would be noise.
func (h Hash) HexString() string {
	return hex.EncodeToString(h[:])
}

// AppendText implements encoding.TextAppender.
func (h Hash) AppendText(b []byte) ([]byte, error) {
	b = append(b, hashHexPrefix...)
	return hex.AppendEncode(b, h[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return h.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(b []byte) error {
	raw, err := parseHexPrefixed(b, hashHexPrefix)
	if err != nil {
		return err
	}
	if len(raw) != HashLen {
		return fmt.Errorf("key: hash has wrong length %d, want %d", len(raw), HashLen)
	}
	copy(h[:], raw)
	return nil
}

// parseHexPrefixed checks and strips prefix without allocating an
// intermediate string for the comparison, using go4.org/mem the way the
// examples use it for hot-path byte/string comparisons.
func parseHexPrefixed(b []byte, prefix string) ([]byte, error) {
	ro := mem.B(b)
	if !mem.HasPrefix(ro, mem.S(prefix)) {
		return nil, fmt.Errorf("key: missing %q prefix", prefix)
	}
	return hex.DecodeString(mem.TrimPrefix(ro, mem.S(prefix)).StringCopy())
}
