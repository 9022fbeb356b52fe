// Package beacon implements the notification-beacon codec (C1): building
// and parsing the ECDH+HKDF+HMAC preamble-and-beacons byte stream that lets
// a peer privately announce "I have data for you" to a pre-authorized set
// of remote public keys. See spec.md §4.1 and §6.
package beacon

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"github.com/thaligo/thali/internal/key"
	"golang.org/x/crypto/hkdf"
)

// AddressBook maps a KeyHash back to the full public key it was derived
// from. Parse uses it to recover the sender's identity from a decrypted
// beacon; a nil return means the hash is not recognized.
type AddressBook func(h key.Hash) *key.Public

// Codec builds and parses beacon streams. The zero value uses DefaultCipher
// (AES-128-GCM); construct with NewCodec to pick a specific cipher, e.g.
// CTRLegacy for interop with beacons from before the AEAD migration.
type Codec struct {
	cipher Cipher
}

// NewCodec returns a Codec using the given cipher.
func NewCodec(c Cipher) Codec {
	return Codec{cipher: c}
}

func (c Codec) impl() Cipher {
	if c.cipher == nil {
		return DefaultCipher
	}
	return c.cipher
}

// Generate builds a beacon stream announcing local's data availability to
// every key in toNotify, expiring secondsUntilExpiration seconds from now.
// An empty toNotify is valid and produces a stream with no beacons: just
// the preamble (callers may also choose not to publish at all in that
// case; Generate does not make that policy decision).
func (c Codec) Generate(toNotify []key.Public, local key.Private, secondsUntilExpiration int64) ([]byte, error) {
	if toNotify == nil {
		return nil, fmt.Errorf("%w: toNotify must not be nil", ErrArgumentNull)
	}
	if secondsUntilExpiration < 0 || secondsUntilExpiration > MaxSecondsUntilExpiration {
		return nil, fmt.Errorf("%w: secondsUntilExpiration %d not in [0, %d]", ErrArgumentRange, secondsUntilExpiration, MaxSecondsUntilExpiration)
	}

	ephemeral := key.New()
	ephemeralPub := ephemeral.Public()

	var expirationBE [8]byte
	binary.BigEndian.PutUint64(expirationBE[:], uint64(secondsUntilExpiration))

	localHash := local.Public().Hash()

	out := make([]byte, 0, preambleLen+len(toNotify)*beaconLen)
	out = append(out, ephemeralPub[:]...)
	out = append(out, expirationBE[:]...)

	impl := c.impl()

	for _, recipient := range toNotify {
		sxy, err := local.ECDH(recipient)
		if err != nil {
			return nil, fmt.Errorf("beacon: ecdh with recipient: %w", err)
		}
		hkxy, err := deriveKey(sxy, expirationBE[:], 32)
		if err != nil {
			return nil, err
		}
		beaconHmac := truncatedHMAC(hkxy, expirationBE[:])

		sey, err := ephemeral.ECDH(recipient)
		if err != nil {
			return nil, fmt.Errorf("beacon: ecdh with ephemeral key: %w", err)
		}
		km, err := deriveKey(sey, expirationBE[:], 32)
		if err != nil {
			return nil, err
		}
		iv, hkey := km[:16], km[16:32]

		ciphertext, err := impl.Seal(hkey, iv, localHash[:])
		if err != nil {
			return nil, fmt.Errorf("beacon: encrypt: %w", err)
		}

		out = append(out, ciphertext...)
		out = append(out, beaconHmac...)
	}

	return out, nil
}

// Parse attempts to find a beacon in stream addressed to local, using
// addr to recover a candidate sender's public key from its decrypted
// identity. It returns the matched sender's KeyHash, or nil if none of the
// beacons in the stream matched. The first matching beacon wins; Parse does
// not continue scanning after a match is confirmed.
//
// Per-beacon decrypt/HMAC failures are recovered locally and never
// propagate; only a malformed preamble or stream length does.
func (c Codec) Parse(stream []byte, local key.Private, addr AddressBook) (*key.Hash, error) {
	if len(stream) < preambleLen {
		return nil, fmt.Errorf("%w: stream shorter than preamble (%d < %d)", ErrMalformedPreamble, len(stream), preambleLen)
	}

	var senderEph key.Public
	copy(senderEph[:], stream[:key.PublicLen])

	expirationRaw := stream[key.PublicLen:preambleLen]
	expiration := int64(binary.BigEndian.Uint64(expirationRaw))
	if expiration < 0 || expiration > MaxSecondsUntilExpiration {
		return nil, fmt.Errorf("%w: expiration %d not in [0, %d]", ErrMalformedPreamble, expiration, MaxSecondsUntilExpiration)
	}

	rest := stream[preambleLen:]
	if len(rest)%beaconLen != 0 {
		return nil, fmt.Errorf("%w: trailing %d bytes is not a multiple of %d", ErrMalformedBeacon, len(rest), beaconLen)
	}

	impl := c.impl()

	for offset := 0; offset < len(rest); offset += beaconLen {
		b := rest[offset : offset+beaconLen]
		ciphertext := b[:cipherLen]
		gotHmac := b[cipherLen:]

		sey, err := local.ECDH(senderEph)
		if err != nil {
			continue
		}
		km, err := deriveKey(sey, expirationRaw, 32)
		if err != nil {
			continue
		}
		iv, hkey := km[:16], km[16:32]

		plain, ok := impl.Open(hkey, iv, ciphertext)
		if !ok {
			continue
		}

		var candidateHash key.Hash
		copy(candidateHash[:], plain[:key.HashLen])

		candidatePub := addr(candidateHash)
		if candidatePub == nil {
			continue
		}

		sxy, err := local.ECDH(*candidatePub)
		if err != nil {
			continue
		}
		hkxy, err := deriveKey(sxy, expirationRaw, 32)
		if err != nil {
			continue
		}
		wantHmac := truncatedHMAC(hkxy, expirationRaw)

		if subtle.ConstantTimeCompare(wantHmac, gotHmac) != 1 {
			continue
		}

		return &candidateHash, nil
	}

	return nil, nil
}

func deriveKey(secret, salt []byte, length int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, nil)
	out := make([]byte, length)
	if _, err := r.Read(out); err != nil {
		return nil, fmt.Errorf("beacon: hkdf expand: %w", err)
	}
	return out, nil
}

func truncatedHMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)[:hmacLen]
}
