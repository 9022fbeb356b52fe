// Package key implements the public/private key types used by the beacon
// codec: uncompressed secp256k1 ECDH keys, and the 16-byte key hash used as
// an identity surface throughout the registry, sender, and ACL layers.
package key

import (
	crand "crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// PublicLen is the length of an uncompressed secp256k1 public key.
const PublicLen = 65

// HashLen is the length of a KeyHash: the first 16 bytes of SHA-256(Public).
const HashLen = 16

// Public is an uncompressed secp256k1 ECDH public key.
type Public [PublicLen]byte

// IsZero reports whether p is the zero value.
func (p Public) IsZero() bool {
	return p == Public{}
}

// Debug returns a short hex representation, for logging only.
func (p Public) Debug() string {
	return fmt.Sprintf("%x", p[:8])
}

// Hash returns the KeyHash identity surface for p: the first 16 bytes of
// SHA-256(p).
func (p Public) Hash() Hash {
	sum := sha256.Sum256(p[:])
	var h Hash
	copy(h[:], sum[:HashLen])
	return h
}

func (p Public) point() (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(p[:])
}

// Hash is the first 16 bytes of SHA-256(PublicKey). Used as the identity
// surface for address books, PSK ids, and ACL checks.
type Hash [HashLen]byte

// Equal reports whether h and other are the same hash.
func (h Hash) Equal(other Hash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Private is a secp256k1 ECDH private key.
type Private struct {
	_   incomparable
	key secp256k1.PrivateKey
}

// incomparable marks Private as not usable with == or as a map key, per the
// same convention the rest of the pack uses for secret material.
type incomparable [0]func()

// New generates a new random secp256k1 private key.
func New() Private {
	var buf [32]byte
	if _, err := io.ReadFull(crand.Reader, buf[:]); err != nil {
		panic(fmt.Sprintf("key: unable to read random bytes from OS: %v", err))
	}

	scalar := new(secp256k1.ModNScalar)
	for {
		if overflow := scalar.SetBytes(&buf); overflow == 0 && !scalar.IsZero() {
			break
		}
		if _, err := io.ReadFull(crand.Reader, buf[:]); err != nil {
			panic(fmt.Sprintf("key: unable to read random bytes from OS: %v", err))
		}
	}

	return Private{key: *secp256k1.NewPrivateKey(scalar)}
}

// Public returns the Public for p.
func (p Private) Public() Public {
	pub := p.key.PubKey()
	var ret Public
	copy(ret[:], pub.SerializeUncompressed())
	return ret
}

// ECDH computes the shared X-coordinate secret between p and the remote
// public key rpk, returning SHA-256 of the X coordinate as is conventional
// for secp256k1 ECDH (there is no native "scalar multiply" output format, so
// the shared secret is derived by hashing the affine X coordinate).
func (p Private) ECDH(rpk Public) ([]byte, error) {
	remote, err := rpk.point()
	if err != nil {
		return nil, fmt.Errorf("key: invalid remote public key: %w", err)
	}

	var result secp256k1.JacobianPoint
	remote.AsJacobian(&result)
	secp256k1.ScalarMultNonConst(&p.key.Key, &result, &result)
	result.ToAffine()

	xBytes := result.X.Bytes()
	sum := sha256.Sum256(xBytes[:])
	return sum[:], nil
}
