package beacon

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// Cipher encrypts and decrypts the fixed-size (cipherLen-byte) plaintext
// embedded in a beacon, given a 16-byte HKey and a 16-byte IV derived via
// HKDF from the ephemeral ECDH secret. Parametrizing the cipher lets this
// package default to an AEAD (per spec.md §9 Open Question (i)) while still
// being able to interoperate with the legacy stream-cipher wire format,
// which never changed size precisely so this migration wouldn't have to.
type Cipher interface {
	// Seal encrypts the keyIDPlainLen-byte plaintext into a cipherLen-byte
	// ciphertext using hkey/iv.
	Seal(hkey, iv, plaintext []byte) ([]byte, error)

	// Open recovers the keyIDPlainLen-byte plaintext from a cipherLen-byte
	// ciphertext using hkey/iv. ok is false on any authentication failure
	// (AEAD tag mismatch); CTRLegacy never fails here since it has no tag,
	// relying on the beacon's HMAC for integrity instead.
	Open(hkey, iv, ciphertext []byte) (plaintext []byte, ok bool)
}

// DefaultCipher is AES-128-GCM, the migration target named in spec.md §9.
var DefaultCipher Cipher = gcmCipher{}

// CTRLegacy is the original AES-128-CTR construction: no authentication tag,
// the beacon's outer HMAC is the only integrity check. Kept for wire
// interop with beacons generated before the AEAD migration.
var CTRLegacy Cipher = ctrCipher{}

type gcmCipher struct{}

func (gcmCipher) Seal(hkey, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(hkey)
	if err != nil {
		return nil, fmt.Errorf("beacon: aes key setup: %w", err)
	}
	// A full-length nonce avoids truncating the HKDF-derived IV.
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("beacon: gcm setup: %w", err)
	}
	// Seal appends the 16-byte tag right after the ciphertext, producing
	// exactly cipherLen bytes for a keyIDPlainLen-byte plaintext.
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

func (gcmCipher) Open(hkey, iv, ciphertext []byte) ([]byte, bool) {
	block, err := aes.NewCipher(hkey)
	if err != nil {
		return nil, false
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, false
	}
	plain, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, false
	}
	return plain, true
}

type ctrCipher struct{}

func (ctrCipher) Seal(hkey, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(hkey)
	if err != nil {
		return nil, fmt.Errorf("beacon: aes key setup: %w", err)
	}
	// Encrypt the plaintext padded out to cipherLen with reserved zero
	// bytes, so CTR and GCM beacons are indistinguishable on the wire.
	padded := make([]byte, cipherLen)
	copy(padded, plaintext)

	out := make([]byte, cipherLen)
	cipher.NewCTR(block, iv).XORKeyStream(out, padded)
	return out, nil
}

func (ctrCipher) Open(hkey, iv, ciphertext []byte) ([]byte, bool) {
	block, err := aes.NewCipher(hkey)
	if err != nil {
		return nil, false
	}
	out := make([]byte, cipherLen)
	cipher.NewCTR(block, iv).XORKeyStream(out, ciphertext)
	return out[:keyIDPlainLen], true
}
