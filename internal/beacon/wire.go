package beacon

import "github.com/thaligo/thali/internal/key"

// Wire layout (byte-exact, see spec.md §6):
//
//	Preamble (73) = Ke.public (65) ‖ expirationSeconds (int64 BE, 8)
//	Beacon   (48) = ciphertext (32) ‖ hmac16 (16)
//	Stream        = Preamble ‖ n * Beacon
const (
	preambleLen   = key.PublicLen + 8
	keyIDPlainLen = key.HashLen // 16: the plaintext embedded in every beacon
	reservedLen   = 16          // reserved so a future AEAD tag needs no format change
	cipherLen     = keyIDPlainLen + reservedLen // 32
	hmacLen       = 16
	beaconLen     = cipherLen + hmacLen // 48
)
