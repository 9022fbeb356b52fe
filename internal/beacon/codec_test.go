package beacon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thaligo/thali/internal/key"
)

func addressBookOf(pubs ...key.Public) AddressBook {
	m := make(map[key.Hash]key.Public, len(pubs))
	for _, p := range pubs {
		m[p.Hash()] = p
	}
	return func(h key.Hash) *key.Public {
		p, ok := m[h]
		if !ok {
			return nil
		}
		return &p
	}
}

func emptyAddressBook(key.Hash) *key.Public { return nil }

func TestHappyPath(t *testing.T) {
	alice := key.New()
	bob := key.New()

	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate([]key.Public{bob.Public()}, alice, 3600)
	require.NoError(t, err)

	got, err := codec.Parse(stream, bob, addressBookOf(alice.Public()))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.Public().Hash(), *got)

	// With an empty address book, nothing should match.
	got, err = codec.Parse(stream, bob, emptyAddressBook)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWrongRecipient(t *testing.T) {
	alice := key.New()
	bob := key.New()
	carol := key.New()

	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate([]key.Public{carol.Public()}, alice, 3600)
	require.NoError(t, err)

	got, err := codec.Parse(stream, bob, addressBookOf(alice.Public()))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmptyRecipientListProducesEmptyBeacons(t *testing.T) {
	alice := key.New()
	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate(nil, alice, 60)
	assert.ErrorIs(t, err, ErrArgumentNull)
	assert.Nil(t, stream)

	stream, err = codec.Generate([]key.Public{}, alice, 60)
	require.NoError(t, err)
	assert.Len(t, stream, preambleLen)
}

func TestGenerateRejectsExpirationOutOfRange(t *testing.T) {
	alice := key.New()
	bob := key.New()
	codec := NewCodec(DefaultCipher)

	_, err := codec.Generate([]key.Public{bob.Public()}, alice, -1)
	assert.ErrorIs(t, err, ErrArgumentRange)

	_, err = codec.Generate([]key.Public{bob.Public()}, alice, MaxSecondsUntilExpiration+1)
	assert.ErrorIs(t, err, ErrArgumentRange)

	_, err = codec.Generate([]key.Public{bob.Public()}, alice, MaxSecondsUntilExpiration)
	assert.NoError(t, err)

	_, err = codec.Generate([]key.Public{bob.Public()}, alice, 0)
	assert.NoError(t, err)
}

func TestParseRejectsShortPreamble(t *testing.T) {
	codec := NewCodec(DefaultCipher)
	local := key.New()

	_, err := codec.Parse(make([]byte, preambleLen-1), local, emptyAddressBook)
	assert.ErrorIs(t, err, ErrMalformedPreamble)
}

func TestParseRejectsMisalignedBeaconTrailer(t *testing.T) {
	alice := key.New()
	bob := key.New()
	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate([]key.Public{bob.Public()}, alice, 3600)
	require.NoError(t, err)

	_, err = codec.Parse(stream[:len(stream)-1], bob, emptyAddressBook)
	assert.ErrorIs(t, err, ErrMalformedBeacon)
}

func TestParseRejectsOutOfRangeExpiration(t *testing.T) {
	alice := key.New()
	bob := key.New()
	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate([]key.Public{bob.Public()}, alice, 10)
	require.NoError(t, err)

	// Corrupt the expiration field in the preamble to be out of range.
	for i := key.PublicLen; i < preambleLen; i++ {
		stream[i] = 0xff
	}

	_, err = codec.Parse(stream, bob, addressBookOf(alice.Public()))
	assert.ErrorIs(t, err, ErrMalformedPreamble)
}

func TestMultipleRecipientsEachMatchOwnBeacon(t *testing.T) {
	alice := key.New()
	bob := key.New()
	carol := key.New()
	codec := NewCodec(DefaultCipher)

	stream, err := codec.Generate([]key.Public{bob.Public(), carol.Public()}, alice, 3600)
	require.NoError(t, err)
	assert.Len(t, stream, preambleLen+2*beaconLen)

	gotBob, err := codec.Parse(stream, bob, addressBookOf(alice.Public()))
	require.NoError(t, err)
	require.NotNil(t, gotBob)
	assert.Equal(t, alice.Public().Hash(), *gotBob)

	gotCarol, err := codec.Parse(stream, carol, addressBookOf(alice.Public()))
	require.NoError(t, err)
	require.NotNil(t, gotCarol)
	assert.Equal(t, alice.Public().Hash(), *gotCarol)
}

func TestLegacyCTRCipherRoundTrips(t *testing.T) {
	alice := key.New()
	bob := key.New()
	codec := NewCodec(CTRLegacy)

	stream, err := codec.Generate([]key.Public{bob.Public()}, alice, 120)
	require.NoError(t, err)

	got, err := codec.Parse(stream, bob, addressBookOf(alice.Public()))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.Public().Hash(), *got)
}

func TestMismatchedCiphersDoNotInteroperate(t *testing.T) {
	alice := key.New()
	bob := key.New()

	stream, err := NewCodec(DefaultCipher).Generate([]key.Public{bob.Public()}, alice, 120)
	require.NoError(t, err)

	got, err := NewCodec(CTRLegacy).Parse(stream, bob, addressBookOf(alice.Public()))
	require.NoError(t, err)
	assert.Nil(t, got, "a GCM beacon parsed with the legacy CTR cipher must not falsely match")
}
