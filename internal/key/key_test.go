package key

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestECDHSymmetric(t *testing.T) {
	a := New()
	b := New()

	sa, err := a.ECDH(b.Public())
	require.NoError(t, err)

	sb, err := b.ECDH(a.Public())
	require.NoError(t, err)

	assert.Equal(t, sa, sb, "ECDH shared secret must be symmetric between both parties")
}

func TestPublicTextRoundTrip(t *testing.T) {
	p := New().Public()

	text, err := p.MarshalText()
	require.NoError(t, err)

	var got Public
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, p, got)
}

func TestHashTextRoundTrip(t *testing.T) {
	h := New().Public().Hash()

	text, err := h.MarshalText()
	require.NoError(t, err)

	var got Hash
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, h, got)
}

func TestHashIsStableAndShort(t *testing.T) {
	p := New().Public()
	h1 := p.Hash()
	h2 := p.Hash()
	assert.True(t, h1.Equal(h2))
	assert.Equal(t, HashLen, len(h1))
}
