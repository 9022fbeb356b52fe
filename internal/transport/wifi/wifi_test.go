package wifi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSNFormat(t *testing.T) {
	assert.Equal(t, "node-1:42", usnOf("node-1", 42))
}

func TestParseNotifyRoundTrip(t *testing.T) {
	notify := "NOTIFY * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nNTS: ssdp:alive\r\nUSN: node-7:13\r\n\r\n"
	peer, gen, ok := parseNotify([]byte(notify))
	require.True(t, ok)
	assert.Equal(t, "node-7", peer)
	assert.Equal(t, uint32(13), gen)
}

func TestParseNotifyRejectsMalformedUSN(t *testing.T) {
	_, _, ok := parseNotify([]byte("NOTIFY * HTTP/1.1\r\nUSN: not-a-generation\r\n\r\n"))
	assert.False(t, ok)
}

func TestParseNotifyMissingUSN(t *testing.T) {
	_, _, ok := parseNotify([]byte("NOTIFY * HTTP/1.1\r\n\r\n"))
	assert.False(t, ok)
}
