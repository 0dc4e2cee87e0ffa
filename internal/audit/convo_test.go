package audit

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsavelyev/chatvault/internal/cryptox"
)

func testCipher(t *testing.T) *cryptox.Cipher {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	c, err := cryptox.NewCipher(key)
	require.NoError(t, err)
	return c
}

func TestSafePart(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "5511888", "5511888"},
		{"slashes", "a/b\\c", "a_b_c"},
		{"reserved", `<>:"|?*`, "_______"},
		{"traversal", "../../etc/passwd", ".._.._etc_passwd"},
		{"whitespace collapse", "a \t\n b", "a b"},
		{"trimmed", "  x  ", "x"},
		{"control chars", "a\x01b", "a_b"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafePart(tt.in))
		})
	}
}

func TestSafePart_Capped(t *testing.T) {
	long := strings.Repeat("a", 500)
	assert.Len(t, SafePart(long), 180)
}

func TestIsGroupChat(t *testing.T) {
	assert.True(t, IsGroupChat("123-456@g.us"))
	assert.False(t, IsGroupChat("5511888@c.us"))
	assert.False(t, IsGroupChat("5511888"))
}

func TestNormalizeChatID(t *testing.T) {
	assert.Equal(t, "5511888", NormalizeChatID("5511888@c.us"))
	assert.Equal(t, "123-456", NormalizeChatID("123-456@g.us"))
	assert.Equal(t, "raw", NormalizeChatID("raw"))
	assert.Equal(t, "unknown", NormalizeChatID(""))
}

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "dm_5511888", ConversationKey("5511888@c.us"))
	assert.Equal(t, "group_123-456", ConversationKey("123-456@g.us"))
	assert.Equal(t, "dm_unknown", ConversationKey(""))

	// a dm with peer "X" and a group with id "X" never share a file
	assert.NotEqual(t, ConversationKey("X@c.us"), ConversationKey("X@g.us"))
}

func TestExtFromMime(t *testing.T) {
	assert.Equal(t, "png", ExtFromMime("image/png"))
	assert.Equal(t, "ogg", ExtFromMime("audio/ogg; codecs=opus"))
	assert.Equal(t, "bin", ExtFromMime(""))
	assert.Equal(t, "bin", ExtFromMime("weird"))
	assert.Equal(t, "bin", ExtFromMime("application/"))
}

func TestDirsLayout(t *testing.T) {
	d := Dirs{Base: "/data"}
	assert.Equal(t, "/data/logs_enc", d.Logs())
	assert.Equal(t, "/data/media_enc", d.Media())
	assert.Equal(t, "/data/media_manifest", d.Manifests())
	assert.Equal(t, "/data/remounted", d.Remounted())
}
