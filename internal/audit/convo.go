// Package audit implements the encrypted capture pipeline: per-conversation
// append-only log files, the content-addressed media vault, the event
// normalizer that turns raw messaging events into log records, and the
// offline remount operations that decrypt it all back.
package audit

import (
	"path/filepath"
	"strings"
)

const (
	groupChatSuffix  = "@g.us"
	directChatSuffix = "@c.us"

	dmKeyPrefix    = "dm_"
	groupKeyPrefix = "group_"

	// maxSafePartLen caps sanitized path segments. Two distinct inputs can
	// collide at the truncation boundary; identifiers on this network are
	// far shorter in practice.
	maxSafePartLen = 180
)

// SafePart sanitizes v for use as a single path segment: characters outside
// the allow-list are replaced with "_", runs of whitespace collapse to one
// space, and the result is trimmed and capped at 180 characters.
func SafePart(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	space := false
	for _, r := range v {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			space = true
		case r < 0x20 || strings.ContainsRune(`<>:"/\|?*`, r):
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteByte('_')
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	if len(s) > maxSafePartLen {
		s = s[:maxSafePartLen]
	}
	return s
}

// IsGroupChat reports whether a raw chat identifier follows the network's
// group naming convention.
func IsGroupChat(chatID string) bool {
	return strings.HasSuffix(chatID, groupChatSuffix)
}

// NormalizeChatID strips the network domain suffix from a raw chat
// identifier. An empty identifier normalizes to "unknown".
func NormalizeChatID(chatID string) string {
	if chatID == "" {
		return "unknown"
	}
	s := strings.TrimSuffix(chatID, directChatSuffix)
	return strings.TrimSuffix(s, groupChatSuffix)
}

// ConversationKey derives the stable per-conversation key: "dm_<peer>" for
// direct chats, "group_<id>" for groups. The mapping is deterministic and
// injective over sanitized identifiers.
func ConversationKey(chatID string) string {
	if IsGroupChat(chatID) {
		return groupKeyPrefix + NormalizeChatID(chatID)
	}
	return dmKeyPrefix + NormalizeChatID(chatID)
}

// ExtFromMime extracts a file extension from a mime type
// ("image/png" -> "png", "" -> "bin").
func ExtFromMime(mime string) string {
	if mime == "" {
		return "bin"
	}
	parts := strings.SplitN(mime, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return "bin"
	}
	return strings.SplitN(parts[1], ";", 2)[0]
}

// Dirs is the on-disk layout of one audit vault.
type Dirs struct {
	Base string
}

// Logs is the root of the per-identity encrypted conversation logs.
func (d Dirs) Logs() string { return filepath.Join(d.Base, "logs_enc") }

// Media is the root of the per-identity encrypted media blobs.
func (d Dirs) Media() string { return filepath.Join(d.Base, "media_enc") }

// Manifests is the root of the per-identity plaintext media manifests.
func (d Dirs) Manifests() string { return filepath.Join(d.Base, "media_manifest") }

// Remounted is where offline tools place decrypted output.
func (d Dirs) Remounted() string { return filepath.Join(d.Base, "remounted") }
