package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging"
)

// Media markers recorded in the transcript text when capture of an
// attachment did not produce a stored blob. The transcript always records
// that media was expected, even when capture failed.
const (
	markerDownloadFailed = "download_failed"
	markerOutboundNoData = "outbound_no_data"
	markerOutboundError  = "outbound_error"
)

// Lookup is the slice of the external client the normalizer needs:
// metadata resolution and media download.
type Lookup interface {
	GetContactByID(ctx context.Context, id string) (*messaging.Contact, error)
	GetChatByID(ctx context.Context, id string) (*messaging.Chat, error)
	DownloadMedia(ctx context.Context, ref string) (*messaging.Media, error)
}

// Normalizer turns raw message events into sealed log records, routing
// attachments through the vault. One normalizer serves all identities;
// it holds no per-identity state.
type Normalizer struct {
	writer        *LogWriter
	vault         *Vault
	captureGroups bool
	logger        logging.Logger
}

func NewNormalizer(writer *LogWriter, vault *Vault, captureGroups bool, logger logging.Logger) *Normalizer {
	return &Normalizer{
		writer:        writer,
		vault:         vault,
		captureGroups: captureGroups,
		logger:        logger.With("module", "normalizer"),
	}
}

// resolveContactName resolves a peer's display name, tolerating lookup
// failure: a record with an empty name is better than no record.
func (n *Normalizer) resolveContactName(ctx context.Context, lookup Lookup, id string) string {
	c, err := lookup.GetContactByID(ctx, id)
	if err != nil {
		return ""
	}
	return c.DisplayName()
}

func (n *Normalizer) resolveGroupName(ctx context.Context, lookup Lookup, id string) string {
	ch, err := lookup.GetChatByID(ctx, id)
	if err != nil {
		return ""
	}
	return ch.DisplayName()
}

// withMarker appends a media marker to the message text.
func withMarker(text, code string) string {
	marker := "[MEDIA_CODE:" + code + "]"
	if text == "" {
		return marker
	}
	return text + " " + marker
}

// captureMedia downloads and stores an attachment, returning the updated
// text and the media reference. On failure the text gets a reason marker
// instead of a code. A vault write failure on an inbound message is the
// one case that fails the whole record.
func (n *Normalizer) captureMedia(ctx context.Context, identityID, convoKey string, lookup Lookup, ev messaging.MessageEvent, text string) (string, *MediaInfo, error) {
	if ev.Direction == messaging.DirectionOut {
		media, err := lookup.DownloadMedia(ctx, ev.MediaRef)
		if err != nil {
			return withMarker(text, markerOutboundError), nil, nil
		}
		if media == nil {
			return withMarker(text, markerOutboundNoData), nil, nil
		}
		m, err := n.vault.Store(identityID, convoKey, media.Data, media.MimeType, media.Filename, ev.MsgID)
		if err != nil {
			n.logger.Error(ctx, "outbound media store failed", "identity", identityID, "err", err.Error())
			return withMarker(text, markerOutboundError), nil, nil
		}
		return withMarker(text, m.MediaCode), &MediaInfo{MediaCode: m.MediaCode, MimeType: m.MimeType, Size: m.Size}, nil
	}

	media, err := lookup.DownloadMedia(ctx, ev.MediaRef)
	if err != nil || media == nil {
		return withMarker(text, markerDownloadFailed), nil, nil
	}
	m, err := n.vault.Store(identityID, convoKey, media.Data, media.MimeType, media.Filename, ev.MsgID)
	if err != nil {
		return text, nil, fmt.Errorf("store media: %w", err)
	}
	return withMarker(text, m.MediaCode), &MediaInfo{MediaCode: m.MediaCode, MimeType: m.MimeType, Size: m.Size}, nil
}

// HandleMessage builds and appends the log record for one message event.
// Group events are skipped entirely when group capture is disabled.
func (n *Normalizer) HandleMessage(ctx context.Context, identityID string, lookup Lookup, ev messaging.MessageEvent) error {
	isGroup := IsGroupChat(ev.ChatID)
	if isGroup && !n.captureGroups {
		return nil
	}

	var chatName string
	if isGroup {
		chatName = n.resolveGroupName(ctx, lookup, ev.ChatID)
	} else {
		chatName = n.resolveContactName(ctx, lookup, ev.ChatID)
	}

	convoKey := ConversationKey(ev.ChatID)
	peerNumber := NormalizeChatID(ev.ChatID)

	rec := &Record{
		TS:         time.Now().UTC(),
		Direction:  ev.Direction,
		ClientID:   identityID,
		ConvoKey:   convoKey,
		ChatID:     ev.ChatID,
		ChatName:   chatName,
		PeerNumber: peerNumber,
		PeerName:   chatName,
		MsgID:      ev.MsgID,
		Type:       ev.Type,
		Text:       ev.Body,
	}

	if isGroup {
		rec.GroupID = ev.ChatID
		rec.GroupName = chatName
		if ev.AuthorID != "" {
			rec.AuthorID = ev.AuthorID
			rec.AuthorNumber = NormalizeChatID(ev.AuthorID)
			rec.AuthorName = n.resolveContactName(ctx, lookup, ev.AuthorID)
		}
	} else {
		rec.RemoteNumber = peerNumber
		rec.RemoteName = chatName
	}

	if ev.HasMedia {
		text, media, err := n.captureMedia(ctx, identityID, convoKey, lookup, ev, ev.Body)
		if err != nil {
			return err
		}
		rec.Text = text
		rec.Media = media
	}

	if err := n.writer.Append(identityID, convoKey, rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}
