package audit

import (
	"time"

	"github.com/dmsavelyev/chatvault/internal/messaging"
)

// MediaInfo references a stored media item from a log record.
type MediaInfo struct {
	MediaCode string `json:"mediaCode"`
	MimeType  string `json:"mimetype,omitempty"`
	Size      int64  `json:"size"`
}

// Record is the plaintext shape of one conversation log entry. It is
// created once per intercepted event, immediately serialized and sealed,
// and never mutated afterwards.
//
// The remoteNumber/remoteName pair duplicates peerNumber/peerName for
// direct conversations only; older transcript consumers rely on it.
type Record struct {
	TS        time.Time           `json:"ts"`
	Direction messaging.Direction `json:"direction"`
	ClientID  string              `json:"clientId"`
	ConvoKey  string              `json:"convoKey"`

	ChatID     string `json:"chatId"`
	ChatName   string `json:"chatName,omitempty"`
	PeerNumber string `json:"peerNumber"`
	PeerName   string `json:"peerName,omitempty"`

	RemoteNumber string `json:"remoteNumber,omitempty"`
	RemoteName   string `json:"remoteName,omitempty"`

	GroupID      string `json:"groupId,omitempty"`
	GroupName    string `json:"groupName,omitempty"`
	AuthorID     string `json:"authorId,omitempty"`
	AuthorNumber string `json:"authorNumber,omitempty"`
	AuthorName   string `json:"authorName,omitempty"`

	MsgID string `json:"msgId,omitempty"`
	Type  string `json:"type,omitempty"`
	Text  string `json:"text"`

	Media *MediaInfo `json:"media"`
}
