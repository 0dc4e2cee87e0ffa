// Package extproc bridges the messaging boundary to an external engine
// process. One engine process is spawned per identity; it emits lifecycle
// and message events as JSON lines on stdout and answers lookup requests
// written to its stdin. The engine owns the protocol itself (pairing,
// encryption, media transport); this side only shuttles structured data.
package extproc

import (
	"encoding/json"
	"fmt"

	"github.com/dmsavelyev/chatvault/internal/messaging"
)

// wireLine is one line of engine stdout. Exactly one of Event or Reply is
// set: lines with a reply id answer an earlier request, everything else is
// an event.
type wireLine struct {
	Event string `json:"event,omitempty"`
	Reply string `json:"reply,omitempty"`

	// event payload
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Direction string `json:"direction,omitempty"`
	ChatID    string `json:"chatId,omitempty"`
	AuthorID  string `json:"authorId,omitempty"`
	MsgID     string `json:"msgId,omitempty"`
	Type      string `json:"type,omitempty"`
	Body      string `json:"body,omitempty"`
	HasMedia  bool   `json:"hasMedia,omitempty"`
	MediaRef  string `json:"mediaRef,omitempty"`

	// reply payload
	Error  string          `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// request is one lookup written to engine stdin.
type request struct {
	ID  string `json:"id"`
	Op  string `json:"op"`
	Arg string `json:"arg"`
}

const (
	opContact = "contact"
	opChat    = "chat"
	opMedia   = "media"
)

// contactResult / chatResult / mediaResult mirror the engine's reply
// shapes for the three lookup ops.
type contactResult struct {
	PushName  string `json:"pushname,omitempty"`
	Name      string `json:"name,omitempty"`
	ShortName string `json:"shortName,omitempty"`
	Number    string `json:"number,omitempty"`
}

type chatResult struct {
	Name           string `json:"name,omitempty"`
	FormattedTitle string `json:"formattedTitle,omitempty"`
}

type mediaResult struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimetype,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// parseEvent converts an event line to its typed form. Unknown event names
// return (nil, nil); the engine may emit diagnostics this side ignores.
func parseEvent(l *wireLine) (messaging.Event, error) {
	switch l.Event {
	case "qr":
		return messaging.QREvent{Code: l.Code}, nil
	case "authenticated":
		return messaging.AuthenticatedEvent{}, nil
	case "ready":
		return messaging.ReadyEvent{}, nil
	case "auth_failure":
		return messaging.AuthFailureEvent{Reason: l.Reason}, nil
	case "disconnected":
		return messaging.DisconnectedEvent{Reason: l.Reason}, nil
	case "message":
		dir := messaging.DirectionIn
		if l.Direction == string(messaging.DirectionOut) {
			dir = messaging.DirectionOut
		}
		return messaging.MessageEvent{
			Direction: dir,
			ChatID:    l.ChatID,
			AuthorID:  l.AuthorID,
			MsgID:     l.MsgID,
			Type:      l.Type,
			Body:      l.Body,
			HasMedia:  l.HasMedia,
			MediaRef:  l.MediaRef,
		}, nil
	case "":
		return nil, fmt.Errorf("line carries neither event nor reply")
	default:
		return nil, nil
	}
}
