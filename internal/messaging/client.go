// Package messaging defines the boundary to the external messaging client.
//
// The protocol engine itself (connect, authenticate, deliver messages,
// resolve metadata, download media) lives outside this repository; the
// capture layer consumes it through the Client interface as a stream of
// events plus a handful of lookup calls. Events for one identity are
// delivered in order on a single channel.
package messaging

import "context"

// Direction of an intercepted message relative to the audited identity.
type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

// Event is one occurrence delivered by the external client. The concrete
// types below are the full set the orchestration layer reacts to.
type Event interface {
	isEvent()
}

// QREvent carries a pairing challenge that must be rendered for the user.
type QREvent struct {
	Code string
}

// AuthenticatedEvent signals that credentials were accepted.
type AuthenticatedEvent struct{}

// ReadyEvent signals that the connection is fully up.
type ReadyEvent struct{}

// AuthFailureEvent signals rejected credentials.
type AuthFailureEvent struct {
	Reason string
}

// DisconnectedEvent signals connection loss.
type DisconnectedEvent struct {
	Reason string
}

// MessageEvent is one inbound or outbound message.
type MessageEvent struct {
	Direction Direction
	// ChatID is the raw network chat identifier, including the network
	// domain suffix (e.g. "5511888@c.us", "123-456@g.us").
	ChatID string
	// AuthorID is the raw identifier of the true sender inside a group
	// chat; empty for direct conversations.
	AuthorID string
	MsgID    string
	Type     string
	Body     string
	HasMedia bool
	// MediaRef is an opaque handle understood by DownloadMedia.
	MediaRef string
}

func (QREvent) isEvent()            {}
func (AuthenticatedEvent) isEvent() {}
func (ReadyEvent) isEvent()         {}
func (AuthFailureEvent) isEvent()   {}
func (DisconnectedEvent) isEvent()  {}
func (MessageEvent) isEvent()       {}

// Contact is the metadata the network exposes for a peer.
type Contact struct {
	PushName  string
	Name      string
	ShortName string
	Number    string
}

// DisplayName picks the best available human-readable name, falling back
// to the bare number. An empty string means nothing usable was resolved.
func (c *Contact) DisplayName() string {
	if c == nil {
		return ""
	}
	for _, s := range []string{c.PushName, c.Name, c.ShortName, c.Number} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Chat is the metadata the network exposes for a (group) chat.
type Chat struct {
	Name           string
	FormattedTitle string
}

// DisplayName returns the chat title, or "" if none is set.
func (c *Chat) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.Name != "" {
		return c.Name
	}
	return c.FormattedTitle
}

// Media is a downloaded attachment payload.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// Client is one live connection to the messaging network for a single
// identity. Exactly one Client instance exists per identity at any time;
// the session manager owns it.
type Client interface {
	// Initialize asynchronously brings the connection up. Lifecycle
	// progress is reported on Events.
	Initialize(ctx context.Context) error

	// Destroy tears the connection down and closes the event channel.
	Destroy(ctx context.Context) error

	// Events returns the ordered per-identity event stream.
	Events() <-chan Event

	GetContactByID(ctx context.Context, id string) (*Contact, error)
	GetChatByID(ctx context.Context, id string) (*Chat, error)
	DownloadMedia(ctx context.Context, ref string) (*Media, error)
}

// Factory constructs a Client scoped to one identity's durable credentials
// under credsDir. The session manager calls it once per live identity.
type Factory func(identityID, credsDir string) Client
