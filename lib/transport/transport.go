// Package transport defines the boundary between the host and the remote
// chat service. The event bridge is the only component that registers raw
// callbacks here; everything above it works with normalized events.
package transport

import (
	"context"
	"errors"
)

// Wire-level event kinds. A client delivers at most one callback per kind.
const (
	EventMessage        = "message"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
	EventChatJoined     = "chat_joined"
	EventChatLeft       = "chat_left"
)

// EventKinds lists every kind a client can deliver.
var EventKinds = []string{
	EventMessage,
	EventMessageEdited,
	EventMessageDeleted,
	EventChatJoined,
	EventChatLeft,
}

// ErrClientClosed is returned by operations on a closed client.
var ErrClientClosed = errors.New("transport: client is closed")

// RawEvent is the transport's loosely shaped event payload. It lives only
// for the duration of one delivery; the bridge normalizes it before fan-out.
type RawEvent struct {
	Kind      string
	Chat      string
	MessageID string
	Sender    string
	Text      string
	UnixTime  int64
	Extra     map[string]string
}

// RawHandler consumes one raw event.
type RawHandler func(RawEvent)

// Client is a session with the remote chat service. Implementations must be
// safe for concurrent use; outbound actions may be called from many handler
// goroutines at once.
type Client interface {
	// Connect dials and authenticates. It may be called again after the
	// connection drops to re-establish the session.
	Connect(ctx context.Context) error

	// Handle registers the raw callback for one event kind. At most one
	// callback per kind; a later call replaces the earlier one.
	Handle(kind string, fn RawHandler)

	// Send posts a message and returns the id assigned by the service.
	Send(ctx context.Context, chat, text string) (string, error)

	// Edit replaces the text of an existing message.
	Edit(ctx context.Context, chat, messageID, text string) error

	// Delete removes a message.
	Delete(ctx context.Context, chat, messageID string) error

	// Done is closed when the current session is lost. It blocks forever
	// before the first Connect.
	Done() <-chan struct{}

	// Close tears the session down. The client cannot be reused afterwards.
	Close() error
}
