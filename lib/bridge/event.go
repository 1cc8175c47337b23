// Package bridge decouples feature modules from the transport. It is the
// only component that registers raw callbacks with the client; modules see
// normalized events and the action surface, never the connection itself.
package bridge

import (
	"time"

	"github.com/modryn/chathost/lib/transport"
)

// Kind tags a normalized event. Handlers match on kind instead of
// duck-typing the transport's payload shape.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMessageReceived
	KindMessageEdited
	KindMessageDeleted
	KindChatJoined
	KindChatLeft
)

var kindNames = map[Kind]string{
	KindMessageReceived: transport.EventMessage,
	KindMessageEdited:   transport.EventMessageEdited,
	KindMessageDeleted:  transport.EventMessageDeleted,
	KindChatJoined:      transport.EventChatJoined,
	KindChatLeft:        transport.EventChatLeft,
}

var kindsByName = map[string]Kind{}

func init() {
	for k, name := range kindNames {
		kindsByName[name] = k
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind resolves a wire kind name. The boolean is false for kinds the
// bridge does not support.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Kinds lists every supported event kind.
func Kinds() []Kind {
	return []Kind{
		KindMessageReceived,
		KindMessageEdited,
		KindMessageDeleted,
		KindChatJoined,
		KindChatLeft,
	}
}

// Event is the normalized shape handed to handlers. It is transient: valid
// for the duration of one dispatch, never stored by the bridge.
type Event struct {
	Kind      Kind
	Chat      string
	MessageID string
	Sender    string
	Text      string
	Time      time.Time
	Extra     map[string]string
}

func normalize(raw transport.RawEvent) Event {
	kind, ok := ParseKind(raw.Kind)
	if !ok {
		kind = KindUnknown
	}
	ev := Event{
		Kind:      kind,
		Chat:      raw.Chat,
		MessageID: raw.MessageID,
		Sender:    raw.Sender,
		Text:      raw.Text,
		Extra:     raw.Extra,
	}
	if raw.UnixTime != 0 {
		ev.Time = time.Unix(raw.UnixTime, 0).UTC()
	}
	return ev
}
