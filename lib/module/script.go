package module

import (
	"context"
	"fmt"
	"sync"

	lua "github.com/Shopify/go-lua"
	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// refsGlobal holds subscribed handler and predicate functions inside a
// script's own state, keyed by a counter.
const refsGlobal = "__chathost_refs"

// script is one loaded Lua module. The interpreter state is not safe for
// concurrent use, so every entry into it goes through mu; that serializes
// handlers within one script without coupling scripts to each other.
type script struct {
	name   string
	bridge *bridge.Bridge
	log    *zap.Logger
	help   string

	mu      sync.Mutex
	state   *lua.State
	nextRef int
	handles map[string]bridge.Handle
}

func newScript(name string, b *bridge.Bridge, log *zap.Logger) *script {
	state := lua.NewState()
	lua.OpenLibraries(state)
	state.NewTable()
	state.SetGlobal(refsGlobal)

	return &script{
		name:    name,
		bridge:  b,
		log:     log,
		state:   state,
		handles: make(map[string]bridge.Handle),
	}
}

// pushBridgeTable pushes the binding table handed to the script's entry
// point. This table is the script's entire vocabulary; in particular it
// carries no reference to the connection, the loader, or other scripts.
func (s *script) pushBridgeTable() {
	s.state.NewTable()
	lua.SetFunctions(s.state, []lua.RegistryFunction{
		{Name: "subscribe", Function: s.luaSubscribe},
		{Name: "unsubscribe", Function: s.luaUnsubscribe},
		{Name: "send", Function: s.luaSend},
		{Name: "edit", Function: s.luaEdit},
		{Name: "delete", Function: s.luaDelete},
		{Name: "log", Function: s.luaLog},
	}, 0)
}

// stash copies the value at index into the refs table and returns its key.
func (s *script) stash(l *lua.State, index int) int {
	index = l.AbsIndex(index)
	s.nextRef++
	l.Global(refsGlobal)
	l.PushValue(index)
	l.RawSetInt(-2, s.nextRef)
	l.Pop(1)
	return s.nextRef
}

// luaSubscribe implements bridge.subscribe(kind, handler [, predicate]).
// It returns a handle string usable with bridge.unsubscribe.
func (s *script) luaSubscribe(l *lua.State) int {
	kindName := lua.CheckString(l, 1)
	kind, ok := bridge.ParseKind(kindName)
	if !ok {
		lua.Errorf(l, "unknown event kind %q", kindName)
	}
	if l.TypeOf(2) != lua.TypeFunction {
		lua.ArgumentError(l, 2, "handler function expected")
	}

	handlerRef := s.stash(l, 2)
	opts := []bridge.SubscribeOption{bridge.WithOwner(s.name)}
	if l.TypeOf(3) == lua.TypeFunction {
		predRef := s.stash(l, 3)
		opts = append(opts, bridge.WithPredicate(func(ev bridge.Event) bool {
			return s.callPredicate(predRef, ev)
		}))
	}

	handle := s.bridge.Subscribe(kind, bridge.HandlerFunc(
		func(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
			return s.callHandler(handlerRef, ev)
		}), opts...)

	s.handles[string(handle)] = handle
	l.PushString(string(handle))
	return 1
}

// luaUnsubscribe implements bridge.unsubscribe(handle). Unknown or
// already removed handles are a no-op.
func (s *script) luaUnsubscribe(l *lua.State) int {
	id := lua.CheckString(l, 1)
	if handle, ok := s.handles[id]; ok {
		s.bridge.Unsubscribe(handle)
		delete(s.handles, id)
	}
	return 0
}

// luaSend implements bridge.send(chat, text) -> message_id.
func (s *script) luaSend(l *lua.State) int {
	chat := lua.CheckString(l, 1)
	text := lua.CheckString(l, 2)
	id, err := s.bridge.Actions().Send(context.Background(), chat, text)
	if err != nil {
		lua.Errorf(l, "%v", err)
	}
	l.PushString(id)
	return 1
}

// luaEdit implements bridge.edit(chat, message_id, text).
func (s *script) luaEdit(l *lua.State) int {
	chat := lua.CheckString(l, 1)
	id := lua.CheckString(l, 2)
	text := lua.CheckString(l, 3)
	if err := s.bridge.Actions().Edit(context.Background(), chat, id, text); err != nil {
		lua.Errorf(l, "%v", err)
	}
	return 0
}

// luaDelete implements bridge.delete(chat, message_id).
func (s *script) luaDelete(l *lua.State) int {
	chat := lua.CheckString(l, 1)
	id := lua.CheckString(l, 2)
	if err := s.bridge.Actions().Delete(context.Background(), chat, id); err != nil {
		lua.Errorf(l, "%v", err)
	}
	return 0
}

// luaLog implements bridge.log(message).
func (s *script) luaLog(l *lua.State) int {
	s.log.Info(lua.CheckString(l, 1))
	return 0
}

// callHandler runs a stashed handler function with the event table. The
// caller is a bridge dispatch goroutine; errors flow back to the bridge's
// failure record.
func (s *script) callHandler(ref int, ev bridge.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.state.SetTop(0)

	s.state.Global(refsGlobal)
	s.state.RawGetInt(-1, ref)
	if s.state.TypeOf(-1) != lua.TypeFunction {
		return fmt.Errorf("module: script %s: handler ref %d vanished", s.name, ref)
	}
	s.pushEvent(ev)
	if err := s.state.ProtectedCall(1, 0, 0); err != nil {
		return fmt.Errorf("module: script %s handler: %w", s.name, err)
	}
	return nil
}

// callPredicate evaluates a stashed predicate. A predicate that raises
// counts as no match.
func (s *script) callPredicate(ref int, ev bridge.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.state.SetTop(0)

	s.state.Global(refsGlobal)
	s.state.RawGetInt(-1, ref)
	if s.state.TypeOf(-1) != lua.TypeFunction {
		return false
	}
	s.pushEvent(ev)
	if err := s.state.ProtectedCall(1, 1, 0); err != nil {
		s.log.Warn("predicate failed", zap.Error(err))
		return false
	}
	return s.state.ToBoolean(-1)
}

// pushEvent builds the Lua table handed to handlers and predicates.
func (s *script) pushEvent(ev bridge.Event) {
	l := s.state
	l.NewTable()
	l.PushString(ev.Kind.String())
	l.SetField(-2, "kind")
	l.PushString(ev.Chat)
	l.SetField(-2, "chat")
	l.PushString(ev.MessageID)
	l.SetField(-2, "message_id")
	l.PushString(ev.Sender)
	l.SetField(-2, "sender")
	l.PushString(ev.Text)
	l.SetField(-2, "text")
	if !ev.Time.IsZero() {
		l.PushNumber(float64(ev.Time.Unix()))
		l.SetField(-2, "time")
	}
	if len(ev.Extra) > 0 {
		l.NewTable()
		for k, v := range ev.Extra {
			l.PushString(v)
			l.SetField(-2, k)
		}
		l.SetField(-2, "extra")
	}
}
