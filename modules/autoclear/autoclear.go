// Package autoclear removes messages from watched chats, either on a
// timer after each message arrives or in bulk on a .clear command.
package autoclear

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// Command triggers a bulk clear of the chat it is posted in.
const Command = ".clear"

// maxTracked bounds remembered message ids per chat.
const maxTracked = 200

// Config selects the chats to clean and the per-message lifetime. A zero
// TTL disables timed deletion; .clear still works.
type Config struct {
	Chats []string
	TTL   time.Duration
}

// Module is the auto-clearer.
type Module struct {
	cfg Config
	log *zap.Logger

	mu     sync.Mutex
	recent map[string][]string
}

// New builds the auto-clearer.
func New(cfg Config, log *zap.Logger) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{cfg: cfg, log: log, recent: make(map[string][]string)}
}

func (m *Module) Name() string { return "autoclear" }

func (m *Module) Help() string {
	return ".clear — deletes recently seen messages in this chat"
}

// Register subscribes a tracker for watched chats and the .clear command.
func (m *Module) Register(b *bridge.Bridge) error {
	if len(m.cfg.Chats) == 0 {
		return errors.New("autoclear: no chats configured")
	}

	watched := make(map[string]bool, len(m.cfg.Chats))
	for _, chat := range m.cfg.Chats {
		watched[chat] = true
	}

	b.SubscribeFunc(bridge.KindMessageReceived, m.onMessage,
		bridge.WithOwner(m.Name()),
		bridge.WithPredicate(func(ev bridge.Event) bool {
			return watched[ev.Chat] && strings.TrimSpace(ev.Text) != Command
		}))

	b.SubscribeFunc(bridge.KindMessageReceived, m.onClear,
		bridge.WithOwner(m.Name()),
		bridge.WithPredicate(func(ev bridge.Event) bool {
			return watched[ev.Chat] && strings.TrimSpace(ev.Text) == Command
		}))
	return nil
}

// onMessage remembers the message and, when a TTL is set, schedules its
// deletion.
func (m *Module) onMessage(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	m.track(ev.Chat, ev.MessageID)

	if m.cfg.TTL > 0 {
		chat, id := ev.Chat, ev.MessageID
		time.AfterFunc(m.cfg.TTL, func() {
			// Timer fires long after dispatch; the handler context is
			// gone by then.
			deleteCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := act.Delete(deleteCtx, chat, id); err != nil {
				m.log.Warn("timed delete failed", zap.String("chat", chat), zap.Error(err))
				return
			}
			m.untrack(chat, id)
		})
	}
	return nil
}

// onClear deletes every remembered message in the chat plus the command
// message itself.
func (m *Module) onClear(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	m.mu.Lock()
	ids := m.recent[ev.Chat]
	delete(m.recent, ev.Chat)
	m.mu.Unlock()

	var failed int
	for _, id := range ids {
		if err := act.Delete(ctx, ev.Chat, id); err != nil {
			failed++
		}
	}
	if err := act.Delete(ctx, ev.Chat, ev.MessageID); err != nil {
		failed++
	}

	m.log.Info("chat cleared",
		zap.String("chat", ev.Chat),
		zap.Int("deleted", len(ids)+1-failed),
		zap.Int("failed", failed))
	return nil
}

func (m *Module) track(chat, id string) {
	if id == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := append(m.recent[chat], id)
	if len(ids) > maxTracked {
		ids = ids[len(ids)-maxTracked:]
	}
	m.recent[chat] = ids
}

func (m *Module) untrack(chat, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.recent[chat]
	for i, existing := range ids {
		if existing == id {
			m.recent[chat] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}
