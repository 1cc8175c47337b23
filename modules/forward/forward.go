// Package forward copies messages arriving in watched chats to a target
// chat.
package forward

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// Config selects the chats to watch and the chat to copy into.
type Config struct {
	Sources []string
	Target  string
}

// Module is the auto-forwarder.
type Module struct {
	cfg Config
	log *zap.Logger
}

// New builds the forwarder.
func New(cfg Config, log *zap.Logger) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{cfg: cfg, log: log}
}

func (m *Module) Name() string { return "forward" }

func (m *Module) Help() string {
	return "forward — copies messages from watched chats to the target chat"
}

// Register subscribes to incoming messages in the watched chats.
func (m *Module) Register(b *bridge.Bridge) error {
	if m.cfg.Target == "" {
		return errors.New("forward: target chat not configured")
	}
	if len(m.cfg.Sources) == 0 {
		return errors.New("forward: no source chats configured")
	}

	watched := make(map[string]bool, len(m.cfg.Sources))
	for _, chat := range m.cfg.Sources {
		watched[chat] = true
	}

	b.SubscribeFunc(bridge.KindMessageReceived, m.onMessage,
		bridge.WithOwner(m.Name()),
		bridge.WithPredicate(func(ev bridge.Event) bool {
			// Never re-forward out of the target chat.
			return watched[ev.Chat] && ev.Chat != m.cfg.Target
		}))
	return nil
}

func (m *Module) onMessage(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	text := fmt.Sprintf("[%s] %s: %s", ev.Chat, ev.Sender, ev.Text)
	if _, err := act.Send(ctx, m.cfg.Target, text); err != nil {
		return err
	}
	m.log.Debug("forwarded message",
		zap.String("from", ev.Chat),
		zap.String("to", m.cfg.Target))
	return nil
}
