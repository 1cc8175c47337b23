// Package joinlog records chat membership changes.
package joinlog

import (
	"context"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// Module logs ChatJoined and ChatLeft events.
type Module struct {
	log *zap.Logger
}

// New builds the join/leave logger.
func New(log *zap.Logger) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{log: log}
}

func (m *Module) Name() string { return "joinlog" }

func (m *Module) Help() string { return "" }

// Register subscribes to membership events.
func (m *Module) Register(b *bridge.Bridge) error {
	b.SubscribeFunc(bridge.KindChatJoined, m.onJoin, bridge.WithOwner(m.Name()))
	b.SubscribeFunc(bridge.KindChatLeft, m.onLeave, bridge.WithOwner(m.Name()))
	return nil
}

func (m *Module) onJoin(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	m.log.Info("joined chat",
		zap.String("chat", ev.Chat),
		zap.String("member", ev.Sender))
	return nil
}

func (m *Module) onLeave(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	m.log.Info("left chat",
		zap.String("chat", ev.Chat),
		zap.String("member", ev.Sender))
	return nil
}
