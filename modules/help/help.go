// Package help answers the .help command with every module's help line.
package help

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// Command triggers the help reply.
const Command = ".help"

// Source supplies help lines; the registry and the script loader both
// qualify. Collected lazily so modules loaded after this one still show up.
type Source func() []string

// Module replies to .help with the aggregated help text.
type Module struct {
	log     *zap.Logger
	sources []Source
}

// New builds the help module over the given help sources.
func New(log *zap.Logger, sources ...Source) *Module {
	if log == nil {
		log = zap.NewNop()
	}
	return &Module{log: log, sources: sources}
}

func (m *Module) Name() string { return "help" }

func (m *Module) Help() string { return ".help — lists available commands" }

// Register subscribes the command handler.
func (m *Module) Register(b *bridge.Bridge) error {
	b.SubscribeFunc(bridge.KindMessageReceived, m.onHelp,
		bridge.WithOwner(m.Name()),
		bridge.WithPredicate(func(ev bridge.Event) bool {
			return strings.TrimSpace(ev.Text) == Command
		}))
	return nil
}

func (m *Module) onHelp(ctx context.Context, ev bridge.Event, act *bridge.Actions) error {
	var lines []string
	for _, source := range m.sources {
		lines = append(lines, source()...)
	}
	sort.Strings(lines)

	reply := "No modules provide help."
	if len(lines) > 0 {
		reply = strings.Join(lines, "\n")
	}
	_, err := act.Send(ctx, ev.Chat, reply)
	return err
}
