package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/Shopify/go-lua"
	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// entryPoint is the well-known function every script must define.
const entryPoint = "register"

// Loader discovers Lua scripts in a directory and runs each in its own
// isolated interpreter state. Scripts receive only the bridge binding
// table; there is no path from one script to another, to the loader, or
// to the raw connection.
type Loader struct {
	dir    string
	bridge *bridge.Bridge
	log    *zap.Logger

	mu      sync.Mutex
	scripts []*script
}

// NewLoader builds a loader for the given scripts directory.
func NewLoader(dir string, b *bridge.Bridge, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{dir: dir, bridge: b, log: log}
}

// LoadAll loads every candidate script, in lexical order, and reports the
// outcome per file. One broken script never aborts the pass; the error
// return covers only an unreadable directory.
func (l *Loader) LoadAll() (*Report, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("module: read scripts dir: %w", err)
	}

	report := &Report{}
	// os.ReadDir sorts by file name, which fixes the load order.
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".lua") || strings.HasPrefix(name, "_") {
			continue
		}

		rec := l.loadFile(filepath.Join(l.dir, name))
		if rec.Outcome == OutcomeSuccess {
			l.log.Info("script loaded", zap.String("script", rec.File))
		} else {
			l.log.Warn("script not loaded",
				zap.String("script", rec.File),
				zap.Stringer("outcome", rec.Outcome),
				zap.Error(rec.Err))
		}
		report.add(rec)
	}
	return report, nil
}

// loadFile runs one script through discovered -> loaded -> registered,
// stopping at the first terminal failure. Each script gets a fresh
// lua.State, so module-level state is never shared between files.
func (l *Loader) loadFile(path string) Record {
	name := filepath.Base(path)
	s := newScript(name, l.bridge, l.log.With(zap.String("script", name)))

	// Hold the script's lock for the whole pass: once a subscription
	// lands, dispatch may try to enter this state from another goroutine.
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := lua.LoadFile(s.state, path, ""); err != nil {
		return Record{File: name, Outcome: OutcomeLoadFailed, Err: fmt.Errorf("module: load %s: %w", name, err)}
	}
	if err := s.state.ProtectedCall(0, 0, 0); err != nil {
		s.state.SetTop(0)
		return Record{File: name, Outcome: OutcomeLoadFailed, Err: fmt.Errorf("module: run %s: %w", name, err)}
	}

	s.state.Global(entryPoint)
	if s.state.TypeOf(-1) != lua.TypeFunction {
		s.state.Pop(1)
		return Record{File: name, Outcome: OutcomeMissingEntryPoint, Err: fmt.Errorf("module: %s defines no %s function", name, entryPoint)}
	}

	s.pushBridgeTable()
	if err := s.state.ProtectedCall(1, 0, 0); err != nil {
		s.state.SetTop(0)
		return Record{File: name, Outcome: OutcomeInvokeFailed, Err: fmt.Errorf("module: %s: %s failed: %w", name, entryPoint, err)}
	}

	// Scripts may set a global `help` string, aggregated like any other
	// module's help line.
	s.state.Global("help")
	if s.state.TypeOf(-1) == lua.TypeString {
		if text, ok := s.state.ToString(-1); ok {
			s.help = text
		}
	}
	s.state.Pop(1)

	l.mu.Lock()
	l.scripts = append(l.scripts, s)
	l.mu.Unlock()
	return Record{File: name, Outcome: OutcomeSuccess}
}

// HelpTexts returns the help lines declared by loaded scripts.
func (l *Loader) HelpTexts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var texts []string
	for _, s := range l.scripts {
		if s.help != "" {
			texts = append(texts, s.help)
		}
	}
	return texts
}
