// Package module discovers and registers feature modules. Two forms exist:
// compiled-in Go modules collected in a Registry, and Lua scripts loaded
// from a directory by the Loader. Both receive only the event bridge at
// registration time; neither can reach the raw connection or another
// module.
package module

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
)

// Module is a compiled-in feature module.
type Module interface {
	// Name identifies the module in reports and failure records.
	Name() string

	// Help is one line describing the module's commands, aggregated by
	// the help module. Empty means nothing to list.
	Help() string

	// Register wires the module's subscriptions through the bridge.
	Register(b *bridge.Bridge) error
}

// Registry holds compiled-in modules and registers them in deterministic
// (sorted-name) order so subscription ordering is reproducible.
type Registry struct {
	log  *zap.Logger
	mods map[string]Module
}

// NewRegistry builds an empty registry.
func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log, mods: make(map[string]Module)}
}

// Add places a module in the registry. Duplicate names are rejected.
func (r *Registry) Add(m Module) error {
	name := m.Name()
	if _, exists := r.mods[name]; exists {
		return fmt.Errorf("module: duplicate module name %q", name)
	}
	r.mods[name] = m
	return nil
}

// RegisterAll calls Register on every module in sorted-name order. A
// failing module is recorded and the rest still register.
func (r *Registry) RegisterAll(b *bridge.Bridge) *Report {
	report := &Report{}
	for _, name := range r.names() {
		rec := Record{File: name, Outcome: OutcomeSuccess}
		if err := r.registerOne(r.mods[name], b); err != nil {
			rec.Outcome = OutcomeInvokeFailed
			rec.Err = err
			r.log.Warn("module registration failed", zap.String("module", name), zap.Error(err))
		} else {
			r.log.Info("module registered", zap.String("module", name))
		}
		report.add(rec)
	}
	return report
}

// registerOne isolates a panicking Register the same way the bridge
// isolates a panicking handler.
func (r *Registry) registerOne(m Module, b *bridge.Bridge) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("module: register panic: %v", rec)
		}
	}()
	return m.Register(b)
}

// HelpTexts returns the non-empty help lines of all modules, sorted.
func (r *Registry) HelpTexts() []string {
	var texts []string
	for _, name := range r.names() {
		if help := r.mods[name].Help(); help != "" {
			texts = append(texts, help)
		}
	}
	return texts
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.mods))
	for name := range r.mods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
