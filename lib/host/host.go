// Package host wires the connection provider, the event bridge, and the
// module loaders into one supervised process.
package host

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/bridge"
	"github.com/modryn/chathost/lib/config"
	"github.com/modryn/chathost/lib/conn"
	"github.com/modryn/chathost/lib/module"
	"github.com/modryn/chathost/lib/transport"
	"github.com/modryn/chathost/modules/autoclear"
	"github.com/modryn/chathost/modules/forward"
	"github.com/modryn/chathost/modules/help"
	"github.com/modryn/chathost/modules/joinlog"
)

// Host runs one connection and its feature modules for the process
// lifetime.
type Host struct {
	cfg      config.Config
	log      *zap.Logger
	provider *conn.Provider

	bridge *bridge.Bridge
	loader *module.Loader
}

// New builds a host. The factory produces the transport client; the
// provider guarantees it is constructed at most once.
func New(cfg config.Config, factory conn.Factory, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		cfg:      cfg,
		log:      log,
		provider: conn.NewProvider(factory, log.Named("conn")),
	}
}

// Run connects, loads modules, and supervises the connection until ctx is
// cancelled. A failure to establish the first connection is fatal and
// propagates; module load failures never are.
func (h *Host) Run(ctx context.Context) error {
	client, err := h.provider.Get(ctx)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	defer h.Close()

	h.bridge = bridge.New(client, h.log.Named("bridge"))
	h.bridge.Attach(client)

	if err := h.loadModules(); err != nil {
		return err
	}

	return h.supervise(ctx, client)
}

// loadModules registers the built-ins and then the scripts directory.
func (h *Host) loadModules() error {
	registry := module.NewRegistry(h.log.Named("modules"))
	h.loader = module.NewLoader(h.cfg.ModulesDir, h.bridge, h.log.Named("scripts"))

	if h.cfg.Forward.Target != "" {
		fwd := forward.New(forward.Config{
			Sources: h.cfg.Forward.Sources,
			Target:  h.cfg.Forward.Target,
		}, h.log.Named("forward"))
		if err := registry.Add(fwd); err != nil {
			return err
		}
	}
	if len(h.cfg.AutoClear.Chats) > 0 {
		clearer := autoclear.New(autoclear.Config{
			Chats: h.cfg.AutoClear.Chats,
			TTL:   h.cfg.AutoClear.TTL.Std(),
		}, h.log.Named("autoclear"))
		if err := registry.Add(clearer); err != nil {
			return err
		}
	}
	if err := registry.Add(joinlog.New(h.log.Named("joinlog"))); err != nil {
		return err
	}
	if err := registry.Add(help.New(h.log.Named("help"), registry.HelpTexts, h.loader.HelpTexts)); err != nil {
		return err
	}

	report := registry.RegisterAll(h.bridge)

	if _, err := os.Stat(h.cfg.ModulesDir); err == nil {
		scriptReport, err := h.loader.LoadAll()
		if err != nil {
			h.log.Warn("script load pass failed", zap.Error(err))
		} else {
			report.Merge(scriptReport)
		}
	} else {
		h.log.Info("no scripts directory", zap.String("dir", h.cfg.ModulesDir))
	}

	h.log.Info("module load complete",
		zap.Strings("loaded", report.Loaded()),
		zap.Int("failed", len(report.Failed())))
	for _, rec := range report.Failed() {
		h.log.Warn("module failed",
			zap.String("module", rec.File),
			zap.Stringer("outcome", rec.Outcome),
			zap.Error(rec.Err))
	}
	return nil
}

// supervise reconnects with exponential backoff whenever the session
// drops, resetting the delay after each successful connect.
func (h *Host) supervise(ctx context.Context, client transport.Client) error {
	backoff := h.cfg.Backoff.Start.Std()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
		}

		h.log.Warn("connection lost", zap.Duration("retry_in", backoff))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		if err := client.Connect(ctx); err != nil {
			backoff *= 2
			if max := h.cfg.Backoff.Max.Std(); backoff > max {
				backoff = max
			}
			h.log.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", backoff))
			continue
		}
		h.log.Info("reconnected")
		backoff = h.cfg.Backoff.Start.Std()
	}
}

// Close shuts the bridge and the connection down, each exactly once.
func (h *Host) Close() {
	if h.bridge != nil {
		h.bridge.Close()
	}
	if err := h.provider.Shutdown(); err != nil {
		h.log.Warn("shutdown", zap.Error(err))
	}
}
