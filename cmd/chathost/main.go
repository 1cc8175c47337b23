// Command chathost runs the plugin host against a chat service.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/modryn/chathost/lib/config"
	"github.com/modryn/chathost/lib/conn"
	"github.com/modryn/chathost/lib/host"
	"github.com/modryn/chathost/lib/transport"
)

var (
	flagConfig     string
	flagModulesDir string
	flagOffline    bool
)

var rootCmd = &cobra.Command{
	Use:          "chathost",
	Short:        "Plugin host for a long-running chat client",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "path to YAML config file")
	rootCmd.Flags().StringVar(&flagModulesDir, "modules-dir", "", "override the scripts directory")
	rootCmd.Flags().BoolVar(&flagOffline, "offline", false, "use the in-memory transport instead of dialing")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagModulesDir != "" {
		cfg.ModulesDir = flagModulesDir
	}

	log, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	factory, err := clientFactory(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return host.New(cfg, factory, log).Run(ctx)
}

func clientFactory(cfg config.Config, log *zap.Logger) (conn.Factory, error) {
	if flagOffline {
		return func() transport.Client {
			return transport.NewMemoryClient()
		}, nil
	}

	if cfg.Server.Addr == "" {
		return nil, fmt.Errorf("server address not configured (set server.addr or CHATHOST_ADDR)")
	}
	codec, err := transport.NewCodec(cfg.Server.Codec)
	if err != nil {
		return nil, err
	}
	return func() transport.Client {
		return transport.NewStreamClient(transport.StreamOptions{
			Addr:    cfg.Server.Addr,
			Token:   cfg.Server.Token,
			Session: cfg.Server.Session,
			Codec:   codec,
			Logger:  log.Named("transport"),
		})
	}, nil
}

func buildLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(parsed)
	return zcfg.Build()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
