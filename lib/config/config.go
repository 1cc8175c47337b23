// Package config loads host settings from a YAML file with environment
// overrides applied on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Duration parses "30s"-style strings from both YAML and env values.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Server holds connection settings for the chat service.
type Server struct {
	Addr    string `yaml:"addr" env:"CHATHOST_ADDR"`
	Token   string `yaml:"token" env:"CHATHOST_TOKEN"`
	Session string `yaml:"session" env:"CHATHOST_SESSION"`
	Codec   string `yaml:"codec" env:"CHATHOST_CODEC"`
}

// Backoff shapes the reconnect loop.
type Backoff struct {
	Start Duration `yaml:"start" env:"CHATHOST_BACKOFF_START"`
	Max   Duration `yaml:"max" env:"CHATHOST_BACKOFF_MAX"`
}

// Forward configures the auto-forwarder module.
type Forward struct {
	Sources []string `yaml:"sources" env:"CHATHOST_FORWARD_SOURCES"`
	Target  string   `yaml:"target" env:"CHATHOST_FORWARD_TARGET"`
}

// AutoClear configures the auto-clearer module.
type AutoClear struct {
	Chats []string `yaml:"chats" env:"CHATHOST_AUTOCLEAR_CHATS"`
	TTL   Duration `yaml:"ttl" env:"CHATHOST_AUTOCLEAR_TTL"`
}

// Config is the whole host configuration.
type Config struct {
	Server     Server    `yaml:"server"`
	ModulesDir string    `yaml:"modules_dir" env:"CHATHOST_MODULES_DIR"`
	LogLevel   string    `yaml:"log_level" env:"CHATHOST_LOG_LEVEL"`
	Backoff    Backoff   `yaml:"backoff"`
	Forward    Forward   `yaml:"forward"`
	AutoClear  AutoClear `yaml:"autoclear"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Session: "chathost",
			Codec:   "json",
		},
		ModulesDir: "modules",
		LogLevel:   "info",
		Backoff: Backoff{
			Start: Duration(time.Second),
			Max:   Duration(5 * time.Minute),
		},
	}
}

// Load reads path (optional) over the defaults, then applies environment
// overrides, then validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Server.Codec {
	case "json", "proto":
	default:
		return fmt.Errorf("config: unknown codec %q", c.Server.Codec)
	}
	if c.Backoff.Start.Std() <= 0 || c.Backoff.Max.Std() < c.Backoff.Start.Std() {
		return fmt.Errorf("config: bad backoff range %s..%s", c.Backoff.Start.Std(), c.Backoff.Max.Std())
	}
	return nil
}
