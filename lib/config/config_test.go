package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chathost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "chathost", cfg.Server.Session)
	assert.Equal(t, "json", cfg.Server.Codec)
	assert.Equal(t, "modules", cfg.ModulesDir)
	assert.Equal(t, time.Second, cfg.Backoff.Start.Std())
	assert.Equal(t, 5*time.Minute, cfg.Backoff.Max.Std())
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: chat.example.com:7232
  token: hunter2
  codec: proto
modules_dir: /srv/chathost/modules
log_level: debug
backoff:
  start: 2s
  max: 1m
forward:
  sources: [announcements, ops]
  target: archive
autoclear:
  chats: [ephemeral]
  ttl: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "chat.example.com:7232", cfg.Server.Addr)
	assert.Equal(t, "hunter2", cfg.Server.Token)
	assert.Equal(t, "proto", cfg.Server.Codec)
	assert.Equal(t, "/srv/chathost/modules", cfg.ModulesDir)
	assert.Equal(t, 2*time.Second, cfg.Backoff.Start.Std())
	assert.Equal(t, time.Minute, cfg.Backoff.Max.Std())
	assert.Equal(t, []string{"announcements", "ops"}, cfg.Forward.Sources)
	assert.Equal(t, "archive", cfg.Forward.Target)
	assert.Equal(t, 30*time.Second, cfg.AutoClear.TTL.Std())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: from-file:1000
  token: file-token
`)

	t.Setenv("CHATHOST_ADDR", "from-env:2000")
	t.Setenv("CHATHOST_BACKOFF_START", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env:2000", cfg.Server.Addr)
	assert.Equal(t, "file-token", cfg.Server.Token, "untouched values come from the file")
	assert.Equal(t, 5*time.Second, cfg.Backoff.Start.Std())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown codec", "server:\n  codec: msgpack\n"},
		{"bad duration", "backoff:\n  start: soon\n"},
		{"inverted backoff", "backoff:\n  start: 1m\n  max: 1s\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}
