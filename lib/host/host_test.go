package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modryn/chathost/lib/config"
	"github.com/modryn/chathost/lib/conn"
	"github.com/modryn/chathost/lib/transport"
)

func TestHostRunsEndToEnd(t *testing.T) {
	dir := t.TempDir()
	echo := `
		function register(bridge)
			bridge.subscribe("message", function(ev)
				bridge.send(ev.chat, ev.text)
			end)
		end
	`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "echo.lua"), []byte(echo), 0o644))

	cfg := config.Default()
	cfg.ModulesDir = dir

	client := transport.NewMemoryClient()
	h := New(cfg, func() transport.Client { return client }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	// Module loading races with this test goroutine; keep delivering
	// until the echo script answers.
	require.Eventually(t, func() bool {
		client.Deliver(transport.RawEvent{
			Kind:      transport.EventMessage,
			Chat:      "general",
			MessageID: "m-1",
			Sender:    "tester",
			Text:      "anyone home?",
		})
		return len(client.Sent()) > 0
	}, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, "anyone home?", client.Sent()[0].Text)

	cancel()
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop on context cancel")
	}
}

type refusingClient struct {
	*transport.MemoryClient
}

func (c *refusingClient) Connect(ctx context.Context) error {
	return errors.New("credentials rejected")
}

func TestHostConnectFailureIsFatal(t *testing.T) {
	cfg := config.Default()
	h := New(cfg, func() transport.Client {
		return &refusingClient{MemoryClient: transport.NewMemoryClient()}
	}, nil)

	err := h.Run(context.Background())
	require.Error(t, err)

	var connectErr *conn.ConnectError
	assert.ErrorAs(t, err, &connectErr)
}

func TestHostLoadFailuresAreNotFatal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.lua"),
		[]byte(`function register(bridge) error("no thanks") end`), 0o644))

	cfg := config.Default()
	cfg.ModulesDir = dir

	client := transport.NewMemoryClient()
	h := New(cfg, func() transport.Client { return client }, nil)

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		return client.Connected()
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-finished:
		require.NoError(t, err, "a broken script must not kill the host")
	case <-time.After(5 * time.Second):
		t.Fatal("host did not stop on context cancel")
	}
}
