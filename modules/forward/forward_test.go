package forward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modryn/chathost/lib/bridge"
	"github.com/modryn/chathost/lib/transport"
)

func setup(t *testing.T, cfg Config) (*transport.MemoryClient, error) {
	t.Helper()
	client := transport.NewMemoryClient()
	b := bridge.New(client, nil)
	b.Attach(client)
	t.Cleanup(b.Close)
	return client, New(cfg, nil).Register(b)
}

func deliver(client *transport.MemoryClient, chat, sender, text string) {
	client.Deliver(transport.RawEvent{
		Kind:      transport.EventMessage,
		Chat:      chat,
		MessageID: "m-1",
		Sender:    sender,
		Text:      text,
	})
}

func TestForwardsWatchedChats(t *testing.T) {
	client, err := setup(t, Config{Sources: []string{"announcements"}, Target: "archive"})
	require.NoError(t, err)

	deliver(client, "announcements", "ada", "release is out")

	require.Eventually(t, func() bool {
		return len(client.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	out := client.Sent()[0]
	assert.Equal(t, "archive", out.Chat)
	assert.Equal(t, "[announcements] ada: release is out", out.Text)
}

func TestIgnoresUnwatchedChats(t *testing.T) {
	client, err := setup(t, Config{Sources: []string{"announcements"}, Target: "archive"})
	require.NoError(t, err)

	deliver(client, "random", "ada", "chatter")
	deliver(client, "archive", "ada", "already here")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, client.Sent())
}

func TestNeverForwardsOutOfTarget(t *testing.T) {
	// Target watched by mistake: forwarding it back would loop forever.
	client, err := setup(t, Config{Sources: []string{"archive"}, Target: "archive"})
	require.NoError(t, err)

	deliver(client, "archive", "ada", "hello")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, client.Sent())
}

func TestRegisterRequiresConfig(t *testing.T) {
	_, err := setup(t, Config{Sources: []string{"a"}})
	assert.Error(t, err, "missing target")

	_, err = setup(t, Config{Target: "archive"})
	assert.Error(t, err, "missing sources")
}
