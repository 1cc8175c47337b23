package autoclear

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modryn/chathost/lib/bridge"
	"github.com/modryn/chathost/lib/transport"
)

func setup(t *testing.T, cfg Config) *transport.MemoryClient {
	t.Helper()
	client := transport.NewMemoryClient()
	b := bridge.New(client, nil)
	b.Attach(client)
	t.Cleanup(b.Close)
	require.NoError(t, New(cfg, nil).Register(b))
	return client
}

func deliver(client *transport.MemoryClient, chat, id, text string) {
	client.Deliver(transport.RawEvent{
		Kind:      transport.EventMessage,
		Chat:      chat,
		MessageID: id,
		Sender:    "tester",
		Text:      text,
	})
}

func deletesOf(client *transport.MemoryClient) []string {
	var ids []string
	for _, out := range client.Sent() {
		if out.Op == "delete" {
			ids = append(ids, out.MessageID)
		}
	}
	return ids
}

func TestTimedDeletion(t *testing.T) {
	client := setup(t, Config{Chats: []string{"ephemeral"}, TTL: 50 * time.Millisecond})

	deliver(client, "ephemeral", "m-1", "now you see me")

	require.Eventually(t, func() bool {
		return len(deletesOf(client)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"m-1"}, deletesOf(client))
}

func TestClearCommandDeletesRecent(t *testing.T) {
	client := setup(t, Config{Chats: []string{"ephemeral"}})

	deliver(client, "ephemeral", "m-1", "one")
	deliver(client, "ephemeral", "m-2", "two")
	// No ordering is guaranteed across separate events; let the trackers
	// land before issuing the command.
	time.Sleep(50 * time.Millisecond)
	deliver(client, "ephemeral", "cmd-1", Command)

	require.Eventually(t, func() bool {
		return len(deletesOf(client)) == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"m-1", "m-2", "cmd-1"}, deletesOf(client))
}

func TestIgnoresUnwatchedChats(t *testing.T) {
	client := setup(t, Config{Chats: []string{"ephemeral"}, TTL: 10 * time.Millisecond})

	deliver(client, "durable", "m-1", "keep me")
	deliver(client, "durable", "cmd-1", Command)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, deletesOf(client))
}

func TestRegisterRequiresChats(t *testing.T) {
	b := bridge.New(transport.NewMemoryClient(), nil)
	t.Cleanup(b.Close)
	assert.Error(t, New(Config{}, nil).Register(b))
}
