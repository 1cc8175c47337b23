package help

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modryn/chathost/lib/bridge"
	"github.com/modryn/chathost/lib/transport"
)

func setup(t *testing.T, sources ...Source) *transport.MemoryClient {
	t.Helper()
	client := transport.NewMemoryClient()
	b := bridge.New(client, nil)
	b.Attach(client)
	t.Cleanup(b.Close)
	require.NoError(t, New(nil, sources...).Register(b))
	return client
}

func ask(client *transport.MemoryClient, text string) {
	client.Deliver(transport.RawEvent{
		Kind:      transport.EventMessage,
		Chat:      "general",
		MessageID: "m-1",
		Sender:    "tester",
		Text:      text,
	})
}

func TestRepliesWithSortedHelp(t *testing.T) {
	client := setup(t,
		func() []string { return []string{"zeta — does z"} },
		func() []string { return []string{"alpha — does a"} },
	)

	ask(client, "  .help  ")

	require.Eventually(t, func() bool {
		return len(client.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	out := client.Sent()[0]
	assert.Equal(t, "general", out.Chat)
	assert.Equal(t, "alpha — does a\nzeta — does z", out.Text)
}

func TestRepliesWhenNoHelpAvailable(t *testing.T) {
	client := setup(t)

	ask(client, ".help")

	require.Eventually(t, func() bool {
		return len(client.Sent()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "No modules provide help.", client.Sent()[0].Text)
}

func TestIgnoresOtherMessages(t *testing.T) {
	client := setup(t, func() []string { return []string{"x"} })

	ask(client, "help me please")

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, client.Sent())
}
