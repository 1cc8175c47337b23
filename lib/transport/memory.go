package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Outbound records one action performed against a MemoryClient.
type Outbound struct {
	Op        string
	Chat      string
	MessageID string
	Text      string
}

// MemoryClient is an in-process Client for tests, demos, and offline runs.
// Tests inject synthetic events with Deliver and inspect actions with Sent.
type MemoryClient struct {
	mu        sync.Mutex
	handlers  map[string]RawHandler
	sent      []Outbound
	connected bool
	closed    bool
	done      chan struct{}

	// FailWith, when set, is returned by every outbound action.
	FailWith error
}

// NewMemoryClient returns an unconnected in-memory client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		handlers: make(map[string]RawHandler),
		done:     make(chan struct{}),
	}
}

func (c *MemoryClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.connected = true
	return nil
}

func (c *MemoryClient) Handle(kind string, fn RawHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[kind] = fn
}

func (c *MemoryClient) Send(ctx context.Context, chat, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClientClosed
	}
	if c.FailWith != nil {
		return "", c.FailWith
	}
	id := uuid.NewString()
	c.sent = append(c.sent, Outbound{Op: "send", Chat: chat, MessageID: id, Text: text})
	return id, nil
}

func (c *MemoryClient) Edit(ctx context.Context, chat, messageID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.FailWith != nil {
		return c.FailWith
	}
	c.sent = append(c.sent, Outbound{Op: "edit", Chat: chat, MessageID: messageID, Text: text})
	return nil
}

func (c *MemoryClient) Delete(ctx context.Context, chat, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.FailWith != nil {
		return c.FailWith
	}
	c.sent = append(c.sent, Outbound{Op: "delete", Chat: chat, MessageID: messageID})
	return nil
}

func (c *MemoryClient) Done() <-chan struct{} {
	return c.done
}

func (c *MemoryClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.closed = true
	c.connected = false
	close(c.done)
	return nil
}

// Deliver feeds one synthetic raw event to the registered callback, if any.
// The callback runs on the calling goroutine.
func (c *MemoryClient) Deliver(ev RawEvent) {
	c.mu.Lock()
	fn := c.handlers[ev.Kind]
	c.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Sent returns a copy of all recorded outbound actions.
func (c *MemoryClient) Sent() []Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Outbound, len(c.sent))
	copy(out, c.sent)
	return out
}

// Connected reports whether Connect succeeded and Close has not been called.
func (c *MemoryClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
