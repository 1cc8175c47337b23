package bridge

import (
	"context"
	"fmt"

	"github.com/modryn/chathost/lib/transport"
)

// DeliveryError wraps a failed outbound action so modules never depend on
// the transport's native error shapes. The calling handler decides whether
// to retry; the bridge never retries implicitly.
type DeliveryError struct {
	Op   string
	Chat string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("bridge: %s to %s failed: %v", e.Op, e.Chat, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Actions is the only path from a handler back to the connection.
type Actions struct {
	client transport.Client
}

// Send posts a message and returns the id assigned by the service.
func (a *Actions) Send(ctx context.Context, chat, text string) (string, error) {
	id, err := a.client.Send(ctx, chat, text)
	if err != nil {
		return "", &DeliveryError{Op: "send", Chat: chat, Err: err}
	}
	return id, nil
}

// Edit replaces the text of an existing message.
func (a *Actions) Edit(ctx context.Context, chat, messageID, text string) error {
	if err := a.client.Edit(ctx, chat, messageID, text); err != nil {
		return &DeliveryError{Op: "edit", Chat: chat, Err: err}
	}
	return nil
}

// Delete removes a message.
func (a *Actions) Delete(ctx context.Context, chat, messageID string) error {
	if err := a.client.Delete(ctx, chat, messageID); err != nil {
		return &DeliveryError{Op: "delete", Chat: chat, Err: err}
	}
	return nil
}
