// Package conn owns the single transport session shared by the whole
// process. Every other component holds a non-owning reference obtained
// through the Provider; nothing else constructs or closes the client.
package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/transport"
)

// ErrClosed is returned by Get after Shutdown. No new session is created
// once the provider is shut down.
var ErrClosed = errors.New("conn: provider is shut down")

// ConnectError wraps a failure to establish or authenticate the session.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("conn: connect failed: %v", e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Factory builds the unconnected transport client. It runs at most once
// per provider.
type Factory func() transport.Client

// Provider hands out the process-wide transport session, constructing it
// on first request. The mutex guards concurrent first callers so exactly
// one session is ever built.
type Provider struct {
	factory Factory
	log     *zap.Logger

	mu     sync.Mutex
	client transport.Client
	closed bool
}

// NewProvider builds a provider around the given client factory.
func NewProvider(factory Factory, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{factory: factory, log: log}
}

// Get returns the shared session, dialing and authenticating on first
// call. Later calls return the cached client without reconnecting.
func (p *Provider) Get(ctx context.Context) (transport.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.client != nil {
		return p.client, nil
	}

	p.log.Info("establishing session")
	client := p.factory()
	if err := client.Connect(ctx); err != nil {
		client.Close()
		return nil, &ConnectError{Err: err}
	}
	p.log.Info("session established")

	p.client = client
	return client, nil
}

// Shutdown closes the session exactly once. Safe to call while handlers
// are still running; in-flight actions fail with transport errors.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	if err != nil {
		return fmt.Errorf("conn: close session: %w", err)
	}
	return nil
}
