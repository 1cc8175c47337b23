package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modryn/chathost/lib/transport"
)

const (
	// handlerTimeout bounds one handler invocation.
	handlerTimeout = 30 * time.Second

	// maxFailures bounds the in-memory failure record.
	maxFailures = 128

	// closeWait bounds how long Close waits for in-flight handlers.
	closeWait = 2 * time.Second
)

// Handler is a unit of work reacting to one dispatched event.
type Handler interface {
	Handle(ctx context.Context, ev Event, act *Actions) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event, act *Actions) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event, act *Actions) error {
	return f(ctx, ev, act)
}

// Predicate filters events before a handler runs. It executes on the
// dispatch goroutine and should be cheap.
type Predicate func(Event) bool

// Handle identifies one subscription for later Unsubscribe.
type Handle string

// HandlerFailure records one captured handler error or panic.
type HandlerFailure struct {
	Owner string
	Kind  Kind
	Err   error
	Time  time.Time
}

type subscription struct {
	id      Handle
	kind    Kind
	owner   string
	pred    Predicate
	handler Handler
}

// SubscribeOption customizes one subscription.
type SubscribeOption func(*subscription)

// WithPredicate gates the handler behind a filter evaluated per event.
func WithPredicate(p Predicate) SubscribeOption {
	return func(s *subscription) { s.pred = p }
}

// WithOwner tags the subscription with the registering module's identity,
// used in failure records and logs.
func WithOwner(name string) SubscribeOption {
	return func(s *subscription) { s.owner = name }
}

// Bridge owns the subscription table and fans transport events out to
// matching handlers. Each event is dispatched on its own goroutine, so
// handler work never blocks ingestion.
type Bridge struct {
	actions *Actions
	log     *zap.Logger

	mu   sync.RWMutex
	subs map[Kind][]*subscription

	fmu      sync.Mutex
	failures []HandlerFailure

	baseCtx context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New builds a bridge over the given client. Call Attach to start
// receiving events.
func New(client transport.Client, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		actions: &Actions{client: client},
		log:     log,
		subs:    make(map[Kind][]*subscription),
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Attach registers the bridge's raw callback for every supported event
// kind. The bridge is the transport's only callback consumer.
func (b *Bridge) Attach(client transport.Client) {
	for _, kind := range transport.EventKinds {
		client.Handle(kind, b.ingest)
	}
}

// Actions exposes the send/edit/delete surface handed to handlers. Module
// loaders pass this to entry points instead of the raw client.
func (b *Bridge) Actions() *Actions {
	return b.actions
}

// Subscribe adds a handler for one event kind. Handlers for the same kind
// run in registration order on dispatch.
func (b *Bridge) Subscribe(kind Kind, h Handler, opts ...SubscribeOption) Handle {
	sub := &subscription{
		id:      Handle(uuid.NewString()),
		kind:    kind,
		handler: h,
	}
	for _, opt := range opts {
		opt(sub)
	}

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	b.log.Debug("subscription added",
		zap.Stringer("kind", kind),
		zap.String("owner", sub.owner),
		zap.String("handle", string(sub.id)))
	return sub.id
}

// SubscribeFunc is a convenience wrapper around Subscribe.
func (b *Bridge) SubscribeFunc(kind Kind, fn func(ctx context.Context, ev Event, act *Actions) error, opts ...SubscribeOption) Handle {
	return b.Subscribe(kind, HandlerFunc(fn), opts...)
}

// Unsubscribe removes a subscription. Removing an unknown or already
// removed handle is a no-op: teardown ordering across modules is not
// guaranteed, so double unsubscribe must be safe.
func (b *Bridge) Unsubscribe(handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, subs := range b.subs {
		for i, sub := range subs {
			if sub.id == handle {
				b.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// ingest is the raw transport callback: normalize, then dispatch.
func (b *Bridge) ingest(raw transport.RawEvent) {
	if b.closed.Load() {
		return
	}
	ev := normalize(raw)
	if ev.Kind == KindUnknown {
		b.log.Debug("dropping event of unknown kind", zap.String("kind", raw.Kind))
		return
	}
	b.dispatch(ev)
}

// dispatch hands the event to one goroutine that walks the matching
// subscriptions in registration order. Scheduling returns immediately, so
// the next raw event is never blocked behind handler work; within one
// event, order is preserved and failures are isolated per handler.
func (b *Bridge) dispatch(ev Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[ev.Kind]))
	copy(subs, b.subs[ev.Kind])
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, sub := range subs {
			b.invoke(sub, ev)
		}
	}()
}

// invoke runs one handler with its failures captured. A panic or error in
// one handler never reaches the dispatch loop or the handlers after it.
func (b *Bridge) invoke(sub *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.record(sub, ev, fmt.Errorf("handler panic: %v", r))
		}
	}()

	if sub.pred != nil && !sub.pred(ev) {
		return
	}

	ctx, cancel := context.WithTimeout(b.baseCtx, handlerTimeout)
	defer cancel()

	if err := sub.handler.Handle(ctx, ev, b.actions); err != nil {
		b.record(sub, ev, err)
	}
}

func (b *Bridge) record(sub *subscription, ev Event, err error) {
	b.log.Warn("handler failed",
		zap.String("owner", sub.owner),
		zap.Stringer("kind", ev.Kind),
		zap.Error(err))

	b.fmu.Lock()
	defer b.fmu.Unlock()
	b.failures = append(b.failures, HandlerFailure{
		Owner: sub.owner,
		Kind:  ev.Kind,
		Err:   err,
		Time:  time.Now().UTC(),
	})
	if len(b.failures) > maxFailures {
		b.failures = b.failures[len(b.failures)-maxFailures:]
	}
}

// Failures returns a copy of the recent handler failure record.
func (b *Bridge) Failures() []HandlerFailure {
	b.fmu.Lock()
	defer b.fmu.Unlock()
	out := make([]HandlerFailure, len(b.failures))
	copy(out, b.failures)
	return out
}

// Close stops accepting events and waits briefly for in-flight handlers.
// Handlers still running after the wait are abandoned, not joined.
func (b *Bridge) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.cancel()

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(closeWait):
		b.log.Warn("close timed out waiting for handlers")
	}
}
