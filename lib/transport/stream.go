package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Well-known payload field names.
const (
	fieldOp        = "op"
	fieldChat      = "chat"
	fieldMessageID = "message_id"
	fieldSender    = "sender"
	fieldText      = "text"
	fieldKind      = "kind"
	fieldTime      = "time"
	fieldError     = "error"
	fieldToken     = "token"
	fieldSession   = "session"
)

const (
	authTimeout    = 10 * time.Second
	requestTimeout = 30 * time.Second
)

// StreamOptions configures a StreamClient.
type StreamOptions struct {
	Addr    string
	Token   string
	Session string
	Codec   Codec
	Logger  *zap.Logger

	// Dial overrides the network dialer, used by tests to connect the
	// client to an in-process server.
	Dial func(ctx context.Context, addr string) (net.Conn, error)
}

// StreamClient speaks the framed chat protocol over a byte stream. One
// read loop demultiplexes inbound event frames from results of pending
// outbound actions.
type StreamClient struct {
	opts  StreamOptions
	codec Codec
	log   *zap.Logger

	hmu      sync.RWMutex
	handlers map[string]RawHandler

	mu   sync.Mutex // guards conn and done across reconnects
	conn net.Conn
	done chan struct{}

	wmu sync.Mutex // serializes frame writes

	seq     atomic.Uint32
	pmu     sync.Mutex
	pending map[uint32]chan map[string]string

	ready  chan error
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewStreamClient builds a client; no network activity happens until Connect.
func NewStreamClient(opts StreamOptions) *StreamClient {
	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Dial == nil {
		dialer := &net.Dialer{Timeout: authTimeout}
		opts.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}
	return &StreamClient{
		opts:     opts,
		codec:    opts.Codec,
		log:      opts.Logger,
		handlers: make(map[string]RawHandler),
		pending:  make(map[uint32]chan map[string]string),
		ready:    make(chan error, 1),
	}
}

// Connect dials the service, starts the read loop, and completes the auth
// exchange. It may be called again after Done fires to re-establish the
// session.
func (c *StreamClient) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	conn, err := c.opts.Dial(ctx, c.opts.Addr)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", c.opts.Addr, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.mu.Unlock()

	// Drain a stale ready signal left over from a previous session.
	select {
	case <-c.ready:
	default:
	}

	c.wg.Add(1)
	go c.readLoop(conn, done)

	if err := c.sendAuth(conn); err != nil {
		conn.Close()
		return err
	}

	select {
	case err := <-c.ready:
		if err != nil {
			conn.Close()
			return fmt.Errorf("transport: authentication rejected: %w", err)
		}
		return nil
	case <-done:
		return errors.New("transport: connection closed during auth")
	case <-ctx.Done():
		conn.Close()
		return ctx.Err()
	case <-time.After(authTimeout):
		conn.Close()
		return errors.New("transport: timeout waiting for auth ack")
	}
}

func (c *StreamClient) sendAuth(conn net.Conn) error {
	payload, err := c.codec.Marshal(map[string]string{
		fieldToken:   c.opts.Token,
		fieldSession: c.opts.Session,
	})
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return writeFrame(conn, frame{Type: frameAuth, Payload: payload})
}

// Handle registers the raw callback for one event kind.
func (c *StreamClient) Handle(kind string, fn RawHandler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[kind] = fn
}

// Send posts a message and returns the service-assigned id.
func (c *StreamClient) Send(ctx context.Context, chat, text string) (string, error) {
	result, err := c.request(ctx, map[string]string{
		fieldOp:   "send",
		fieldChat: chat,
		fieldText: text,
	})
	if err != nil {
		return "", err
	}
	return result[fieldMessageID], nil
}

// Edit replaces the text of an existing message.
func (c *StreamClient) Edit(ctx context.Context, chat, messageID, text string) error {
	_, err := c.request(ctx, map[string]string{
		fieldOp:        "edit",
		fieldChat:      chat,
		fieldMessageID: messageID,
		fieldText:      text,
	})
	return err
}

// Delete removes a message.
func (c *StreamClient) Delete(ctx context.Context, chat, messageID string) error {
	_, err := c.request(ctx, map[string]string{
		fieldOp:        "delete",
		fieldChat:      chat,
		fieldMessageID: messageID,
	})
	return err
}

// Done reports loss of the current session.
func (c *StreamClient) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Close tears the client down; pending requests fail.
func (c *StreamClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}

	// Bounded wait for the read loop; a stuck goroutine is abandoned.
	finished := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
	}
	return closeErr
}

// request sends one action frame and waits for its result.
func (c *StreamClient) request(ctx context.Context, fields map[string]string) (map[string]string, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("transport: not connected")
	}

	payload, err := c.codec.Marshal(fields)
	if err != nil {
		return nil, err
	}

	seq := c.nextSeq()
	resultChan := make(chan map[string]string, 1)
	c.pmu.Lock()
	c.pending[seq] = resultChan
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, seq)
		c.pmu.Unlock()
	}()

	c.wmu.Lock()
	err = writeFrame(conn, frame{Type: frameAction, Seq: seq, Payload: payload})
	c.wmu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case result, ok := <-resultChan:
		if !ok {
			return nil, errors.New("transport: connection lost before result")
		}
		if msg := result[fieldError]; msg != "" {
			return nil, fmt.Errorf("transport: %s rejected: %s", fields[fieldOp], msg)
		}
		return result, nil
	case <-done:
		return nil, errors.New("transport: connection lost before result")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("transport: timeout waiting for %s result", fields[fieldOp])
	}
}

func (c *StreamClient) nextSeq() uint32 {
	for {
		// Sequence 0 is reserved for unsolicited frames.
		if seq := c.seq.Add(1); seq != 0 {
			return seq
		}
	}
}

func (c *StreamClient) readLoop(conn net.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)
	defer c.failPending()

	for {
		f, err := readFrame(conn)
		if err != nil {
			if !c.closed.Load() {
				c.log.Warn("read loop ended", zap.Error(err))
			}
			return
		}

		switch f.Type {
		case frameAuthAck:
			var authErr error
			if fields, err := c.codec.Unmarshal(f.Payload); err != nil {
				authErr = err
			} else if msg := fields[fieldError]; msg != "" {
				authErr = errors.New(msg)
			}
			select {
			case c.ready <- authErr:
			default:
			}

		case frameResult:
			fields, err := c.codec.Unmarshal(f.Payload)
			if err != nil {
				c.log.Warn("undecodable result frame", zap.Uint32("seq", f.Seq), zap.Error(err))
				continue
			}
			c.pmu.Lock()
			resultChan, exists := c.pending[f.Seq]
			c.pmu.Unlock()
			if exists {
				select {
				case resultChan <- fields:
				default:
				}
			}

		case frameEvent:
			fields, err := c.codec.Unmarshal(f.Payload)
			if err != nil {
				c.log.Warn("undecodable event frame", zap.Error(err))
				continue
			}
			ev := rawEventFromFields(fields)
			c.hmu.RLock()
			fn := c.handlers[ev.Kind]
			c.hmu.RUnlock()
			// The bridge's callback only schedules work, so invoking it
			// inline keeps transport delivery order intact.
			if fn != nil {
				fn(ev)
			}

		default:
			c.log.Warn("unknown frame type", zap.Uint8("type", f.Type))
		}
	}
}

// failPending closes every in-flight result channel so waiting callers
// fail instead of hanging.
func (c *StreamClient) failPending() {
	c.pmu.Lock()
	defer c.pmu.Unlock()
	for seq, ch := range c.pending {
		close(ch)
		delete(c.pending, seq)
	}
}

func rawEventFromFields(fields map[string]string) RawEvent {
	ev := RawEvent{
		Kind:      fields[fieldKind],
		Chat:      fields[fieldChat],
		MessageID: fields[fieldMessageID],
		Sender:    fields[fieldSender],
		Text:      fields[fieldText],
	}
	if raw := fields[fieldTime]; raw != "" {
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ev.UnixTime = unix
		}
	}
	for k, v := range fields {
		switch k {
		case fieldKind, fieldChat, fieldMessageID, fieldSender, fieldText, fieldTime:
		default:
			if ev.Extra == nil {
				ev.Extra = make(map[string]string)
			}
			ev.Extra[k] = v
		}
	}
	return ev
}
