package transport

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	DefaultWriteTimeout = 5 * time.Second
	maxFrameSize        = 1 << 20
)

// WebSocketTransport connects an observer to a relay. Run owns the connection:
// it dials with exponential backoff, reads envelopes until the connection drops, then dials again.
// Envelopes published while disconnected fail and are not queued.
type WebSocketTransport struct {
	log          *slog.Logger
	url          string
	writeTimeout time.Duration
	maxInterval  time.Duration
	onConnect    func(ctx context.Context)
	received     chan domain.Envelope

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc
}

func NewWebSocketTransport(log *slog.Logger, url string, bufferSize int, maxInterval time.Duration) *WebSocketTransport {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &WebSocketTransport{
		log:          log,
		url:          url,
		writeTimeout: DefaultWriteTimeout,
		maxInterval:  maxInterval,
		received:     make(chan domain.Envelope, bufferSize),
	}
}

// OnConnect registers a hook called after every successful (re)connection,
// typically to request the state the observer missed while away.
func (t *WebSocketTransport) OnConnect(fn func(ctx context.Context)) {
	t.onConnect = fn
}

func (t *WebSocketTransport) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		return nil
	}
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	for ctx.Err() == nil {
		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		t.setConn(conn)
		if t.onConnect != nil {
			t.onConnect(ctx)
		}
		err = t.readLoop(ctx, conn)
		t.setConn(nil)
		_ = conn.CloseNow()
		if ctx.Err() == nil {
			t.log.Warn("Relay connection lost, reconnecting", "url", t.url, "error", err)
		}
	}
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	if t.maxInterval > 0 {
		policy.MaxInterval = t.maxInterval
	}
	return backoff.Retry(ctx, func() (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, t.url, nil)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(maxFrameSize)
		t.log.Info("Connected to relay", "url", t.url)
		return conn, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			t.log.Warn("Relay unreachable", "url", t.url, "retry_in", next, "error", err)
		}))
}

func (t *WebSocketTransport) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var envelope domain.Envelope
		if err := wsjson.Read(ctx, conn, &envelope); err != nil {
			return err
		}
		select {
		case t.received <- envelope:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *WebSocketTransport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *WebSocketTransport) Publish(ctx context.Context, envelope domain.Envelope) error {
	t.mu.Lock()
	conn, closed := t.conn, t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return errors.ErrTransportClosed
	}
	ctx, cancel := context.WithTimeout(ctx, t.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, envelope); err != nil {
		return fmt.Errorf("publish %s: %w", envelope.Type, err)
	}
	return nil
}

// Connected reports whether a relay connection is currently open.
func (t *WebSocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil
}

// Receive stays open across reconnections.
func (t *WebSocketTransport) Receive() <-chan domain.Envelope {
	return t.received
}

func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		return t.conn.Close(websocket.StatusNormalClosure, "observer shutting down")
	}
	return nil
}
