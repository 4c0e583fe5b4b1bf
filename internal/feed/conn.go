// Package feed maintains the push-channel subscription to the price topic.
//
// The connection negotiates a websocket first and falls back to a
// streaming-HTTP transport when the websocket handshake is refused. Events
// are delivered to subscribers exactly as received: no deduplication,
// reordering, or buffering guarantee — tolerating that is the position
// store's job. Transport failures never escalate to the caller; the
// connection retries after a fixed delay, forever, and exposes its state
// through Status.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tradedesk/internal/model"
)

// Handler receives decoded price events in delivery order.
type Handler func(model.PriceEvent)

// Status is the observable connection state.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Config configures the feed connection.
type Config struct {
	WSURL            string        // websocket endpoint
	StreamURL        string        // streaming-HTTP fallback endpoint
	Topic            string        // price topic to subscribe
	RetryDelay       time.Duration // delay between reconnect attempts (default 5s)
	HandshakeTimeout time.Duration // per-attempt dial timeout (default 10s)
	ReplaySize       int           // recent events kept for late subscribers (default 64)
}

// Conn is one logical subscription to the price topic.
type Conn struct {
	cfg Config
	log *slog.Logger

	// mu guards the subscriber set and is held while dispatching, which
	// makes Subscription.Cancel synchronous: once Cancel returns, no
	// further callback fires, even if a reconnect is in flight.
	mu      sync.Mutex
	subs    map[uint64]Handler
	nextSub uint64

	status atomic.Int32
	replay *replayBuffer

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool

	// Metrics hooks.
	OnReconnect func()
	OnEvent     func()
}

// New creates a Conn. It does not touch the network until Connect.
func New(cfg Config, log *slog.Logger) *Conn {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReplaySize <= 0 {
		cfg.ReplaySize = 64
	}
	return &Conn{
		cfg:    cfg,
		log:    log,
		subs:   make(map[uint64]Handler),
		replay: newReplayBuffer(cfg.ReplaySize),
	}
}

// Connect starts the background connect/read/retry loop. It returns
// immediately; connectivity is reported via Status. Calling Connect more
// than once is a no-op.
func (c *Conn) Connect(ctx context.Context) {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.started || c.closed {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.started = true
	go c.run(runCtx)
}

// Close tears the connection down and waits for the background loop to
// exit. Idempotent, and safe to call before Connect.
func (c *Conn) Close() {
	c.lifeMu.Lock()
	if c.closed {
		c.lifeMu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	done := c.done
	c.lifeMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	c.status.Store(int32(StatusDisconnected))
}

// Status returns the current connection state.
func (c *Conn) Status() Status {
	return Status(c.status.Load())
}

// Recent returns the buffered recent events, oldest first. Used to warm a
// chart widget before live events arrive.
func (c *Conn) Recent() []model.PriceEvent {
	return c.replay.Events()
}

// Subscription is a cancellable registration of one Handler.
type Subscription struct {
	conn *Conn
	id   uint64
	once sync.Once
}

// Cancel detaches the handler. It blocks until any in-progress delivery
// finishes, so no callback fires after Cancel returns. Must not be called
// from inside the handler itself.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.conn.mu.Lock()
		delete(s.conn.subs, s.id)
		s.conn.mu.Unlock()
	})
}

// Subscribe registers a handler for future events. Buffered recent events
// are replayed to the handler synchronously before it goes live, so a late
// subscriber starts from a warm state.
func (c *Conn) Subscribe(fn Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, ev := range c.replay.Events() {
		fn(ev)
	}

	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return &Subscription{conn: c, id: id}
}

func (c *Conn) run(ctx context.Context) {
	defer close(c.done)

	for {
		tr, name, err := c.negotiate(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("feed connect failed, retrying", "error", err, "retry_in", c.cfg.RetryDelay)
			if !sleepCtx(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}

		c.status.Store(int32(StatusConnected))
		c.log.Info("feed connected", "transport", name, "topic", c.cfg.Topic)

		c.readAll(ctx, tr)

		tr.Close()
		c.status.Store(int32(StatusDisconnected))
		if ctx.Err() != nil {
			return
		}

		c.log.Warn("feed disconnected, retrying", "retry_in", c.cfg.RetryDelay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}
		if !sleepCtx(ctx, c.cfg.RetryDelay) {
			return
		}
	}
}

// negotiate tries the websocket first, then the streaming-HTTP fallback.
func (c *Conn) negotiate(ctx context.Context) (transport, string, error) {
	ws, wsErr := dialWebSocket(ctx, c.cfg)
	if wsErr == nil {
		return ws, "websocket", nil
	}
	if ctx.Err() != nil {
		return nil, "", ctx.Err()
	}

	c.log.Info("websocket unavailable, falling back to stream", "error", wsErr)
	st, stErr := dialStream(ctx, c.cfg)
	if stErr == nil {
		return st, "stream", nil
	}
	return nil, "", stErr
}

// readAll pumps events from the transport until it fails or ctx ends.
func (c *Conn) readAll(ctx context.Context, tr transport) {
	// Unblock the transport read when the connection is torn down.
	readCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		<-readCtx.Done()
		tr.Close()
	}()

	for {
		ev, err := tr.ReadEvent()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("feed read error", "error", err)
			}
			return
		}
		c.dispatch(ev)
	}
}

func (c *Conn) dispatch(ev model.PriceEvent) {
	c.replay.Push(ev)

	c.mu.Lock()
	for _, fn := range c.subs {
		fn(ev)
	}
	c.mu.Unlock()

	if c.OnEvent != nil {
		c.OnEvent()
	}
}

// sleepCtx waits d, returning false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
