// Package tcp forwards framed units to collectors over persistent TCP connections
// managed by a gnet client event loop.
package tcp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/transport"
)

const defaultRetryInterval = time.Second

// Option configures a Transport
type Option func(*Transport)

// WithLogger routes gnet and transport diagnostics to logger
func WithLogger(logger logging.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithRetryInterval sets the minimum delay between dial attempts to one address
func WithRetryInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.retryInterval = d
		}
	}
}

// Transport keeps at most one connection per collector address
type Transport struct {
	client        *gnet.Client
	logger        logging.Logger
	retryInterval time.Duration

	mu       sync.Mutex
	channels map[string]*channel
	dialing  map[string]bool
	retryAt  map[string]time.Time
	closed   bool
}

// New starts the gnet client event loop
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		retryInterval: defaultRetryInterval,
		channels:      make(map[string]*channel),
		dialing:       make(map[string]bool),
		retryAt:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}

	gopts := []gnet.Option{gnet.WithTCPNoDelay(gnet.TCPNoDelay)}
	if t.logger != nil {
		gopts = append(gopts, gnet.WithLogger(t.logger))
	}

	client, err := gnet.NewClient(&eventHandler{t: t}, gopts...)
	if err != nil {
		return nil, fmt.Errorf("tcp: failed to create client: %w", err)
	}
	if err := client.Start(); err != nil {
		return nil, fmt.Errorf("tcp: failed to start client: %w", err)
	}
	t.client = client
	return t, nil
}

// ResolveChannel returns the live channel for addr. While no connection exists it starts
// a background dial and returns nil.
func (t *Transport) ResolveChannel(addr string) transport.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	if ch, ok := t.channels[addr]; ok {
		if !ch.closed.Load() {
			return ch
		}
		delete(t.channels, addr)
	}

	if !t.dialing[addr] && !time.Now().Before(t.retryAt[addr]) {
		t.dialing[addr] = true
		go t.dial(addr)
	}
	return nil
}

// dial connects to addr and publishes the channel once the connection is enrolled.
// The logger may feed back into the pipeline, so it is never called with t.mu held.
func (t *Transport) dial(addr string) {
	conn, err := t.client.Dial("tcp", addr)
	if !t.publish(addr, conn, err) && err != nil {
		t.warnf("tcp: dial %s failed: %v", addr, err)
	}
}

// publish records the dial outcome for addr. Returns true if conn became the live channel.
func (t *Transport) publish(addr string, conn gnet.Conn, err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dialing, addr)

	if err != nil {
		t.retryAt[addr] = time.Now().Add(t.retryInterval)
		return false
	}
	if t.closed {
		_ = conn.Close()
		return false
	}

	ch := &channel{conn: conn, addr: addr}
	conn.SetContext(ch)
	t.channels[addr] = ch
	delete(t.retryAt, addr)
	return true
}

// drop forgets ch after its connection closed
func (t *Transport) drop(ch *channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.channels[ch.addr]; ok && cur == ch {
		delete(t.channels, ch.addr)
		t.retryAt[ch.addr] = time.Now().Add(t.retryInterval)
	}
}

// Close closes every connection and stops the client event loop
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	channels := t.channels
	t.channels = make(map[string]*channel)
	t.mu.Unlock()

	for _, ch := range channels {
		ch.closed.Store(true)
		_ = ch.conn.Close()
	}
	return t.client.Stop()
}

func (t *Transport) warnf(format string, args ...any) {
	if t.logger != nil {
		t.logger.Warnf(format, args...)
	}
}

// eventHandler receives gnet client events
type eventHandler struct {
	gnet.BuiltinEventEngine
	t *Transport
}

// OnClose drops the channel so the next resolve redials
func (h *eventHandler) OnClose(c gnet.Conn, err error) gnet.Action {
	if ch, ok := c.Context().(*channel); ok && ch != nil {
		ch.closed.Store(true)
		h.t.drop(ch)
		if err != nil {
			h.t.warnf("tcp: connection to %s closed: %v", ch.addr, err)
		}
	}
	return gnet.None
}

// OnTraffic discards anything the collector sends back
func (h *eventHandler) OnTraffic(c gnet.Conn) gnet.Action {
	_, _ = c.Discard(c.InboundBuffered())
	return gnet.None
}

// channel batches framed units and writes them asynchronously on the gnet event loop
type channel struct {
	conn    gnet.Conn
	addr    string
	mu      sync.Mutex
	pending [][]byte
	sending atomic.Bool
	closed  atomic.Bool
}

// Enqueue frames u for the next write
func (c *channel) Enqueue(u *codec.Unit) {
	c.mu.Lock()
	c.pending = append(c.pending, u.Frame())
	c.mu.Unlock()
}

// DeferredSend starts an asynchronous write of everything pending unless one is in flight
func (c *channel) DeferredSend() {
	if !c.sending.CompareAndSwap(false, true) {
		return
	}
	c.flush()
}

// IsSending reports whether a write is in flight
func (c *channel) IsSending() bool {
	return c.sending.Load()
}

// flush writes the pending batch, called with sending held
func (c *channel) flush() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 || c.closed.Load() {
		c.release()
		return
	}

	err := c.conn.AsyncWritev(batch, func(_ gnet.Conn, err error) error {
		if err != nil {
			c.closed.Store(true)
		}
		c.release()
		return nil
	})
	if err != nil {
		c.closed.Store(true)
		c.release()
	}
}

// release clears the sending flag and picks up units enqueued while the write was in flight
func (c *channel) release() {
	c.sending.Store(false)

	c.mu.Lock()
	more := len(c.pending) > 0
	c.mu.Unlock()

	if more && !c.closed.Load() && c.sending.CompareAndSwap(false, true) {
		c.flush()
	}
}
