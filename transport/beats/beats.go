// Package beats ships forwarded records as events to a Beats (lumberjack v2) endpoint
// such as Logstash or Elastic Agent.
package beats

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	lumber "github.com/elastic/go-lumber/client/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/transport"
)

const (
	defaultTimeout       = 3 * time.Second
	defaultWorkers       = 2
	defaultRetryInterval = time.Second
)

// Logger receives transport diagnostics
type Logger interface {
	Printf(format string, args ...any)
}

// Option configures a Transport
type Option func(*Transport)

// WithTimeout bounds dial and send
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithCompressionLevel sets the lumberjack compression level, 0 disables compression
func WithCompressionLevel(level int) Option {
	return func(t *Transport) {
		t.compression = level
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

// WithLogger routes transport diagnostics to logger
func WithLogger(logger Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport keeps one lumberjack client per endpoint
type Transport struct {
	timeout       time.Duration
	compression   int
	retryInterval time.Duration
	logger        Logger
	workers       *ants.Pool

	mu       sync.Mutex
	channels map[string]*channel
	dialing  map[string]bool
	retryAt  map[string]time.Time
	closed   bool
}

// New creates the worker pool shared by dials and sends
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		timeout:       defaultTimeout,
		retryInterval: defaultRetryInterval,
		channels:      make(map[string]*channel),
		dialing:       make(map[string]bool),
		retryAt:       make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}

	workers, err := ants.NewPool(defaultWorkers*2, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("beats: failed to create worker pool: %w", err)
	}
	t.workers = workers
	return t, nil
}

// ResolveChannel returns the connected channel for addr, dialing in the background when none exists
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
		if err := t.workers.Submit(func() { t.dial(addr) }); err != nil {
			delete(t.dialing, addr)
		}
	}
	return nil
}

// dial connects to addr on a worker. The logger may feed back into the pipeline,
// so it is never called with t.mu held.
func (t *Transport) dial(addr string) {
	client, err := lumber.SyncDial(addr,
		lumber.CompressionLevel(t.compression),
		lumber.Timeout(t.timeout))

	t.publish(addr, client, err)
	if err != nil {
		t.logf("beats: failed connection to beats server %s: %v", addr, err)
	}
}

// publish records the dial outcome for addr
func (t *Transport) publish(addr string, client *lumber.SyncClient, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dialing, addr)

	if err != nil {
		t.retryAt[addr] = time.Now().Add(t.retryInterval)
		return
	}
	if t.closed {
		_ = client.Close()
		return
	}
	t.channels[addr] = &channel{t: t, addr: addr, client: client}
	delete(t.retryAt, addr)
}

func (t *Transport) drop(ch *channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.channels[ch.addr]; ok && cur == ch {
		delete(t.channels, ch.addr)
		t.retryAt[ch.addr] = time.Now().Add(t.retryInterval)
	}
}

// Close waits for in-flight sends and closes every client
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.workers.ReleaseTimeout(t.timeout + time.Second)

	t.mu.Lock()
	channels := t.channels
	t.channels = make(map[string]*channel)
	t.mu.Unlock()

	for _, ch := range channels {
		if ch.closed.CompareAndSwap(false, true) {
			if cerr := ch.client.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}
	return err
}

func (t *Transport) logf(format string, args ...any) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// channel converts units to events and sends them synchronously from a worker
type channel struct {
	t       *Transport
	addr    string
	client  *lumber.SyncClient
	mu      sync.Mutex
	pending []interface{}
	sending atomic.Bool
	closed  atomic.Bool
}

// Enqueue decodes u into a beats event
func (c *channel) Enqueue(u *codec.Unit) {
	rec, err := u.Record()
	if err != nil {
		c.t.logf("beats: dropping undecodable unit: %v", err)
		return
	}
	ev := Event(rec)

	c.mu.Lock()
	c.pending = append(c.pending, ev)
	c.mu.Unlock()
}

// DeferredSend schedules a send of everything pending unless one is in flight
func (c *channel) DeferredSend() {
	if !c.sending.CompareAndSwap(false, true) {
		return
	}
	c.submit()
}

// IsSending reports whether a send is in flight
func (c *channel) IsSending() bool {
	return c.sending.Load()
}

func (c *channel) submit() {
	if err := c.t.workers.Submit(c.send); err != nil {
		c.sending.Store(false)
	}
}

func (c *channel) send() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) > 0 && !c.closed.Load() {
		if _, err := c.client.Send(batch); err != nil {
			c.t.logf("beats: send to %s failed: %v", c.addr, err)
			if c.closed.CompareAndSwap(false, true) {
				_ = c.client.Close()
			}
			c.t.drop(c)
		}
	}

	c.sending.Store(false)
	c.mu.Lock()
	more := len(c.pending) > 0
	c.mu.Unlock()
	if more && !c.closed.Load() && c.sending.CompareAndSwap(false, true) {
		c.submit()
	}
}

var hostname, _ = os.Hostname()

// Event converts a record into a beats event document
func Event(rec codec.Record) map[string]interface{} {
	return map[string]interface{}{
		"@timestamp": rec.Time().UTC(),
		"message":    string(rec.Payload),
		"host": map[string]interface{}{
			"name": hostname,
		},
		"log": map[string]interface{}{
			"level":  rec.Severity.String(),
			"script": rec.Severity.IsScript(),
			"origin": map[string]interface{}{
				"uid":          rec.UID,
				"kind":         rec.ComponentKind,
				"id":           rec.ComponentID,
				"global_order": rec.GlobalOrder,
				"group_order":  rec.GroupOrder,
			},
		},
	}
}
