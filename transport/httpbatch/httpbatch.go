// Package httpbatch forwards framed units to collectors as zstd-compressed HTTP POST batches.
// Requests run on a bounded ants worker pool so the drain cycle never waits on the network.
package httpbatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/panjf2000/ants/v2"
	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/transport"
)

const (
	defaultPath          = "/ingest"
	defaultTimeout       = 3 * time.Second
	defaultWorkers       = 4
	defaultRetryInterval = time.Second
)

// Option configures a Transport
type Option func(*Transport)

// WithTimeout bounds each POST
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithWorkers sets the number of concurrent POSTs across all collectors
func WithWorkers(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.workerCount = n
		}
	}
}

// WithPath sets the request path on the collector
func WithPath(path string) Option {
	return func(t *Transport) {
		t.path = path
	}
}

// WithCompression enables or disables zstd request bodies
func WithCompression(enable bool) Option {
	return func(t *Transport) {
		t.compress = enable
	}
}

// WithRetryInterval sets how long a collector is considered down after a failed POST
func WithRetryInterval(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.retryInterval = d
		}
	}
}

// WithLogger routes transport diagnostics and fasthttp client errors to logger
func WithLogger(logger fasthttp.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport posts batches to collectors over HTTP
type Transport struct {
	client        *fasthttp.Client
	encoder       *zstd.Encoder
	workers       *ants.Pool
	logger        fasthttp.Logger
	timeout       time.Duration
	workerCount   int
	path          string
	compress      bool
	retryInterval time.Duration

	mu       sync.Mutex
	channels map[string]*channel
	closed   bool
}

// New creates the HTTP client, encoder and worker pool
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		timeout:       defaultTimeout,
		workerCount:   defaultWorkers,
		path:          defaultPath,
		compress:      true,
		retryInterval: defaultRetryInterval,
		channels:      make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(t)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("httpbatch: failed to create zstd encoder: %w", err)
	}
	workers, err := ants.NewPool(t.workerCount, ants.WithNonblocking(true))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("httpbatch: failed to create worker pool: %w", err)
	}

	t.encoder = encoder
	t.workers = workers
	t.client = &fasthttp.Client{
		Name:                "logfwd",
		MaxConnsPerHost:     t.workerCount,
		ReadTimeout:         t.timeout,
		WriteTimeout:        t.timeout,
		MaxIdleConnDuration: time.Minute,
	}
	return t, nil
}

// ResolveChannel returns the channel for addr, or nil while the collector is marked down
func (t *Transport) ResolveChannel(addr string) transport.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	ch, ok := t.channels[addr]
	if !ok {
		ch = &channel{t: t, addr: addr, uri: "http://" + addr + t.path}
		t.channels[addr] = ch
	}
	if ch.isDown(time.Now()) {
		return nil
	}
	return ch
}

// Close waits for in-flight POSTs and releases the worker pool and encoder
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.workers.ReleaseTimeout(t.timeout + time.Second)
	if encErr := t.encoder.Close(); encErr != nil && err == nil {
		err = encErr
	}
	t.client.CloseIdleConnections()
	return err
}

func (t *Transport) logf(format string, args ...any) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// channel accumulates frames for one collector and posts them from a worker
type channel struct {
	t         *Transport
	addr      string
	uri       string
	mu        sync.Mutex
	pending   []byte
	downUntil time.Time
	sending   atomic.Bool
}

// Enqueue appends the framed unit to the next batch
func (c *channel) Enqueue(u *codec.Unit) {
	c.mu.Lock()
	c.pending = u.AppendFrame(c.pending)
	c.mu.Unlock()
}

// DeferredSend hands the pending batch to a worker unless a POST is in flight
func (c *channel) DeferredSend() {
	if !c.sending.CompareAndSwap(false, true) {
		return
	}
	c.submit()
}

// IsSending reports whether a POST is in flight
func (c *channel) IsSending() bool {
	return c.sending.Load()
}

func (c *channel) isDown(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Before(c.downUntil)
}

func (c *channel) markDown() {
	c.mu.Lock()
	c.downUntil = time.Now().Add(c.t.retryInterval)
	c.mu.Unlock()
}

// submit schedules post on the worker pool, called with sending held
func (c *channel) submit() {
	if err := c.t.workers.Submit(c.post); err != nil {
		// Pool saturated or closed, pending frames wait for the next sync
		c.sending.Store(false)
	}
}

// post sends everything pending as one request
func (c *channel) post() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) > 0 {
		if err := c.do(batch); err != nil {
			c.markDown()
			c.t.logf("httpbatch: post to %s failed: %v", c.addr, err)
		}
	}
	c.release()
}

func (c *channel) do(batch []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.uri)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	if c.t.compress {
		req.Header.Set(fasthttp.HeaderContentEncoding, "zstd")
		req.SetBodyRaw(c.t.encoder.EncodeAll(batch, nil))
	} else {
		req.SetBodyRaw(batch)
	}

	if err := c.t.client.DoTimeout(req, resp, c.t.timeout); err != nil {
		return err
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("unexpected status %d", code)
	}
	return nil
}

// release clears the sending flag and reschedules if frames arrived during the POST
func (c *channel) release() {
	c.sending.Store(false)

	c.mu.Lock()
	more := len(c.pending) > 0
	c.mu.Unlock()

	if more && c.sending.CompareAndSwap(false, true) {
		c.submit()
	}
}
