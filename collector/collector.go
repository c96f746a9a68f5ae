// Package collector receives forwarded records: framed units over TCP through a gnet
// server, and zstd-compressed frame batches over HTTP through a fasthttp handler.
package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/panjf2000/gnet/v2"
	"github.com/panjf2000/gnet/v2/pkg/logging"
	"github.com/valyala/fasthttp"

	"github.com/lixenwraith/logfwd/codec"
)

// IngestPath is the HTTP path batches are posted to
const IngestPath = "/ingest"

// DefaultMaxBatchSize bounds the decompressed size of one posted batch
const DefaultMaxBatchSize = 64 << 20

// Handler receives each decoded record.
// The payload aliases a receive buffer and is only valid for the duration of the call.
type Handler func(rec codec.Record, remote string)

// Option configures a Server
type Option func(*Server)

// WithLogger routes gnet diagnostics to logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxBatchSize bounds the decompressed size of one posted batch
func WithMaxBatchSize(n uint64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithMulticore runs one gnet event loop per CPU
func WithMulticore(enable bool) Option {
	return func(s *Server) {
		s.multicore = enable
	}
}

// Server decodes frames from forwarding pipelines and hands records to a Handler
type Server struct {
	gnet.BuiltinEventEngine

	handler   Handler
	logger    logging.Logger
	multicore bool
	maxBatch  uint64
	decoder   *zstd.Decoder

	mu     sync.Mutex
	eng    gnet.Engine
	booted chan struct{}

	received atomic.Uint64
	rejected atomic.Uint64
}

// New creates a Server delivering records to h
func New(h Handler, opts ...Option) (*Server, error) {
	if h == nil {
		return nil, errors.New("collector: handler cannot be nil")
	}
	s := &Server{
		handler:  h,
		maxBatch: DefaultMaxBatchSize,
		booted:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(s.maxBatch))
	if err != nil {
		return nil, fmt.Errorf("collector: failed to create zstd decoder: %w", err)
	}
	s.decoder = decoder
	return s, nil
}

// ServeTCP runs the gnet engine on addr until Stop is called
func (s *Server) ServeTCP(addr string) error {
	opts := []gnet.Option{gnet.WithMulticore(s.multicore)}
	if s.logger != nil {
		opts = append(opts, gnet.WithLogger(s.logger))
	}
	return gnet.Run(s, "tcp://"+addr, opts...)
}

// WaitReady blocks until the TCP engine has booted or timeout elapses
func (s *Server) WaitReady(timeout time.Duration) bool {
	select {
	case <-s.booted:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stop shuts the TCP engine down and releases the decoder
func (s *Server) Stop(ctx context.Context) error {
	defer s.decoder.Close()

	select {
	case <-s.booted:
	default:
		return nil // Never served TCP
	}

	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	return eng.Stop(ctx)
}

// Received returns the number of records delivered to the handler
func (s *Server) Received() uint64 {
	return s.received.Load()
}

// Rejected returns the number of connections or requests refused for malformed input
func (s *Server) Rejected() uint64 {
	return s.rejected.Load()
}

// OnBoot records the engine for Stop
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.mu.Lock()
	s.eng = eng
	s.mu.Unlock()
	close(s.booted)
	return gnet.None
}

// OnTraffic decodes every complete frame and leaves a partial tail buffered
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	buf, err := c.Peek(c.InboundBuffered())
	if err != nil {
		return gnet.Close
	}

	units, consumed, err := codec.ParseFrames(buf)
	if err != nil {
		s.rejected.Add(1)
		return gnet.Close
	}

	remote := ""
	if addr := c.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	if err := s.deliver(units, remote); err != nil {
		s.rejected.Add(1)
		return gnet.Close
	}

	_, _ = c.Discard(consumed)
	return gnet.None
}

// HandleHTTP accepts a POSTed batch of frames, optionally zstd-compressed
func (s *Server) HandleHTTP(ctx *fasthttp.RequestCtx) {
	if string(ctx.Path()) != IngestPath {
		ctx.Error("not found", fasthttp.StatusNotFound)
		return
	}
	if !ctx.IsPost() {
		ctx.Error("method not allowed", fasthttp.StatusMethodNotAllowed)
		return
	}

	body := ctx.PostBody()
	if string(ctx.Request.Header.Peek(fasthttp.HeaderContentEncoding)) == "zstd" {
		// DecodeAll fails once the output would exceed maxBatch
		decoded, err := s.decoder.DecodeAll(body, nil)
		if err != nil {
			s.rejected.Add(1)
			ctx.Error("invalid zstd body", fasthttp.StatusBadRequest)
			return
		}
		body = decoded
	}
	if uint64(len(body)) > s.maxBatch {
		s.rejected.Add(1)
		ctx.Error("batch too large", fasthttp.StatusRequestEntityTooLarge)
		return
	}

	units, consumed, err := codec.ParseFrames(body)
	if err != nil || consumed != len(body) {
		s.rejected.Add(1)
		ctx.Error("malformed frame batch", fasthttp.StatusBadRequest)
		return
	}

	if err := s.deliver(units, ctx.RemoteAddr().String()); err != nil {
		s.rejected.Add(1)
		ctx.Error(err.Error(), fasthttp.StatusBadRequest)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) deliver(units []codec.Unit, remote string) error {
	for i := range units {
		rec, err := units[i].Record()
		if err != nil {
			return fmt.Errorf("collector: unit %d: %w", i, err)
		}
		s.received.Add(1)
		s.handler(rec, remote)
	}
	return nil
}
