package compat

import (
	"fmt"
	"time"

	"github.com/lixenwraith/logfwd"
	"github.com/lixenwraith/logfwd/transport"
	"github.com/lixenwraith/logfwd/transport/beats"
	"github.com/lixenwraith/logfwd/transport/httpbatch"
	"github.com/lixenwraith/logfwd/transport/tcp"
)

// Builder wires a pipeline to host server adapters and to the transport named by its configuration.
// It can use an existing *logfwd.Pipeline instance or create a new one from a *logfwd.Config
type Builder struct {
	pipeline *logfwd.Pipeline
	cfg      *logfwd.Config
	err      error
}

// NewBuilder creates a new adapter builder
func NewBuilder() *Builder {
	return &Builder{}
}

// WithPipeline specifies an existing pipeline to use for the adapters.
// If this is set WithConfig is ignored
func (b *Builder) WithPipeline(p *logfwd.Pipeline) *Builder {
	if p == nil {
		b.err = fmt.Errorf("logfwd/compat: provided pipeline cannot be nil")
		return b
	}
	b.pipeline = p
	return b
}

// WithConfig provides a configuration for a new pipeline instance.
// If neither WithPipeline nor WithConfig is used, a default pipeline is created
func (b *Builder) WithConfig(cfg *logfwd.Config) *Builder {
	b.cfg = cfg
	return b
}

// getPipeline resolves the pipeline to be used, creating one if necessary
func (b *Builder) getPipeline() (*logfwd.Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.pipeline != nil {
		return b.pipeline, nil
	}

	p := logfwd.NewPipeline()
	cfg := b.cfg
	if cfg == nil {
		cfg = logfwd.DefaultConfig()
	}
	if err := p.ApplyConfig(cfg); err != nil {
		return nil, err
	}

	b.pipeline = p
	return p, nil
}

// BuildGnet creates a gnet adapter
func (b *Builder) BuildGnet(opts ...GnetOption) (*GnetAdapter, error) {
	p, err := b.getPipeline()
	if err != nil {
		return nil, err
	}
	return NewGnetAdapter(p, opts...), nil
}

// BuildFastHTTP creates a fasthttp adapter
func (b *Builder) BuildFastHTTP(opts ...FastHTTPOption) (*FastHTTPAdapter, error) {
	p, err := b.getPipeline()
	if err != nil {
		return nil, err
	}
	return NewFastHTTPAdapter(p, opts...), nil
}

// BuildTransport creates the transport selected by the pipeline's transport key.
// Transport diagnostics are routed back into the pipeline through the matching adapter.
// Returns nil for the "none" transport
func (b *Builder) BuildTransport() (transport.Transport, error) {
	p, err := b.getPipeline()
	if err != nil {
		return nil, err
	}
	cfg := p.GetConfig()
	timeout := time.Duration(cfg.TransportTimeoutMs) * time.Millisecond

	switch cfg.Transport {
	case logfwd.TransportTCP:
		return newTCP(p, timeout)
	case logfwd.TransportHTTP:
		return newHTTP(p, timeout)
	case logfwd.TransportBeats:
		return newBeats(p, timeout)
	case logfwd.TransportNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("logfwd/compat: unknown transport '%s'", cfg.Transport)
	}
}

func newTCP(p *logfwd.Pipeline, retry time.Duration) (transport.Transport, error) {
	// A failing client must not take the process down
	t, err := tcp.New(
		tcp.WithLogger(NewGnetAdapter(p, WithFatalHandler(nil))),
		tcp.WithRetryInterval(retry))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func newHTTP(p *logfwd.Pipeline, timeout time.Duration) (transport.Transport, error) {
	t, err := httpbatch.New(
		httpbatch.WithTimeout(timeout),
		httpbatch.WithRetryInterval(timeout),
		httpbatch.WithLogger(NewFastHTTPAdapter(p)))
	if err != nil {
		return nil, err
	}
	return t, nil
}

func newBeats(p *logfwd.Pipeline, timeout time.Duration) (transport.Transport, error) {
	t, err := beats.New(
		beats.WithTimeout(timeout),
		beats.WithRetryInterval(timeout),
		beats.WithLogger(NewFastHTTPAdapter(p, WithSource("beats"))))
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Build returns the pipeline with its configured transport installed
func (b *Builder) Build() (*logfwd.Pipeline, error) {
	p, err := b.getPipeline()
	if err != nil {
		return nil, err
	}
	t, err := b.BuildTransport()
	if err != nil {
		return nil, err
	}
	if t != nil {
		if err := p.SetTransport(t); err != nil {
			_ = t.Close()
			return nil, err
		}
	}
	return p, nil
}

// GetPipeline returns the underlying *logfwd.Pipeline instance.
// If a pipeline has not been provided or created yet, it will be initialized
func (b *Builder) GetPipeline() (*logfwd.Pipeline, error) {
	return b.getPipeline()
}

// --- Example Usage ---
//
//	cfg := logfwd.DefaultConfig()
//	cfg.Transport = logfwd.TransportHTTP
//	cfg.Collector = "collector.internal:9600"
//
//	builder := compat.NewBuilder().WithConfig(cfg)
//	p, err := builder.Build()
//	if err != nil { /* handle error */ }
//	_ = p.Start()
//	defer p.Shutdown()
//
//	// Host servers log through the same pipeline
//	fasthttpLogger, _ := builder.BuildFastHTTP()
//	server := &fasthttp.Server{Handler: handler, Logger: fasthttpLogger}
//
//	gnetLogger, _ := builder.BuildGnet()
//	go gnet.Run(events, "tcp://:9000", gnet.WithLogger(gnetLogger))
