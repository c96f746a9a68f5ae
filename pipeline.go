package logfwd

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lixenwraith/logfwd/transport"
)

// Pipeline is the core struct that buffers records and forwards them to a collector
type Pipeline struct {
	currentConfig atomic.Value // stores *Config
	state         State
	initMu        sync.Mutex

	// mu guards the buffer pool, both queues, the outstanding counter, the endpoint and the transport
	mu          sync.Mutex
	pool        bufferPool
	staging     stagingQueue
	outbound    outboundQueue
	outstanding int64
	endpoint    endpointRegistry
	transport   transport.Transport
	ownSink     bool // Sink was built from config and is replaced on reconfiguration

	guard reentrancyGuard
	owner atomic.Uint64 // Goroutine id of the owner, 0 = none bound

	loopMu   sync.Mutex
	loopStop chan struct{}
	wakeCh   chan struct{}
	taskCh   chan func()

	nowFunc  func() time.Time
	exitFunc func(int)
}

// NewPipeline creates a new Pipeline instance with default settings
func NewPipeline() *Pipeline {
	p := &Pipeline{
		wakeCh:   make(chan struct{}, 1),
		taskCh:   make(chan func(), taskQueueSize),
		nowFunc:  time.Now,
		exitFunc: os.Exit,
	}

	// Set default configuration
	p.currentConfig.Store(DefaultConfig())

	// Initialize the state
	p.state.IsInitialized.Store(false)
	p.state.Started.Store(false)
	p.state.ShutdownCalled.Store(false)
	p.state.NoSync.Store(false)
	p.state.ProcessorExited.Store(true)
	p.state.Sink.Store(sinkHolder{})
	p.state.StartTime.Store(time.Now())

	// The no-collector period starts at creation
	p.endpoint.unregister(p.now())

	return p
}

// ApplyConfig applies a validated configuration to the pipeline
// This is the primary way applications should configure the pipeline
func (p *Pipeline) ApplyConfig(cfg *Config) error {
	if cfg == nil {
		return fmtErrorf("configuration cannot be nil")
	}

	if err := cfg.Validate(); err != nil {
		return fmtErrorf("invalid configuration: %w", err)
	}

	p.initMu.Lock()
	defer p.initMu.Unlock()

	return p.applyConfig(cfg.Clone())
}

// GetConfig returns a copy of current configuration
func (p *Pipeline) GetConfig() *Config {
	return p.getConfig().Clone()
}

// SetTransport installs the transport used to reach the collector, closing the previous one
func (p *Pipeline) SetTransport(t transport.Transport) error {
	p.mu.Lock()
	old := p.transport
	p.transport = t
	p.mu.Unlock()

	if old != nil && old != t {
		if err := old.Close(); err != nil {
			return fmtErrorf("failed to close previous transport: %w", err)
		}
	}
	return nil
}

// SetSink replaces the local fallback sink. A sink set here survives reconfiguration.
func (p *Pipeline) SetSink(s Sink) {
	p.mu.Lock()
	p.ownSink = false
	p.mu.Unlock()
	p.state.Sink.Store(sinkHolder{s: s})
}

// BindOwner marks the calling goroutine as the owner.
// Records submitted from the owner go straight to the outbound queue, others are staged.
func (p *Pipeline) BindOwner() {
	p.owner.Store(goroutineID())
}

// IsOwner reports whether the calling goroutine is the bound owner
func (p *Pipeline) IsOwner() bool {
	return p.owner.Load() == goroutineID()
}

// Suppressed reports whether records from the calling goroutine are currently being dropped.
// Adapters check it to avoid formatting diagnostics raised while the pipeline talks to its transport.
func (p *Pipeline) Suppressed() bool {
	return p.guard.heldBy(goroutineID())
}

// Start begins the event loop on a new goroutine which becomes the owner. Safe to call multiple times
// Returns error if the pipeline is not initialized
func (p *Pipeline) Start() error {
	if !p.state.IsInitialized.Load() {
		return fmtErrorf("pipeline not initialized, call ApplyConfig first")
	}

	// Check if processor didn't exit cleanly last time
	if p.state.Started.Load() && !p.state.ProcessorExited.Load() {
		return nil
	}

	if p.state.Started.CompareAndSwap(false, true) {
		stop := make(chan struct{})
		p.loopMu.Lock()
		p.loopStop = stop
		p.loopMu.Unlock()

		ready := make(chan struct{})
		p.state.ProcessorExited.Store(false)
		go p.processLoop(stop, ready)
		<-ready
	}

	return nil
}

// Run executes the event loop on the calling goroutine until ctx is done or Stop is called
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.state.IsInitialized.Load() {
		return fmtErrorf("pipeline not initialized, call ApplyConfig first")
	}
	if !p.state.Started.CompareAndSwap(false, true) {
		return fmtErrorf("event loop already running")
	}

	stop := make(chan struct{})
	p.loopMu.Lock()
	p.loopStop = stop
	p.loopMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Stop()
		case <-done:
		}
	}()

	p.state.ProcessorExited.Store(false)
	p.processLoop(stop, nil)
	return ctx.Err()
}

// Stop halts the event loop. Can be restarted with Start()
// Returns nil if already stopped
func (p *Pipeline) Stop(timeout ...time.Duration) error {
	if !p.state.Started.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	var effectiveTimeout time.Duration
	if len(timeout) > 0 {
		effectiveTimeout = timeout[0]
	} else {
		cfg := p.getConfig()
		effectiveTimeout = 2 * time.Duration(cfg.SyncIntervalMs) * time.Millisecond
		if effectiveTimeout < 10*minWaitTime {
			effectiveTimeout = 10 * minWaitTime
		}
	}

	p.loopMu.Lock()
	if p.loopStop != nil {
		close(p.loopStop)
		p.loopStop = nil
	}
	p.loopMu.Unlock()

	// Wait for processor to exit (with timeout)
	deadline := time.Now().Add(effectiveTimeout)
	for time.Now().Before(deadline) {
		if p.state.ProcessorExited.Load() {
			break
		}
		time.Sleep(minWaitTime)
	}

	if !p.state.ProcessorExited.Load() {
		return fmtErrorf("processor did not exit within timeout (%v)", effectiveTimeout)
	}

	return nil
}

// Shutdown stops the event loop, drains what it can to the collector, discards the rest,
// syncs the local sink and closes the transport.
// If no timeout is provided, shutdown_timeout_ms bounds the final drain.
func (p *Pipeline) Shutdown(timeout ...time.Duration) error {
	if !p.state.ShutdownCalled.CompareAndSwap(false, true) {
		return nil
	}

	if !p.state.IsInitialized.Load() {
		p.state.ShutdownCalled.Store(false)
		p.state.ProcessorExited.Store(true)
		return nil
	}

	var finalErr error
	if p.state.Started.Load() {
		if err := p.Stop(); err != nil {
			finalErr = combineErrors(finalErr, err)
		}
	}

	cfg := p.getConfig()
	effectiveTimeout := time.Duration(cfg.ShutdownTimeoutMs) * time.Millisecond
	if len(timeout) > 0 {
		effectiveTimeout = timeout[0]
	}

	// The caller takes over the owner role for the final drain
	p.BindOwner()
	p.finalDrain(time.Now().Add(effectiveTimeout))

	p.state.NoSync.Store(true)
	p.state.IsInitialized.Store(false)

	if s := p.getSink(); s != nil {
		if err := s.Sync(); err != nil {
			finalErr = combineErrors(finalErr, fmtErrorf("failed to sync local sink during shutdown: %w", err))
		}
	}

	p.mu.Lock()
	tr := p.transport
	p.transport = nil
	p.mu.Unlock()
	if tr != nil {
		if err := tr.Close(); err != nil {
			finalErr = combineErrors(finalErr, fmtErrorf("failed to close transport during shutdown: %w", err))
		}
	}

	return finalErr
}

// finalDrain repeats sync while it makes progress, waits for channels to go idle and discards the rest
func (p *Pipeline) finalDrain(deadline time.Time) {
	gid := goroutineID()

	prev := p.Outstanding()
	for prev > 0 {
		p.sync(gid)
		cur := p.Outstanding()
		if cur == 0 || cur >= prev || !time.Now().Before(deadline) {
			break
		}
		prev = cur
		time.Sleep(minWaitTime)
	}

	for time.Now().Before(deadline) {
		ch := p.resolveChannel()
		if ch == nil || !ch.IsSending() {
			break
		}
		time.Sleep(minWaitTime)
	}

	p.mu.Lock()
	p.mergeStagedLocked(p.msgID(p.getConfig()))
	p.evictLocked("shutdown")
	p.mu.Unlock()
}

// Post schedules fn to run on the owner goroutine. Returns false if the loop is not running or the queue is full.
func (p *Pipeline) Post(fn func()) bool {
	if fn == nil || !p.state.Started.Load() {
		return false
	}
	select {
	case p.taskCh <- fn:
		return true
	default:
		return false
	}
}

// getConfig returns the current configuration (thread-safe)
func (p *Pipeline) getConfig() *Config {
	return p.currentConfig.Load().(*Config)
}

func (p *Pipeline) getSink() Sink {
	return p.state.Sink.Load().(sinkHolder).s
}

func (p *Pipeline) now() time.Time {
	return p.nowFunc()
}

// wake signals the event loop that records are outstanding
func (p *Pipeline) wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// applyConfig is the internal implementation for applying configuration, assuming initMu is held
func (p *Pipeline) applyConfig(cfg *Config) error {
	oldCfg := p.getConfig()

	if cfg.ComponentID == 0 {
		if oldCfg.ComponentID != 0 {
			cfg.ComponentID = oldCfg.ComponentID
		} else {
			cfg.ComponentID = randomComponentID()
		}
	}

	// Rebuild the local sink unless the application supplied its own
	p.mu.Lock()
	rebuild := p.ownSink || p.getSink() == nil
	p.mu.Unlock()
	if rebuild {
		newSink, err := NewLocalSink(cfg)
		if err != nil {
			return fmtErrorf("failed to create local sink: %w", err)
		}
		oldSink := p.getSink()
		p.state.Sink.Store(sinkHolder{s: newSink})
		p.mu.Lock()
		p.ownSink = true
		p.mu.Unlock()
		if closer, ok := oldSink.(*LocalSink); ok && closer != nil {
			if err := closer.Close(); err != nil {
				p.internalLog("warning - failed to close previous local sink: %v", err)
			}
		}
	}

	wasInitialized := p.state.IsInitialized.Load()
	wasStarted := p.state.Started.Load()
	needsRestart := wasStarted && wasInitialized && configRequiresRestart(oldCfg, cfg)

	if needsRestart {
		if err := p.Stop(); err != nil {
			return fmtErrorf("failed to stop processor for restart: %w", err)
		}
	}

	p.currentConfig.Store(cfg)

	switch {
	case cfg.Collector != "" && cfg.Collector != oldCfg.Collector:
		p.mu.Lock()
		p.endpoint.register(cfg.Collector)
		p.mu.Unlock()
	case cfg.Collector == "" && oldCfg.Collector != "":
		// Clearing the key behaves like Unregister
		p.Unregister()
	}

	p.state.IsInitialized.Store(true)
	p.state.ShutdownCalled.Store(false)
	p.state.NoSync.Store(false)

	if needsRestart {
		return p.Start()
	}

	return nil
}

// configRequiresRestart reports whether the running event loop must be rebuilt for cfg
func configRequiresRestart(oldCfg, newCfg *Config) bool {
	return oldCfg.SyncIntervalMs != newCfg.SyncIntervalMs ||
		oldCfg.HeartbeatIntervalS != newCfg.HeartbeatIntervalS
}
