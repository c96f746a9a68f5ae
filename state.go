package logfwd

import (
	"sync/atomic"
	"time"
)

// State encapsulates the runtime state of the pipeline
type State struct {
	IsInitialized   atomic.Bool
	Started         atomic.Bool
	ShutdownCalled  atomic.Bool
	NoSync          atomic.Bool // Set after final teardown, nothing is forwarded anymore
	ProcessorExited atomic.Bool // Tracks if the event loop goroutine is running or has exited

	Sink atomic.Value // stores sinkHolder

	// Lifetime counters
	Submitted    atomic.Uint64 // Records accepted for forwarding
	Staged       atomic.Uint64 // Records staged from non-owner goroutines
	Sent         atomic.Uint64 // Units handed to a transport channel
	Dropped      atomic.Uint64 // Records discarded by eviction or overflow
	Evictions    atomic.Uint64 // Eviction events
	FlushedLocal atomic.Uint64 // Buffered records flushed to the local sink
	Suppressed   atomic.Uint64 // Reentrant records dropped by the guard
	Truncated    atomic.Uint64 // Payloads cut to codec.MaxPayloadSize

	// Heartbeat statistics
	HeartbeatSequence atomic.Uint64
	StartTime         atomic.Value // stores time.Time for uptime calculation
}

// sinkHolder wraps a Sink, atomic value type change workaround
type sinkHolder struct {
	s Sink
}

// Stats is a point-in-time snapshot of pipeline counters
type Stats struct {
	Outstanding int64  // Staged plus outbound units
	Staged      int    // Staged records awaiting the next drain
	Outbound    int    // Units awaiting hand-over
	IdleBuffers int    // Staging buffers in the free list
	Collector   string // Registered collector address, empty when none
	LostFor     time.Duration

	Submitted    uint64
	StagedTotal  uint64
	Sent         uint64
	Dropped      uint64
	Evictions    uint64
	FlushedLocal uint64
	Suppressed   uint64
	Truncated    uint64
}

// Stats returns a snapshot of the pipeline counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	st := Stats{
		Outstanding: p.outstanding,
		Staged:      p.staging.len(),
		Outbound:    p.outbound.len(),
		IdleBuffers: p.pool.idle(),
		Collector:   p.endpoint.addr,
		LostFor:     p.endpoint.lostFor(p.now()),
	}
	p.mu.Unlock()

	st.Submitted = p.state.Submitted.Load()
	st.StagedTotal = p.state.Staged.Load()
	st.Sent = p.state.Sent.Load()
	st.Dropped = p.state.Dropped.Load()
	st.Evictions = p.state.Evictions.Load()
	st.FlushedLocal = p.state.FlushedLocal.Load()
	st.Suppressed = p.state.Suppressed.Load()
	st.Truncated = p.state.Truncated.Load()
	return st
}

// Outstanding returns the number of records buffered but not yet handed to a channel
func (p *Pipeline) Outstanding() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
