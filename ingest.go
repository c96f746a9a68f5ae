package logfwd

import (
	"fmt"

	"github.com/valyala/bytebufferpool"

	"github.com/lixenwraith/logfwd/codec"
)

// Submit accepts one record for forwarding. It never blocks on network I/O.
// Records from the owner are framed and queued for delivery. Records from any other goroutine
// are staged and merged by the next Sync. Empty payloads are ignored.
// Payloads longer than codec.MaxPayloadSize are cut to that size.
func (p *Pipeline) Submit(sev Severity, payload []byte) {
	if len(payload) == 0 {
		return
	}
	if len(payload) > codec.MaxPayloadSize {
		payload = payload[:codec.MaxPayloadSize]
		p.state.Truncated.Add(1)
	}
	if !p.state.IsInitialized.Load() || p.state.NoSync.Load() {
		return
	}

	cfg := p.getConfig()
	rec := p.newRecord(cfg, sev, payload)

	// This process role never forwards
	if !cfg.Forward {
		p.writeLocal(rec)
		return
	}

	gid := goroutineID()
	if p.guard.heldBy(gid) {
		p.state.Suppressed.Add(1)
		return
	}

	p.mu.Lock()
	var accepted bool
	if gid != 0 && gid == p.owner.Load() {
		accepted = p.enqueueLocked(cfg, &rec)
	} else {
		p.stageLocked(&rec)
		accepted = true
	}
	if accepted {
		p.state.Submitted.Add(1)
		if cfg.LocalEcho && !p.endpoint.delivered {
			p.writeLocal(rec)
		}
	}
	p.mu.Unlock()

	if accepted {
		p.wake()
	}
}

// Submitf formats according to a format specifier and submits the result
func (p *Pipeline) Submitf(sev Severity, format string, args ...any) {
	p.Submit(sev, fmt.Appendf(nil, format, args...))
}

// Print submits a plain record
func (p *Pipeline) Print(args ...any) {
	p.Submit(SeverityPrint, appendArgs(nil, args))
}

// Debug submits a record at debug severity
func (p *Pipeline) Debug(args ...any) {
	p.Submit(SeverityDebug, appendArgs(nil, args))
}

// Info submits a record at info severity
func (p *Pipeline) Info(args ...any) {
	p.Submit(SeverityInfo, appendArgs(nil, args))
}

// Warn submits a record at warning severity
func (p *Pipeline) Warn(args ...any) {
	p.Submit(SeverityWarning, appendArgs(nil, args))
}

// Error submits a record at error severity
func (p *Pipeline) Error(args ...any) {
	p.Submit(SeverityError, appendArgs(nil, args))
}

// newRecord stamps a record with the configured origin identity and the current time
func (p *Pipeline) newRecord(cfg *Config, sev Severity, payload []byte) codec.Record {
	rec := codec.Record{
		UID:           int32(cfg.UID),
		Severity:      sev,
		ComponentKind: int32(cfg.ComponentKind),
		ComponentID:   uint64(cfg.ComponentID),
		GlobalOrder:   int32(cfg.GlobalOrder),
		GroupOrder:    int32(cfg.GroupOrder),
		Payload:       payload,
	}
	rec.Stamp(p.now())
	return rec
}

func (p *Pipeline) msgID(cfg *Config) uint16 {
	return uint16(cfg.MessageID)
}

// enqueueLocked frames rec onto the outbound queue, evicting everything when the limit would be exceeded.
// Returns false if rec was dropped.
func (p *Pipeline) enqueueLocked(cfg *Config, rec *codec.Record) bool {
	if p.outstanding+1 > cfg.EffectiveMaxBuffered() {
		p.evictLocked("buffer full")
		p.state.Dropped.Add(1)
		return false
	}
	p.outbound.push(codec.NewUnit(p.msgID(cfg), rec))
	p.outstanding++
	return true
}

// stageLocked encodes rec into a pooled buffer and pushes it on the staging queue
func (p *Pipeline) stageLocked(rec *codec.Record) {
	buf := p.pool.acquire()
	buf.B = codec.AppendBody(buf.B, rec)
	p.staging.push(buf)
	p.outstanding++
	p.state.Staged.Add(1)
}

// mergeStagedLocked moves every staged body into a new unit on the outbound queue.
// The body bytes move into the unit and the emptied buffer returns to the pool.
func (p *Pipeline) mergeStagedLocked(msgID uint16) {
	p.staging.drain(func(buf *bytebufferpool.ByteBuffer) {
		body := buf.B
		buf.B = nil
		p.outbound.push(&codec.Unit{MsgID: msgID, Body: body})
		p.pool.release(buf)
	})
}

// evictLocked discards both queues and resets the outstanding counter
func (p *Pipeline) evictLocked(reason string) int64 {
	n := p.outstanding
	p.outbound.drain(func(*codec.Unit) {})
	p.staging.drain(func(buf *bytebufferpool.ByteBuffer) {
		p.pool.release(buf)
	})
	p.outstanding = 0
	if n == 0 {
		return 0
	}

	p.state.Evictions.Add(1)
	p.state.Dropped.Add(uint64(n))
	p.notice(SeverityWarning, fmt.Sprintf("logfwd: discarded %d buffered records (%s)", n, reason))
	return n
}

// writeLocal sends rec to the local fallback sink
func (p *Pipeline) writeLocal(rec codec.Record) {
	s := p.getSink()
	if s == nil {
		return
	}
	if err := s.WriteRecord(rec); err != nil {
		p.internalLog("warning - local sink write failed: %v", err)
	}
}

// notice emits a pipeline diagnostic through the local sink
func (p *Pipeline) notice(sev Severity, msg string) {
	if s := p.getSink(); s != nil {
		s.Notice(sev, msg)
	}
}
