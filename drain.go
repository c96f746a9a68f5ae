package logfwd

import (
	"fmt"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/transport"
)

// Sync runs one drain cycle. It must be called from the owner goroutine.
func (p *Pipeline) Sync() error {
	gid := goroutineID()
	if gid == 0 || gid != p.owner.Load() {
		return fmtErrorf("sync called off the owner goroutine")
	}
	if p.state.NoSync.Load() {
		return nil
	}
	p.sync(gid)
	return nil
}

// sync merges staged records, applies eviction policy and hands a batch to the collector channel
func (p *Pipeline) sync(gid uint64) {
	cfg := p.getConfig()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.mergeStagedLocked(p.msgID(cfg))

	// Anything logged by the transport from here on is dropped
	restore := p.guard.enter(gid)
	defer restore()

	maxBuffered := cfg.EffectiveMaxBuffered()

	if !p.endpoint.registered() {
		lossTimeout := time.Duration(cfg.CollectorLossTimeoutS) * time.Second
		if p.endpoint.lostFor(p.now()) > lossTimeout {
			p.evictLocked("collector unavailable")
		} else if p.outstanding > maxBuffered {
			p.evictLocked("buffer full")
		}
		return
	}

	ch := p.resolveChannelLocked()
	if ch == nil {
		if p.outstanding > maxBuffered {
			p.evictLocked("buffer full")
		}
		return
	}

	limit := int(cfg.MaxSyncPerCycle)
	handed := 0
	for limit == 0 || handed < limit {
		u, ok := p.outbound.pop()
		if !ok {
			break
		}
		ch.Enqueue(u)
		p.outstanding--
		handed++
	}
	if handed == 0 {
		return
	}

	p.state.Sent.Add(uint64(handed))
	if !p.endpoint.delivered {
		p.endpoint.delivered = true
		p.notice(SeverityInfo, "logfwd: forwarding logs to collector "+p.endpoint.addr)
	}
	if !ch.IsSending() {
		ch.DeferredSend()
	}
}

// resolveChannelLocked asks the transport for the channel to the registered collector
func (p *Pipeline) resolveChannelLocked() transport.Channel {
	if p.transport == nil || !p.endpoint.registered() {
		return nil
	}
	return p.transport.ResolveChannel(p.endpoint.addr)
}

func (p *Pipeline) resolveChannel() transport.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveChannelLocked()
}

// Register sets the collector address records are forwarded to
func (p *Pipeline) Register(addr string) error {
	if addr == "" {
		return fmtErrorf("collector address cannot be empty")
	}

	p.mu.Lock()
	p.endpoint.register(addr)
	p.mu.Unlock()

	p.notice(SeverityInfo, "logfwd: collector registered at "+addr)
	p.wake()
	return nil
}

// Unregister clears the collector and flushes every buffered record to the local sink.
// Returns the number of records flushed.
func (p *Pipeline) Unregister() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	wasRegistered := p.endpoint.registered()
	addr := p.endpoint.addr
	p.endpoint.unregister(p.now())

	n := p.flushLocked()
	if wasRegistered {
		p.notice(SeverityWarning, fmt.Sprintf("logfwd: collector %s unregistered, %d buffered records written locally", addr, n))
	}
	return n
}

// FlushBuffered writes every buffered record to the local sink in submission order and empties the queues
func (p *Pipeline) FlushBuffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked()
}

// flushLocked decodes outbound units, then staged bodies, and writes each record locally
func (p *Pipeline) flushLocked() int {
	n := 0
	p.outbound.drain(func(u *codec.Unit) {
		if p.flushBody(u.Body) {
			n++
		}
	})
	p.staging.drain(func(buf *bytebufferpool.ByteBuffer) {
		if p.flushBody(buf.B) {
			n++
		}
		p.pool.release(buf)
	})
	p.outstanding = 0
	p.state.FlushedLocal.Add(uint64(n))
	return n
}

func (p *Pipeline) flushBody(body []byte) bool {
	rec, err := codec.DecodeBody(body)
	if err != nil {
		p.internalLog("warning - dropping undecodable buffered record: %v", err)
		p.state.Dropped.Add(1)
		return false
	}
	p.writeLocal(rec)
	return true
}
