package logfwd

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/logfwd/codec"
	"github.com/lixenwraith/logfwd/transport"
)

// recordingSink captures everything written locally
type recordingSink struct {
	mu      sync.Mutex
	records []codec.Record
	notices []string
	syncs   int
}

func (s *recordingSink) WriteRecord(rec codec.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Payload = append([]byte(nil), rec.Payload...)
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Notice(sev Severity, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
}

func (s *recordingSink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncs++
	return nil
}

func (s *recordingSink) payloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i, r := range s.records {
		out[i] = string(r.Payload)
	}
	return out
}

func (s *recordingSink) noticeLines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

// fakeChannel records units handed over by the drain cycle
type fakeChannel struct {
	mu        sync.Mutex
	units     []*codec.Unit
	sends     int
	sending   bool
	onEnqueue func()
}

func (c *fakeChannel) Enqueue(u *codec.Unit) {
	c.mu.Lock()
	c.units = append(c.units, u)
	hook := c.onEnqueue
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (c *fakeChannel) DeferredSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends++
}

func (c *fakeChannel) IsSending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

func (c *fakeChannel) payloads(t *testing.T) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.units))
	for _, u := range c.units {
		rec, err := u.Record()
		require.NoError(t, err)
		out = append(out, string(rec.Payload))
	}
	return out
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.units)
}

// fakeTransport resolves every address to one channel, or to none while channel is nil
type fakeTransport struct {
	mu       sync.Mutex
	channel  *fakeChannel
	resolved []string
	closed   bool
}

func (t *fakeTransport) ResolveChannel(addr string) transport.Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resolved = append(t.resolved, addr)
	if t.channel == nil {
		return nil
	}
	return t.channel
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// manualClock is a settable time source
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// createTestPipeline creates an initialized pipeline owned by the calling goroutine, with the event loop not running
func createTestPipeline(t testing.TB, mutate func(cfg *Config)) (*Pipeline, *recordingSink, *fakeTransport) {
	t.Helper()

	p := NewPipeline()
	sink := &recordingSink{}
	p.SetSink(sink)

	cfg := DefaultConfig()
	cfg.EnableConsole = false
	cfg.LocalEcho = false
	cfg.ComponentID = 42
	cfg.SyncIntervalMs = 10
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, p.ApplyConfig(cfg))

	tr := &fakeTransport{}
	require.NoError(t, p.SetTransport(tr))
	p.BindOwner()

	return p, sink, tr
}

// submitOffOwner submits payloads from a separate goroutine and waits for it to finish
func submitOffOwner(p *Pipeline, payloads ...string) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, s := range payloads {
			p.Submit(SeverityInfo, []byte(s))
		}
	}()
	wg.Wait()
}
