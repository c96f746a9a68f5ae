package logfwd

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStartStop verifies that the event loop owns the pipeline and drains staged records on its own
func TestStartStop(t *testing.T) {
	p, _, tr := createTestPipeline(t, nil)
	ch := &fakeChannel{}
	tr.channel = ch
	require.NoError(t, p.Register("collector:9000"))

	require.NoError(t, p.Start())
	assert.False(t, p.IsOwner(), "loop goroutine becomes the owner")
	assert.True(t, p.state.Started.Load())

	// Calling Start again is a no-op
	require.NoError(t, p.Start())

	p.Info("from test goroutine")
	assert.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, minWaitTime)
	assert.Equal(t, int64(0), p.Outstanding())

	require.NoError(t, p.Stop())
	assert.True(t, p.state.ProcessorExited.Load())
	require.NoError(t, p.Stop(), "stopping twice is harmless")
}

func TestStartRequiresConfig(t *testing.T) {
	p := NewPipeline()
	err := p.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestRunUntilCancelled(t *testing.T) {
	p, _, tr := createTestPipeline(t, nil)
	ch := &fakeChannel{}
	tr.channel = ch
	require.NoError(t, p.Register("collector:9000"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	assert.Eventually(t, func() bool { return p.state.Started.Load() && !p.state.ProcessorExited.Load() }, time.Second, minWaitTime)
	p.Info("queued while running")
	assert.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, minWaitTime)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPost(t *testing.T) {
	p, _, _ := createTestPipeline(t, nil)

	assert.False(t, p.Post(func() {}), "post fails while the loop is stopped")

	require.NoError(t, p.Start())
	defer p.Shutdown()

	var onOwner atomic.Bool
	require.True(t, p.Post(func() { onOwner.Store(p.IsOwner()) }))
	assert.Eventually(t, onOwner.Load, time.Second, minWaitTime)
}

// TestShutdown verifies the final drain and teardown
func TestShutdown(t *testing.T) {
	t.Run("drains to the collector", func(t *testing.T) {
		p, sink, tr := createTestPipeline(t, func(cfg *Config) { cfg.MaxSyncPerCycle = 2 })
		ch := &fakeChannel{}
		tr.channel = ch
		require.NoError(t, p.Register("collector:9000"))

		for i := 0; i < 5; i++ {
			p.Submit(SeverityInfo, []byte(fmt.Sprintf("r%d", i)))
		}
		submitOffOwner(p, "staged")

		require.NoError(t, p.Shutdown())

		assert.Equal(t, []string{"r0", "r1", "r2", "r3", "r4", "staged"}, ch.payloads(t))
		assert.Equal(t, int64(0), p.Outstanding())
		assert.True(t, tr.isClosed())
		assert.True(t, p.state.NoSync.Load())
		assert.Equal(t, 1, sink.syncs)

		// Nothing is accepted after teardown
		p.Submit(SeverityInfo, []byte("late"))
		assert.Equal(t, int64(0), p.Outstanding())

		// Second call is a no-op
		require.NoError(t, p.Shutdown())
	})

	t.Run("discards what cannot be delivered", func(t *testing.T) {
		p, sink, _ := createTestPipeline(t, nil)
		require.NoError(t, p.Register("collector:9000"))

		p.Submit(SeverityInfo, []byte("a"))
		p.Submit(SeverityInfo, []byte("b"))

		require.NoError(t, p.Shutdown(50*time.Millisecond))

		assert.Equal(t, int64(0), p.Outstanding())
		assert.Equal(t, uint64(2), p.Stats().Dropped)
		notices := sink.noticeLines()
		require.NotEmpty(t, notices)
		assert.True(t, strings.Contains(notices[len(notices)-1], "shutdown"))
	})

	t.Run("stops a running loop", func(t *testing.T) {
		p, _, tr := createTestPipeline(t, nil)
		tr.channel = &fakeChannel{}
		require.NoError(t, p.Start())

		require.NoError(t, p.Shutdown())
		assert.False(t, p.state.Started.Load())
		assert.True(t, p.state.ProcessorExited.Load())
		assert.True(t, p.IsOwner(), "caller takes over ownership")
	})

	t.Run("uninitialized pipeline", func(t *testing.T) {
		p := NewPipeline()
		assert.NoError(t, p.Shutdown())
	})
}

// TestHeartbeat verifies that pipeline statistics are submitted periodically
func TestHeartbeat(t *testing.T) {
	p, _, tr := createTestPipeline(t, func(cfg *Config) { cfg.HeartbeatIntervalS = 1 })
	ch := &fakeChannel{}
	tr.channel = ch
	require.NoError(t, p.Register("collector:9000"))

	require.NoError(t, p.Start())
	defer p.Shutdown()

	assert.Eventually(t, func() bool { return ch.count() > 0 }, 2*time.Second, minWaitTime)

	payloads := ch.payloads(t)
	require.NotEmpty(t, payloads)
	hb := payloads[0]
	assert.Contains(t, hb, "type=pipeline")
	assert.Contains(t, hb, "sequence=1")
	assert.Contains(t, hb, "collector=collector:9000")
	assert.Contains(t, hb, "num_goroutine=")
}

func TestApplyConfigRestartsLoop(t *testing.T) {
	p, _, _ := createTestPipeline(t, nil)
	require.NoError(t, p.Start())
	defer p.Shutdown()

	require.NoError(t, p.ApplyConfigString("sync_interval_ms=20"))

	assert.True(t, p.state.Started.Load())
	assert.False(t, p.state.ProcessorExited.Load())
	assert.Equal(t, int64(20), p.GetConfig().SyncIntervalMs)
}
