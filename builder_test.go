package logfwd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Build(t *testing.T) {
	t.Run("successful build returns configured pipeline", func(t *testing.T) {
		sink := &recordingSink{}
		p, err := NewBuilder().
			Collector("10.0.0.5:9000").
			Transport(TransportHTTP).
			Origin(1, 3, 42).
			Order(7, 2).
			MessageID(9).
			MaxBuffered(1024).
			MaxSyncPerCycle(16).
			SyncIntervalMs(50).
			CollectorLossTimeoutS(60).
			HeartbeatIntervalS(30).
			LocalEcho(false).
			EnableConsole(false).
			LocalLevel("warning").
			Sink(sink).
			Build()
		require.NoError(t, err)
		require.NotNil(t, p)
		defer p.Shutdown()

		cfg := p.GetConfig()
		assert.Equal(t, "10.0.0.5:9000", cfg.Collector)
		assert.Equal(t, TransportHTTP, cfg.Transport)
		assert.Equal(t, int64(1), cfg.UID)
		assert.Equal(t, int64(3), cfg.ComponentKind)
		assert.Equal(t, int64(42), cfg.ComponentID)
		assert.Equal(t, int64(7), cfg.GlobalOrder)
		assert.Equal(t, int64(2), cfg.GroupOrder)
		assert.Equal(t, int64(9), cfg.MessageID)
		assert.Equal(t, int64(1024), cfg.MaxBuffered)
		assert.Equal(t, int64(16), cfg.MaxSyncPerCycle)
		assert.Equal(t, int64(50), cfg.SyncIntervalMs)
		assert.Equal(t, int64(60), cfg.CollectorLossTimeoutS)
		assert.Equal(t, int64(30), cfg.HeartbeatIntervalS)
		assert.False(t, cfg.LocalEcho)
		assert.Equal(t, "warn", cfg.LocalLevel)

		assert.Equal(t, "10.0.0.5:9000", p.Stats().Collector)
		assert.Same(t, sink, p.getSink().(*recordingSink))
	})

	t.Run("builder error accumulation", func(t *testing.T) {
		p, err := NewBuilder().
			LocalLevel("shouting").
			Collector("a:1").
			Build()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid local level")
		assert.Nil(t, p)
	})

	t.Run("apply config validation error", func(t *testing.T) {
		p, err := NewBuilder().
			Transport("smoke-signals").
			Build()

		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid transport")
		assert.Nil(t, p)
	})

	t.Run("file output uses the configured directory", func(t *testing.T) {
		dir := t.TempDir()
		cfg, err := NewBuilder().EnableFile(dir).EnableConsole(false).Config()
		require.NoError(t, err)
		assert.True(t, cfg.EnableFile)
		assert.Equal(t, dir, cfg.Directory)

		p, err := NewBuilder().EnableFile(dir).EnableConsole(false).Build()
		require.NoError(t, err)
		assert.IsType(t, &LocalSink{}, p.getSink())
		require.NoError(t, p.Shutdown())
	})
}
