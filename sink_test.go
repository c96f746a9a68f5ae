package logfwd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lixenwraith/logfwd/codec"
)

func TestFormatLine(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

	assert.Equal(t, "==> [2024-03-09 14:05:07 007] hello", FormatLine(ts, 7, []byte("hello"), false))
	assert.Equal(t, "==> [2024-03-09 14:05:07 042] hi [SCRIPT]", FormatLine(ts, 42, []byte("hi"), true))
	assert.Equal(t, "==> [2024-03-09 14:05:07 999] x", FormatLine(ts, 999, []byte("x"), false))
}

func TestLocalSink(t *testing.T) {
	t.Run("writes one line per record", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewWriterSink(&buf, zapcore.DebugLevel)

		rec := codec.Record{Severity: SeverityScriptInfo, Payload: []byte("script says hi")}
		rec.Stamp(time.Date(2024, 1, 2, 3, 4, 5, 6*int(time.Millisecond), time.Local))
		require.NoError(t, s.WriteRecord(rec))

		assert.Equal(t, "==> [2024-01-02 03:04:05 006] script says hi [SCRIPT]\n", buf.String())
	})

	t.Run("level filters debug records", func(t *testing.T) {
		var buf bytes.Buffer
		s := NewWriterSink(&buf, zapcore.WarnLevel)

		require.NoError(t, s.WriteRecord(codec.Record{Severity: SeverityDebug, Payload: []byte("quiet")}))
		require.NoError(t, s.WriteRecord(codec.Record{Severity: SeverityError, Payload: []byte("loud")}))
		s.Notice(SeverityInfo, "also quiet")
		s.Notice(SeverityWarning, "notice")

		out := buf.String()
		assert.NotContains(t, out, "quiet")
		assert.Contains(t, out, "loud")
		assert.Contains(t, out, "] notice")
		assert.Equal(t, 2, strings.Count(out, "\n"))
	})

	t.Run("file output", func(t *testing.T) {
		dir := t.TempDir()
		cfg := DefaultConfig()
		cfg.EnableConsole = false
		cfg.EnableFile = true
		cfg.Directory = dir
		cfg.Name = "fallback"

		s, err := NewLocalSink(cfg)
		require.NoError(t, err)
		require.NoError(t, s.WriteRecord(codec.Record{Severity: SeverityInfo, Payload: []byte("to disk")}))
		require.NoError(t, s.Close())

		content, err := os.ReadFile(filepath.Join(dir, "fallback.log"))
		require.NoError(t, err)
		assert.Contains(t, string(content), "] to disk\n")
	})
}

func TestZapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, zapLevel(SeverityScriptDebug))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(SeverityPrint))
	assert.Equal(t, zapcore.InfoLevel, zapLevel(SeverityScriptNormal))
	assert.Equal(t, zapcore.WarnLevel, zapLevel(SeverityWarning))
	assert.Equal(t, zapcore.ErrorLevel, zapLevel(SeverityCritical))
}
