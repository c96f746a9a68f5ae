package logfwd

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lixenwraith/logfwd/codec"
)

// Sink is the local fallback output used when records cannot or must not be forwarded
type Sink interface {
	// WriteRecord emits one record synchronously
	WriteRecord(rec codec.Record) error
	// Notice emits a pipeline diagnostic line
	Notice(sev Severity, msg string)
	// Sync flushes buffered output
	Sync() error
}

// LocalSink writes records through a zap logger to the console and an optional rotating file
type LocalSink struct {
	logger *zap.Logger
	file   *lumberjack.Logger
	now    func() time.Time
}

// NewLocalSink builds a LocalSink from the console and file settings of cfg
func NewLocalSink(cfg *Config) (*LocalSink, error) {
	level, err := zapcore.ParseLevel(cfg.LocalLevel)
	if err != nil {
		return nil, fmtErrorf("invalid local_level '%s': %w", cfg.LocalLevel, err)
	}
	enabler := zap.NewAtomicLevelAt(level)

	var cores []zapcore.Core
	if cfg.EnableConsole {
		var out zapcore.WriteSyncer = os.Stdout
		if cfg.ConsoleTarget == "stderr" {
			out = os.Stderr
		}
		cores = append(cores, zapcore.NewCore(newLineEncoder(), zapcore.Lock(out), enabler))
	}

	var file *lumberjack.Logger
	if cfg.EnableFile {
		if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
			return nil, fmtErrorf("failed to create log directory '%s': %w", cfg.Directory, err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, cfg.Name+".log"),
			MaxSize:    int(cfg.MaxSizeMB),
			MaxBackups: int(cfg.MaxBackups),
		}
		cores = append(cores, zapcore.NewCore(newLineEncoder(), zapcore.AddSync(file), enabler))
	}

	return &LocalSink{
		logger: zap.New(zapcore.NewTee(cores...)),
		file:   file,
		now:    time.Now,
	}, nil
}

// NewWriterSink builds a LocalSink writing every line at or above level to w
func NewWriterSink(w io.Writer, level zapcore.Level) *LocalSink {
	core := zapcore.NewCore(newLineEncoder(), zapcore.AddSync(w), zap.NewAtomicLevelAt(level))
	return &LocalSink{
		logger: zap.New(core),
		now:    time.Now,
	}
}

// newLineEncoder returns a console encoder that writes only the preformatted message
func newLineEncoder() zapcore.Encoder {
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
}

// WriteRecord emits rec as a single local line
func (s *LocalSink) WriteRecord(rec codec.Record) error {
	line := FormatLine(time.Unix(rec.Seconds, 0), rec.Millis, rec.Payload, rec.Severity.IsScript())
	if ce := s.logger.Check(zapLevel(rec.Severity), line); ce != nil {
		ce.Write()
	}
	return nil
}

// Notice emits a diagnostic line stamped with the current time
func (s *LocalSink) Notice(sev Severity, msg string) {
	t := s.now()
	line := FormatLine(t, uint32(t.Nanosecond()/int(time.Millisecond)), []byte(msg), false)
	if ce := s.logger.Check(zapLevel(sev), line); ce != nil {
		ce.Write()
	}
}

// Sync flushes the zap cores
func (s *LocalSink) Sync() error {
	err := s.logger.Sync()
	// Syncing a terminal returns EINVAL on some platforms
	if err != nil && s.file == nil {
		return nil
	}
	return err
}

// Close syncs and closes the rotating file, if any
func (s *LocalSink) Close() error {
	_ = s.logger.Sync()
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// FormatLine renders "==> [YYYY-MM-DD HH:MM:SS mmm] payload", with " [SCRIPT]" appended for script records
func FormatLine(t time.Time, millis uint32, payload []byte, script bool) string {
	buf := make([]byte, 0, len(payload)+40)
	buf = append(buf, "==> ["...)
	buf = t.AppendFormat(buf, "2006-01-02 15:04:05")
	buf = append(buf, ' ')
	if millis < 100 {
		buf = append(buf, '0')
	}
	if millis < 10 {
		buf = append(buf, '0')
	}
	buf = strconv.AppendUint(buf, uint64(millis), 10)
	buf = append(buf, "] "...)
	buf = append(buf, payload...)
	if script {
		buf = append(buf, " [SCRIPT]"...)
	}
	return string(buf)
}

// zapLevel maps a record severity to the local output level
func zapLevel(sev Severity) zapcore.Level {
	switch sev {
	case SeverityDebug, SeverityScriptDebug:
		return zapcore.DebugLevel
	case SeverityWarning, SeverityScriptWarning:
		return zapcore.WarnLevel
	case SeverityError, SeverityScriptError, SeverityCritical:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
