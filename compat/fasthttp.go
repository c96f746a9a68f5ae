package compat

import (
	"fmt"
	"strings"

	"github.com/lixenwraith/logfwd"
)

// FastHTTPAdapter routes fasthttp diagnostics into a pipeline and implements fasthttp's Logger interface
type FastHTTPAdapter struct {
	pipeline      *logfwd.Pipeline
	source        string
	defaultLevel  logfwd.Severity
	levelDetector func(string) logfwd.Severity
}

// NewFastHTTPAdapter creates a new fasthttp-compatible logger adapter
func NewFastHTTPAdapter(p *logfwd.Pipeline, opts ...FastHTTPOption) *FastHTTPAdapter {
	adapter := &FastHTTPAdapter{
		pipeline:      p,
		source:        "fasthttp",
		defaultLevel:  logfwd.SeverityInfo,
		levelDetector: DetectLogLevel,
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// FastHTTPOption allows customizing adapter behavior
type FastHTTPOption func(*FastHTTPAdapter)

// WithDefaultLevel sets the severity used when no level is detected
func WithDefaultLevel(level logfwd.Severity) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.defaultLevel = level
	}
}

// WithLevelDetector sets a custom function to detect severity from message content.
// A zero result falls back to the default level.
func WithLevelDetector(detector func(string) logfwd.Severity) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.levelDetector = detector
	}
}

// WithSource sets the tag prefixed to every message
func WithSource(source string) FastHTTPOption {
	return func(a *FastHTTPAdapter) {
		a.source = source
	}
}

// Printf implements fasthttp's Logger interface
func (a *FastHTTPAdapter) Printf(format string, args ...any) {
	if a.pipeline.Suppressed() {
		return
	}
	msg := fmt.Sprintf(format, args...)

	level := a.defaultLevel
	if a.levelDetector != nil {
		if detected := a.levelDetector(msg); detected != 0 {
			level = detected
		}
	}

	a.pipeline.Submit(level, tagged(a.source, msg))
}

// DetectLogLevel attempts to detect severity from message content
func DetectLogLevel(msg string) logfwd.Severity {
	msgLower := strings.ToLower(msg)

	if strings.Contains(msgLower, "error") ||
		strings.Contains(msgLower, "failed") ||
		strings.Contains(msgLower, "fatal") ||
		strings.Contains(msgLower, "panic") {
		return logfwd.SeverityError
	}

	if strings.Contains(msgLower, "warn") ||
		strings.Contains(msgLower, "deprecated") {
		return logfwd.SeverityWarning
	}

	if strings.Contains(msgLower, "debug") ||
		strings.Contains(msgLower, "trace") {
		return logfwd.SeverityDebug
	}

	return logfwd.SeverityInfo
}
