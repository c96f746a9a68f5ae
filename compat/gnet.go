package compat

import (
	"fmt"
	"os"

	"github.com/lixenwraith/logfwd"
)

// GnetAdapter routes gnet engine diagnostics into a pipeline and implements gnet's logging.Logger
type GnetAdapter struct {
	pipeline     *logfwd.Pipeline
	fatalHandler func(msg string)
}

// NewGnetAdapter creates a new gnet-compatible logger adapter
func NewGnetAdapter(p *logfwd.Pipeline, opts ...GnetOption) *GnetAdapter {
	adapter := &GnetAdapter{
		pipeline: p,
		fatalHandler: func(msg string) {
			os.Exit(1) // Default behavior matches gnet expectations
		},
	}

	for _, opt := range opts {
		opt(adapter)
	}

	return adapter
}

// GnetOption allows customizing adapter behavior
type GnetOption func(*GnetAdapter)

// WithFatalHandler sets a custom fatal handler
func WithFatalHandler(handler func(string)) GnetOption {
	return func(a *GnetAdapter) {
		a.fatalHandler = handler
	}
}

// Debugf logs at debug severity with printf-style formatting
func (a *GnetAdapter) Debugf(format string, args ...any) {
	a.submit(logfwd.SeverityDebug, format, args)
}

// Infof logs at info severity with printf-style formatting
func (a *GnetAdapter) Infof(format string, args ...any) {
	a.submit(logfwd.SeverityInfo, format, args)
}

// Warnf logs at warning severity with printf-style formatting
func (a *GnetAdapter) Warnf(format string, args ...any) {
	a.submit(logfwd.SeverityWarning, format, args)
}

// Errorf logs at error severity with printf-style formatting
func (a *GnetAdapter) Errorf(format string, args ...any) {
	a.submit(logfwd.SeverityError, format, args)
}

// Fatalf logs at critical severity, writes buffered records locally and triggers the fatal handler
func (a *GnetAdapter) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	// A suppressed caller is inside a drain cycle and already holds the pipeline
	if !a.pipeline.Suppressed() {
		a.pipeline.Submit(logfwd.SeverityCritical, tagged("gnet", msg))
		a.pipeline.FlushBuffered()
	}

	if a.fatalHandler != nil {
		a.fatalHandler(msg)
	}
}

func (a *GnetAdapter) submit(sev logfwd.Severity, format string, args []any) {
	// Diagnostics raised while the pipeline is sending would be dropped anyway
	if a.pipeline.Suppressed() {
		return
	}
	a.pipeline.Submit(sev, tagged("gnet", fmt.Sprintf(format, args...)))
}

// tagged prefixes msg with the source of the diagnostic
func tagged(source, msg string) []byte {
	b := make([]byte, 0, len(source)+len(msg)+3)
	b = append(b, '[')
	b = append(b, source...)
	b = append(b, "] "...)
	return append(b, msg...)
}
