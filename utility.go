package logfwd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

const errorPrefix = "logfwd: "

// fmtErrorf wrapper
func fmtErrorf(format string, args ...any) error {
	if !strings.HasPrefix(format, errorPrefix) {
		format = errorPrefix + format
	}
	return fmt.Errorf(format, args...)
}

// combineErrors helper
func combineErrors(err1, err2 error) error {
	if err1 == nil {
		return err2
	}
	if err2 == nil {
		return err1
	}
	return fmt.Errorf("%v; %w", err1, err2)
}

// parseKeyValue splits a "key=value" string.
func parseKeyValue(arg string) (string, string, error) {
	parts := strings.SplitN(strings.TrimSpace(arg), "=", 2)
	if len(parts) != 2 {
		return "", "", fmtErrorf("invalid format in override string '%s', expected key=value", arg)
	}
	key := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if key == "" {
		return "", "", fmtErrorf("key cannot be empty in override string '%s'", arg)
	}
	return key, value, nil
}

// funcName shortens a fully qualified function name for diagnostic lines
func funcName(full string) string {
	name := filepath.Base(full)
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return name
	}
	lastPart := parts[len(parts)-1]
	if strings.HasPrefix(lastPart, "func") && len(lastPart) > 4 {
		for _, r := range lastPart[4:] {
			if !unicode.IsDigit(r) {
				return strings.Join(parts[len(parts)-2:], ".")
			}
		}
		return fmt.Sprintf("(anonymous in %s)", strings.Join(parts[:len(parts)-1], "."))
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// backtrace returns one diagnostic line per caller frame, innermost first.
// skip counts frames above the caller of backtrace.
func backtrace(skip int) []string {
	pc := make([]uintptr, maxBacktraceDepth)
	n := runtime.Callers(skip+2, pc) // +2 for Callers and backtrace
	if n == 0 {
		return []string{"Stack: (unknown)"}
	}

	frames := runtime.CallersFrames(pc[:n])
	lines := make([]string, 0, n)
	for i := 0; ; i++ {
		frame, more := frames.Next()
		if frame.Function == "" {
			break
		}
		// Runtime frames below main carry no information for the reader
		if strings.HasPrefix(frame.Function, "runtime.") && i > 0 {
			if !more {
				break
			}
			continue
		}
		lines = append(lines, fmt.Sprintf("Stack: #%d %s (%s:%d)",
			len(lines), funcName(frame.Function), filepath.Base(frame.File), frame.Line))
		if !more {
			break
		}
	}
	if len(lines) == 0 {
		return []string{"Stack: (unknown)"}
	}
	return lines
}

// internalLog writes pipeline-internal failures to stderr when enabled
func (p *Pipeline) internalLog(format string, args ...any) {
	cfg := p.getConfig()
	if cfg == nil || !cfg.InternalErrorsToStderr {
		return
	}
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, errorPrefix+format, args...)
}
