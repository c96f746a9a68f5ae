package logfwd

import (
	"time"

	"github.com/lixenwraith/logfwd/codec"
)

// Severity is the category of a forwarded record.
type Severity = codec.Severity

// Record severities
const (
	SeverityPrint         = codec.SeverityPrint
	SeverityError         = codec.SeverityError
	SeverityWarning       = codec.SeverityWarning
	SeverityDebug         = codec.SeverityDebug
	SeverityInfo          = codec.SeverityInfo
	SeverityCritical      = codec.SeverityCritical
	SeverityScriptInfo    = codec.SeverityScriptInfo
	SeverityScriptError   = codec.SeverityScriptError
	SeverityScriptDebug   = codec.SeverityScriptDebug
	SeverityScriptWarning = codec.SeverityScriptWarning
	SeverityScriptNormal  = codec.SeverityScriptNormal
)

// Queue limits
const (
	// Used when max_buffered is 0
	defaultMaxBuffered int64 = 256
	// Pooled staging buffers kept idle between drains
	maxIdleBuffers = 64
)

// Timers
const (
	// Minimum wait time used throughout the package
	minWaitTime = 10 * time.Millisecond
	// Post queue depth for tasks scheduled onto the owner goroutine
	taskQueueSize = 64
	// Maximum backtrace depth captured on critical and assertion paths
	maxBacktraceDepth = 50
)

// Transport names accepted by the transport config key
const (
	TransportTCP   = "tcp"
	TransportHTTP  = "http"
	TransportBeats = "beats"
	TransportNone  = "none"
)
