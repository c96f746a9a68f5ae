package logfwd

import (
	"fmt"
	"runtime"
	"time"
)

// handleHeartbeat processes a heartbeat timer tick
func (p *Pipeline) handleHeartbeat() {
	p.logPipelineHeartbeat()
}

// logPipelineHeartbeat submits pipeline statistics as an info record
func (p *Pipeline) logPipelineHeartbeat() {
	sequence := p.state.HeartbeatSequence.Add(1)

	var uptimeHours float64
	if startTime, ok := p.state.StartTime.Load().(time.Time); ok && !startTime.IsZero() {
		uptimeHours = time.Since(startTime).Hours()
	}

	st := p.Stats()
	collector := st.Collector
	if collector == "" {
		collector = "none"
	}

	args := []any{
		"type", "pipeline",
		"sequence", sequence,
		"uptime_hours", fmt.Sprintf("%.2f", uptimeHours),
		"collector", collector,
		"outstanding", st.Outstanding,
		"submitted", st.Submitted,
		"sent", st.Sent,
		"dropped", st.Dropped,
		"evictions", st.Evictions,
		"flushed_local", st.FlushedLocal,
		"suppressed", st.Suppressed,
		"num_goroutine", runtime.NumGoroutine(),
	}

	p.Submit(SeverityInfo, appendKeyValues(nil, args))
}
