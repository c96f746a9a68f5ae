package logfwd

import "time"

// endpointRegistry tracks the collector address and how long it has been missing.
// Guarded by the pipeline mutex.
type endpointRegistry struct {
	addr      string
	lostAt    time.Time // Start of the current no-collector period
	delivered bool      // Collector took delivery since the last (un)registration
}

func (r *endpointRegistry) register(addr string) {
	r.addr = addr
	r.lostAt = time.Time{}
	r.delivered = false
}

func (r *endpointRegistry) unregister(now time.Time) {
	r.addr = ""
	r.lostAt = now
	r.delivered = false
}

func (r *endpointRegistry) registered() bool {
	return r.addr != ""
}

// lostFor returns the time elapsed without a collector, zero while registered
func (r *endpointRegistry) lostFor(now time.Time) time.Duration {
	if r.registered() || r.lostAt.IsZero() {
		return 0
	}
	return now.Sub(r.lostAt)
}
