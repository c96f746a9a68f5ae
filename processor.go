package logfwd

import "time"

// processLoop is the event loop running on the owner goroutine
func (p *Pipeline) processLoop(stop <-chan struct{}, ready chan<- struct{}) {
	p.state.ProcessorExited.Store(false)      // Mark processor as running
	defer p.state.ProcessorExited.Store(true) // Ensure flag is set on exit

	p.BindOwner()
	gid := p.owner.Load()
	if ready != nil {
		close(ready)
	}

	// Set up timers
	timers := p.setupProcessingTimers()
	defer p.closeProcessingTimers(timers)

	// Records submitted before the loop started
	if p.Outstanding() > 0 {
		p.armSyncTimer(timers)
	}

	// --- Main Loop ---
	for {
		select {
		case <-stop:
			return

		case <-p.wakeCh:
			p.armSyncTimer(timers)

		case <-timers.syncTicker.C:
			p.handleSyncTick(gid, timers)

		case fn := <-p.taskCh:
			fn()

		case <-timers.heartbeatChan:
			p.handleHeartbeat()
		}
	}
}

// TimerSet holds all timers used in processLoop
type TimerSet struct {
	syncTicker      *time.Ticker
	syncInterval    time.Duration
	syncActive      bool // syncTicker is running
	heartbeatTicker *time.Ticker
	heartbeatChan   <-chan time.Time
}

// setupProcessingTimers creates and configures all necessary timers for the processor
func (p *Pipeline) setupProcessingTimers() *TimerSet {
	timers := &TimerSet{}

	c := p.getConfig()

	// Set up sync timer, idle until the first record arrives
	syncInterval := c.SyncIntervalMs
	if syncInterval <= 0 {
		syncInterval = DefaultConfig().SyncIntervalMs
	}
	timers.syncInterval = time.Duration(syncInterval) * time.Millisecond
	timers.syncTicker = time.NewTicker(timers.syncInterval)
	timers.syncTicker.Stop()

	// Set up heartbeat timer
	timers.heartbeatChan = p.setupHeartbeatTimer(timers)

	return timers
}

// closeProcessingTimers stops all active timers
func (p *Pipeline) closeProcessingTimers(timers *TimerSet) {
	timers.syncTicker.Stop()
	if timers.heartbeatTicker != nil {
		timers.heartbeatTicker.Stop()
	}
}

// setupHeartbeatTimer configures the heartbeat timer if enabled
func (p *Pipeline) setupHeartbeatTimer(timers *TimerSet) <-chan time.Time {
	c := p.getConfig()
	if c.HeartbeatIntervalS > 0 {
		timers.heartbeatTicker = time.NewTicker(time.Duration(c.HeartbeatIntervalS) * time.Second)
		return timers.heartbeatTicker.C
	}
	return nil
}

// armSyncTimer restarts the sync ticker if it is idle
func (p *Pipeline) armSyncTimer(timers *TimerSet) {
	if timers.syncActive {
		return
	}
	timers.syncTicker.Reset(timers.syncInterval)
	timers.syncActive = true
}

// handleSyncTick runs one drain cycle and idles the ticker once nothing is outstanding
func (p *Pipeline) handleSyncTick(gid uint64, timers *TimerSet) {
	if p.state.NoSync.Load() {
		return
	}
	p.sync(gid)
	if p.Outstanding() == 0 {
		timers.syncTicker.Stop()
		timers.syncActive = false
	}
}
