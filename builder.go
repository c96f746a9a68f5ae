package logfwd

import "github.com/lixenwraith/logfwd/codec"

// Builder provides a fluent API for building pipeline configurations.
// It wraps a Config instance and provides chainable methods for setting values.
type Builder struct {
	cfg  *Config
	sink Sink
	err  error // Accumulate errors for deferred handling
}

// NewBuilder creates a new configuration builder with default values.
func NewBuilder() *Builder {
	return &Builder{
		cfg: DefaultConfig(),
	}
}

// Build creates a new Pipeline instance with the specified configuration.
func (b *Builder) Build() (*Pipeline, error) {
	if b.err != nil {
		return nil, b.err
	}

	p := NewPipeline()
	if b.sink != nil {
		p.SetSink(b.sink)
	}

	// ApplyConfig handles all initialization and validation.
	if err := p.ApplyConfig(b.cfg); err != nil {
		return nil, err
	}

	return p, nil
}

// Config returns a copy of the configuration built so far.
func (b *Builder) Config() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.cfg.Clone(), nil
}

// Forward enables or disables forwarding for this process role.
func (b *Builder) Forward(enable bool) *Builder {
	b.cfg.Forward = enable
	return b
}

// Transport selects the transport by name.
func (b *Builder) Transport(name string) *Builder {
	b.cfg.Transport = name
	return b
}

// Collector sets the collector address registered on build.
func (b *Builder) Collector(addr string) *Builder {
	b.cfg.Collector = addr
	return b
}

// Origin sets the identity stamped on every record.
func (b *Builder) Origin(uid int32, kind int32, id uint64) *Builder {
	b.cfg.UID = int64(uid)
	b.cfg.ComponentKind = int64(kind)
	b.cfg.ComponentID = int64(id)
	return b
}

// Order sets the global and group order stamped on every record.
func (b *Builder) Order(global, group int32) *Builder {
	b.cfg.GlobalOrder = int64(global)
	b.cfg.GroupOrder = int64(group)
	return b
}

// MessageID sets the message id written in unit headers.
func (b *Builder) MessageID(id uint16) *Builder {
	b.cfg.MessageID = int64(id)
	return b
}

// MaxBuffered sets the outstanding record limit.
func (b *Builder) MaxBuffered(n int64) *Builder {
	b.cfg.MaxBuffered = n
	return b
}

// MaxSyncPerCycle sets the number of units handed over per sync, 0 for unbounded.
func (b *Builder) MaxSyncPerCycle(n int64) *Builder {
	b.cfg.MaxSyncPerCycle = n
	return b
}

// SyncIntervalMs sets the drain period.
func (b *Builder) SyncIntervalMs(ms int64) *Builder {
	b.cfg.SyncIntervalMs = ms
	return b
}

// CollectorLossTimeoutS sets how long records are kept without a collector.
func (b *Builder) CollectorLossTimeoutS(s int64) *Builder {
	b.cfg.CollectorLossTimeoutS = s
	return b
}

// HeartbeatIntervalS sets the heartbeat interval, 0 disables it.
func (b *Builder) HeartbeatIntervalS(interval int64) *Builder {
	b.cfg.HeartbeatIntervalS = interval
	return b
}

// LocalEcho mirrors records locally until the collector takes delivery.
func (b *Builder) LocalEcho(enable bool) *Builder {
	b.cfg.LocalEcho = enable
	return b
}

// EnableConsole enables local console output.
func (b *Builder) EnableConsole(enable bool) *Builder {
	b.cfg.EnableConsole = enable
	return b
}

// EnableFile enables local file output in dir.
func (b *Builder) EnableFile(dir string) *Builder {
	b.cfg.EnableFile = true
	b.cfg.Directory = dir
	return b
}

// LocalLevel sets the minimum severity written locally from a severity name.
func (b *Builder) LocalLevel(name string) *Builder {
	if b.err != nil {
		return b
	}
	sev, err := codec.ParseSeverity(name)
	if err != nil {
		b.err = fmtErrorf("invalid local level: %w", err)
		return b
	}
	b.cfg.LocalLevel = zapLevel(sev).String()
	return b
}

// Sink installs a custom local sink instead of the configured one.
func (b *Builder) Sink(s Sink) *Builder {
	b.sink = s
	return b
}

// Example usage:
// p, err := logfwd.NewBuilder().
//
//	Collector("10.0.0.5:9000").
//	Origin(1, 3, 42).
//	MaxBuffered(1024).
//	LocalLevel("warning").
//	Build()
//
// if err == nil {
//
//	 defer p.Shutdown()
//	 _ = p.Start()
//	 p.Info("pipeline initialized")
//
// }
