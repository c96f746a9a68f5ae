package logfwd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"github.com/lixenwraith/config"
	"go.uber.org/zap/zapcore"
)

// Config holds all pipeline configuration values
type Config struct {
	// Forwarding
	Forward            bool   `toml:"forward"`              // false = this process role never forwards, records go to the local sink
	Transport          string `toml:"transport"`            // "tcp", "http", "beats" or "none"
	Collector          string `toml:"collector"`            // Collector address registered on Start, empty = wait for Register
	TransportTimeoutMs int64  `toml:"transport_timeout_ms"` // Dial and request timeout used by transports
	MessageID          int64  `toml:"message_id"`           // Message id written in every unit header

	// Origin identity
	UID           int64 `toml:"uid"`
	ComponentKind int64 `toml:"component_kind"`
	ComponentID   int64 `toml:"component_id"` // 0 = random id generated on ApplyConfig
	GlobalOrder   int64 `toml:"global_order"`
	GroupOrder    int64 `toml:"group_order"`

	// Buffering
	MaxBuffered     int64 `toml:"max_buffered"`       // Outstanding unit limit, 0 = default 256
	MaxSyncPerCycle int64 `toml:"max_sync_per_cycle"` // Units handed to the transport per sync, 0 = unbounded

	// Timers
	SyncIntervalMs        int64 `toml:"sync_interval_ms"`         // Drain cycle period
	CollectorLossTimeoutS int64 `toml:"collector_loss_timeout_s"` // Evict everything after this long without a collector
	ShutdownTimeoutMs     int64 `toml:"shutdown_timeout_ms"`      // Upper bound for the final drain on Shutdown
	HeartbeatIntervalS    int64 `toml:"heartbeat_interval_s"`     // 0 = disabled

	// Local sink
	LocalEcho     bool   `toml:"local_echo"`     // Mirror records locally until the collector takes delivery
	EnableConsole bool   `toml:"enable_console"` // Local sink writes to console
	ConsoleTarget string `toml:"console_target"` // "stdout" or "stderr"
	EnableFile    bool   `toml:"enable_file"`    // Local sink writes to a file
	Directory     string `toml:"directory"`
	Name          string `toml:"name"` // Base name of the local log file
	MaxSizeMB     int64  `toml:"max_size_mb"`
	MaxBackups    int64  `toml:"max_backups"`
	LocalLevel    string `toml:"local_level"` // Minimum level written by the local sink

	// Internal error handling
	InternalErrorsToStderr bool `toml:"internal_errors_to_stderr"` // Write internal errors to stderr
}

// defaultConfig is the single source for all configurable default values
var defaultConfig = Config{
	// Forwarding
	Forward:            true,
	Transport:          TransportTCP,
	Collector:          "",
	TransportTimeoutMs: 3000,
	MessageID:          int64(1),

	// Origin identity
	UID:           0,
	ComponentKind: 0,
	ComponentID:   0,
	GlobalOrder:   0,
	GroupOrder:    0,

	// Buffering
	MaxBuffered:     defaultMaxBuffered,
	MaxSyncPerCycle: 0,

	// Timers
	SyncIntervalMs:        100,
	CollectorLossTimeoutS: 300,
	ShutdownTimeoutMs:     1000,
	HeartbeatIntervalS:    0,

	// Local sink
	LocalEcho:     true,
	EnableConsole: true,
	ConsoleTarget: "stdout",
	EnableFile:    false,
	Directory:     "./logs",
	Name:          "logfwd",
	MaxSizeMB:     100,
	MaxBackups:    5,
	LocalLevel:    "debug",

	// Internal error handling
	InternalErrorsToStderr: false,
}

// DefaultConfig returns a copy of the default configuration
func DefaultConfig() *Config {
	copiedConfig := defaultConfig
	return &copiedConfig
}

// NewConfigFromFile loads configuration from a TOML file and returns a validated Config
func NewConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	loader := config.New()

	// Register the struct to enable proper unmarshaling
	if err := loader.RegisterStruct("logfwd.", *cfg); err != nil {
		return nil, fmtErrorf("failed to register config struct: %w", err)
	}

	// Missing file means defaults
	if err := loader.Load(path, nil); err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return nil, fmtErrorf("failed to load config from %s: %w", path, err)
	}

	if err := extractConfig(loader, "logfwd.", cfg); err != nil {
		return nil, fmtErrorf("failed to extract config values: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewConfigFromDefaults creates a Config with default values and applies overrides
func NewConfigFromDefaults(overrides map[string]any) (*Config, error) {
	cfg := DefaultConfig()

	if err := applyOverrides(cfg, overrides); err != nil {
		return nil, fmtErrorf("failed to apply overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// extractConfig extracts values from lixenwraith/config into our Config struct
func extractConfig(loader *config.Config, prefix string, cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tomlTag := field.Tag.Get("toml")
		if tomlTag == "" {
			continue
		}

		val, found := loader.Get(prefix + tomlTag)
		if !found {
			continue // Keep default
		}

		if err := setFieldValue(v.Field(i), val); err != nil {
			return fmt.Errorf("failed to set field %s: %w", field.Name, err)
		}
	}

	return nil
}

// applyOverrides applies a map of overrides keyed by toml tag
func applyOverrides(cfg *Config, overrides map[string]any) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	fieldMap := make(map[string]reflect.Value)
	for i := 0; i < t.NumField(); i++ {
		if tomlTag := t.Field(i).Tag.Get("toml"); tomlTag != "" {
			fieldMap[tomlTag] = v.Field(i)
		}
	}

	for key, value := range overrides {
		fieldValue, exists := fieldMap[key]
		if !exists {
			return fmt.Errorf("unknown config key: %s", key)
		}

		if err := setFieldValue(fieldValue, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// setFieldValue sets a reflect.Value with proper type conversion
func setFieldValue(field reflect.Value, value any) error {
	switch field.Kind() {
	case reflect.String:
		strVal, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		field.SetString(strVal)

	case reflect.Int64:
		switch v := value.(type) {
		case int64:
			field.SetInt(v)
		case int:
			field.SetInt(int64(v))
		case float64:
			// TOML decoders may surface integers as floats
			if v != math.Trunc(v) {
				return fmt.Errorf("expected integer, got %v", v)
			}
			field.SetInt(int64(v))
		default:
			return fmt.Errorf("expected int64, got %T", value)
		}

	case reflect.Bool:
		boolVal, ok := value.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
		field.SetBool(boolVal)

	default:
		return fmt.Errorf("unsupported field type: %v", field.Kind())
	}

	return nil
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportHTTP, TransportBeats, TransportNone:
	default:
		return fmtErrorf("invalid transport: '%s' (use tcp, http, beats, or none)", c.Transport)
	}

	if c.ConsoleTarget != "stdout" && c.ConsoleTarget != "stderr" {
		return fmtErrorf("invalid console_target: '%s' (use stdout or stderr)", c.ConsoleTarget)
	}

	if c.EnableFile && strings.TrimSpace(c.Name) == "" {
		return fmtErrorf("name cannot be empty when file output is enabled")
	}

	if _, err := zapcore.ParseLevel(c.LocalLevel); err != nil {
		return fmtErrorf("invalid local_level '%s': %w", c.LocalLevel, err)
	}

	if c.MessageID <= 0 || c.MessageID > math.MaxUint16 {
		return fmtErrorf("message_id must be between 1 and %d: %d", math.MaxUint16, c.MessageID)
	}

	if c.UID < math.MinInt32 || c.UID > math.MaxInt32 {
		return fmtErrorf("uid out of int32 range: %d", c.UID)
	}

	if c.ComponentKind < 0 || c.ComponentKind > math.MaxInt32 ||
		c.GlobalOrder < math.MinInt32 || c.GlobalOrder > math.MaxInt32 ||
		c.GroupOrder < math.MinInt32 || c.GroupOrder > math.MaxInt32 {
		return fmtErrorf("component identity out of int32 range")
	}

	if c.ComponentID < 0 {
		return fmtErrorf("component_id cannot be negative: %d", c.ComponentID)
	}

	if c.MaxBuffered < 0 || c.MaxSyncPerCycle < 0 {
		return fmtErrorf("buffer limits cannot be negative")
	}

	if c.SyncIntervalMs <= 0 || c.TransportTimeoutMs <= 0 || c.ShutdownTimeoutMs <= 0 {
		return fmtErrorf("interval settings must be positive")
	}

	if c.CollectorLossTimeoutS <= 0 {
		return fmtErrorf("collector_loss_timeout_s must be positive: %d", c.CollectorLossTimeoutS)
	}

	if c.HeartbeatIntervalS < 0 {
		return fmtErrorf("heartbeat_interval_s cannot be negative: %d", c.HeartbeatIntervalS)
	}

	if c.MaxSizeMB < 0 || c.MaxBackups < 0 {
		return fmtErrorf("file limits cannot be negative")
	}

	if c.Forward && c.Transport != TransportNone && c.Collector != "" && strings.TrimSpace(c.Collector) == "" {
		return fmtErrorf("collector address cannot be blank")
	}

	return nil
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	copiedConfig := *c
	return &copiedConfig
}

// EffectiveMaxBuffered resolves the outstanding unit limit, mapping 0 to the default
func (c *Config) EffectiveMaxBuffered() int64 {
	if c.MaxBuffered <= 0 {
		return defaultMaxBuffered
	}
	return c.MaxBuffered
}

// randomComponentID derives a positive 63-bit id from a random UUID
func randomComponentID() int64 {
	id := uuid.New()
	return int64(binary.BigEndian.Uint64(id[:8]) & math.MaxInt64)
}
