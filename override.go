package logfwd

import (
	"fmt"
	"strconv"
	"strings"
)

// ApplyConfigString applies string key-value overrides to the pipeline's current configuration.
// Each override should be in the format "key=value".
// The configuration is cloned before modification.
//
// Example:
//
//	p := logfwd.NewPipeline()
//	err := p.ApplyConfigString(
//	    "collector=10.0.0.5:9000",
//	    "max_buffered=1024",
//	    "transport=http",
//	)
func (p *Pipeline) ApplyConfigString(overrides ...string) error {
	cfg := p.getConfig().Clone()

	var errors []error

	for _, override := range overrides {
		key, value, err := parseKeyValue(override)
		if err != nil {
			errors = append(errors, err)
			continue
		}

		if err := applyConfigField(cfg, key, value); err != nil {
			errors = append(errors, err)
		}
	}

	if len(errors) > 0 {
		return combineConfigErrors(errors)
	}

	return p.ApplyConfig(cfg)
}

// combineConfigErrors combines multiple configuration errors into a single error.
func combineConfigErrors(errors []error) error {
	if len(errors) == 0 {
		return nil
	}
	if len(errors) == 1 {
		return errors[0]
	}

	var sb strings.Builder
	sb.WriteString("logfwd: multiple configuration errors:")
	for i, err := range errors {
		errMsg := strings.TrimPrefix(err.Error(), errorPrefix)
		sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, errMsg))
	}
	return fmt.Errorf("%s", sb.String())
}

func parseBoolField(key, value string) (bool, error) {
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmtErrorf("invalid boolean value for %s '%s': %w", key, value, err)
	}
	return boolVal, nil
}

func parseIntField(key, value string) (int64, error) {
	intVal, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmtErrorf("invalid integer value for %s '%s': %w", key, value, err)
	}
	return intVal, nil
}

// applyConfigField applies a single key-value override to a Config.
func applyConfigField(cfg *Config, key, value string) error {
	var err error

	switch key {
	// Forwarding
	case "forward":
		cfg.Forward, err = parseBoolField(key, value)
	case "transport":
		cfg.Transport = value
	case "collector":
		cfg.Collector = value
	case "transport_timeout_ms":
		cfg.TransportTimeoutMs, err = parseIntField(key, value)
	case "message_id":
		cfg.MessageID, err = parseIntField(key, value)

	// Origin identity
	case "uid":
		cfg.UID, err = parseIntField(key, value)
	case "component_kind":
		cfg.ComponentKind, err = parseIntField(key, value)
	case "component_id":
		cfg.ComponentID, err = parseIntField(key, value)
	case "global_order":
		cfg.GlobalOrder, err = parseIntField(key, value)
	case "group_order":
		cfg.GroupOrder, err = parseIntField(key, value)

	// Buffering
	case "max_buffered":
		cfg.MaxBuffered, err = parseIntField(key, value)
	case "max_sync_per_cycle":
		cfg.MaxSyncPerCycle, err = parseIntField(key, value)

	// Timers
	case "sync_interval_ms":
		cfg.SyncIntervalMs, err = parseIntField(key, value)
	case "collector_loss_timeout_s":
		cfg.CollectorLossTimeoutS, err = parseIntField(key, value)
	case "shutdown_timeout_ms":
		cfg.ShutdownTimeoutMs, err = parseIntField(key, value)
	case "heartbeat_interval_s":
		cfg.HeartbeatIntervalS, err = parseIntField(key, value)

	// Local sink
	case "local_echo":
		cfg.LocalEcho, err = parseBoolField(key, value)
	case "enable_console":
		cfg.EnableConsole, err = parseBoolField(key, value)
	case "console_target":
		cfg.ConsoleTarget = value
	case "enable_file":
		cfg.EnableFile, err = parseBoolField(key, value)
	case "directory":
		cfg.Directory = value
	case "name":
		cfg.Name = value
	case "max_size_mb":
		cfg.MaxSizeMB, err = parseIntField(key, value)
	case "max_backups":
		cfg.MaxBackups, err = parseIntField(key, value)
	case "local_level":
		cfg.LocalLevel = strings.ToLower(value)

	// Internal error handling
	case "internal_errors_to_stderr":
		cfg.InternalErrorsToStderr, err = parseBoolField(key, value)

	default:
		return fmtErrorf("unknown configuration key '%s'", key)
	}

	return err
}
