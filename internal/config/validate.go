// internal/config/validate.go
package config

import (
	"fmt"
	"strings"
)

// Reserved bus addresses (broadcast, factory default).
const (
	addrBroadcast = 0xFF
	addrDefault   = 0xFE
)

// registersPerModule mirrors status.SlotsPerModule; kept local so config
// stays free of runtime packages.
const registersPerModule = 32

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
// Zero values mean "use the default" and are accepted here.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// ------------------------------------------------------------
	// MODULE CHAIN
	// ------------------------------------------------------------

	if len(cfg.Modules) == 0 {
		return fmt.Errorf("modules: at least one module is required")
	}

	seen := make(map[uint8]int, len(cfg.Modules))
	for i, m := range cfg.Modules {
		if m.Address == addrBroadcast || m.Address == addrDefault {
			return fmt.Errorf("modules[%d]: address 0x%02X is reserved", i, m.Address)
		}
		if prev, dup := seen[m.Address]; dup {
			return fmt.Errorf(
				"modules[%d]: address 0x%02X already used by modules[%d]",
				i, m.Address, prev,
			)
		}
		seen[m.Address] = i

		// name sanity (ASCII only)
		for j := 0; j < len(m.Name); j++ {
			if m.Name[j] > 0x7F {
				return fmt.Errorf("modules[%d]: name must contain ASCII characters only", i)
			}
		}
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	s := cfg.Bus.Serial
	if s.BaudRate < 0 {
		return fmt.Errorf("bus.serial.baud_rate must be > 0")
	}
	if s.DataBits != 0 && (s.DataBits < 5 || s.DataBits > 8) {
		return fmt.Errorf("bus.serial.data_bits must be 5..8, got %d", s.DataBits)
	}
	if s.StopBits != 0 && s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("bus.serial.stop_bits must be 1 or 2, got %d", s.StopBits)
	}
	switch strings.ToUpper(s.Parity) {
	case "", "N", "E", "O":
	default:
		return fmt.Errorf("bus.serial.parity must be N, E or O, got %q", s.Parity)
	}
	if s.ReadPollMs < 0 {
		return fmt.Errorf("bus.serial.read_poll_ms must be >= 0")
	}
	if !cfg.Simulate && s.Port == "" {
		return fmt.Errorf("bus.serial.port is required unless simulate is set")
	}

	if cfg.Bus.ResponseTimeoutMs < 0 {
		return fmt.Errorf("bus.response_timeout_ms must be >= 0")
	}
	if cfg.Bus.CommandGapMs < 0 {
		return fmt.Errorf("bus.command_gap_ms must be >= 0")
	}

	r := cfg.Bus.Retry
	if r.Attempts < 0 || r.Attempts > 10 {
		return fmt.Errorf("bus.retry.attempts must be 1..10, got %d", r.Attempts)
	}
	if r.BackoffMs < 0 || r.MaxBackoffMs < 0 {
		return fmt.Errorf("bus.retry backoff values must be >= 0")
	}
	if r.MaxBackoffMs != 0 && r.MaxBackoffMs < r.BackoffMs {
		return fmt.Errorf("bus.retry.max_backoff_ms must be >= backoff_ms")
	}

	// ------------------------------------------------------------
	// ADDRESSING
	// ------------------------------------------------------------

	a := cfg.Addressing
	if a.SettleMs < 0 || a.StepMs < 0 {
		return fmt.Errorf("addressing timings must be >= 0")
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs < 0 {
		return fmt.Errorf("poll.interval_ms must be > 0")
	}

	// ------------------------------------------------------------
	// MIRROR GEOMETRY
	// ------------------------------------------------------------

	if m := cfg.Mirror; m != nil {
		if m.Endpoint == "" {
			return fmt.Errorf("mirror.endpoint is required when mirror is set")
		}
		if m.TimeoutMs < 0 {
			return fmt.Errorf("mirror.timeout_ms must be >= 0")
		}
		last := (uint32(m.BaseSlot)+uint32(len(cfg.Modules)))*registersPerModule - 1
		if last > 0xFFFF {
			return fmt.Errorf(
				"mirror: %d modules from base_slot %d exceed the register space (last=%d)",
				len(cfg.Modules), m.BaseSlot, last,
			)
		}
	}

	// ------------------------------------------------------------
	// MQTT
	// ------------------------------------------------------------

	if q := cfg.MQTT; q != nil {
		if q.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is set")
		}
		if q.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0..2, got %d", q.QoS)
		}
	}

	// ------------------------------------------------------------
	// LOGGING
	// ------------------------------------------------------------

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	return nil
}
