// internal/config/normalize.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults.
const (
	DefaultBaudRate          = 230400
	DefaultReadPollMs        = 10
	DefaultResponseTimeoutMs = 1000
	DefaultCommandGapMs      = 1
	DefaultRetryAttempts     = 3
	DefaultRetryBackoffMs    = 5
	DefaultRetryMaxBackoffMs = 50
	DefaultTriggerPin        = "GPIO23"
	DefaultSettleMs          = 10
	DefaultStepMs            = 1
	DefaultPollIntervalMs    = 55000
	DefaultSystemCurrentMA   = 285
	DefaultMirrorTimeoutMs   = 1000
	DefaultMetricsPath       = "/metrics"
	DefaultTopicPrefix       = "bmbus"

	moduleNameMaxChars = 16
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	s := &cfg.Bus.Serial
	if s.BaudRate == 0 {
		s.BaudRate = DefaultBaudRate
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.ReadPollMs == 0 {
		s.ReadPollMs = DefaultReadPollMs
	}

	if cfg.Bus.ResponseTimeoutMs == 0 {
		cfg.Bus.ResponseTimeoutMs = DefaultResponseTimeoutMs
	}
	if cfg.Bus.CommandGapMs == 0 {
		cfg.Bus.CommandGapMs = DefaultCommandGapMs
	}

	r := &cfg.Bus.Retry
	if r.Attempts == 0 {
		r.Attempts = DefaultRetryAttempts
	}
	if r.BackoffMs == 0 {
		r.BackoffMs = DefaultRetryBackoffMs
	}
	if r.MaxBackoffMs == 0 {
		r.MaxBackoffMs = DefaultRetryMaxBackoffMs
		if r.MaxBackoffMs < r.BackoffMs {
			r.MaxBackoffMs = r.BackoffMs
		}
	}

	// ------------------------------------------------------------
	// ADDRESSING
	// ------------------------------------------------------------

	a := &cfg.Addressing
	if a.TriggerPin == "" {
		a.TriggerPin = DefaultTriggerPin
	}
	if a.ActiveLow == nil {
		v := true
		a.ActiveLow = &v
	}
	if a.SettleMs == 0 {
		a.SettleMs = DefaultSettleMs
	}
	if a.StepMs == 0 {
		a.StepMs = DefaultStepMs
	}

	// ------------------------------------------------------------
	// MODULE NAMES
	// ------------------------------------------------------------

	for i := range cfg.Modules {
		m := &cfg.Modules[i]
		if m.Name == "" {
			m.Name = fmt.Sprintf("BM-%02X", m.Address)
		}
		// ASCII already validated; truncate to max 16 characters
		if len(m.Name) > moduleNameMaxChars {
			m.Name = m.Name[:moduleNameMaxChars]
		}
	}

	// ------------------------------------------------------------
	// POLL
	// ------------------------------------------------------------

	if cfg.Poll.IntervalMs == 0 {
		cfg.Poll.IntervalMs = DefaultPollIntervalMs
	}
	if cfg.Poll.SystemCurrentMA == 0 {
		cfg.Poll.SystemCurrentMA = DefaultSystemCurrentMA
	}
	if cfg.Poll.Summary == nil {
		v := true
		cfg.Poll.Summary = &v
	}
	if cfg.Poll.Snapshot == nil {
		v := true
		cfg.Poll.Snapshot = &v
	}

	// ------------------------------------------------------------
	// OUTPUTS
	// ------------------------------------------------------------

	if cfg.Mirror != nil && cfg.Mirror.TimeoutMs == 0 {
		cfg.Mirror.TimeoutMs = DefaultMirrorTimeoutMs
	}
	if cfg.MQTT != nil && cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Addresses returns module addresses in chain order.
func (c *Config) Addresses() []uint8 {
	out := make([]uint8, len(c.Modules))
	for i, m := range c.Modules {
		out[i] = m.Address
	}
	return out
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (b BusConfig) ResponseTimeout() time.Duration { return ms(b.ResponseTimeoutMs) }
func (b BusConfig) CommandGap() time.Duration      { return ms(b.CommandGapMs) }
func (s SerialConfig) ReadPoll() time.Duration     { return ms(s.ReadPollMs) }
func (r RetryConfig) Backoff() time.Duration       { return ms(r.BackoffMs) }
func (r RetryConfig) MaxBackoff() time.Duration    { return ms(r.MaxBackoffMs) }
func (a AddressingConfig) Settle() time.Duration   { return ms(a.SettleMs) }
func (a AddressingConfig) Step() time.Duration     { return ms(a.StepMs) }
func (p PollConfig) Interval() time.Duration       { return ms(p.IntervalMs) }
func (m MirrorConfig) Timeout() time.Duration      { return ms(m.TimeoutMs) }
