// internal/config/config.go
package config

type Config struct {
	Bus        BusConfig        `yaml:"bus"`
	Addressing AddressingConfig `yaml:"addressing"`
	Modules    []ModuleConfig   `yaml:"modules"`
	Poll       PollConfig       `yaml:"poll"`
	Mirror     *MirrorConfig    `yaml:"mirror"`
	MQTT       *MQTTConfig      `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`

	// Simulate replaces the UART and GPIO with an in-process chain.
	Simulate bool `yaml:"simulate"`
}

// ---- BUS ----

type BusConfig struct {
	Serial SerialConfig `yaml:"serial"`

	ResponseTimeoutMs int `yaml:"response_timeout_ms"`
	CommandGapMs      int `yaml:"command_gap_ms"`

	Checksum ChecksumConfig `yaml:"checksum"`
	Retry    RetryConfig    `yaml:"retry"`
}

type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`
	Parity   string `yaml:"parity"` // N, E, O

	// ReadPollMs bounds one blocking read on the port.
	ReadPollMs int `yaml:"read_poll_ms"`
}

// ChecksumConfig selects the CRC-8 parameters; nil fields keep defaults.
type ChecksumConfig struct {
	Poly   *uint8 `yaml:"poly"`
	Init   *uint8 `yaml:"init"`
	RefIn  bool   `yaml:"ref_in"`
	RefOut bool   `yaml:"ref_out"`
	XorOut uint8  `yaml:"xor_out"`
}

// RetryConfig applies to read opcodes only.
type RetryConfig struct {
	Attempts     int `yaml:"attempts"`
	BackoffMs    int `yaml:"backoff_ms"`
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}

// ---- ADDRESSING ----

type AddressingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	TriggerPin string `yaml:"trigger_pin"`
	ActiveLow  *bool  `yaml:"active_low"`
	SettleMs   int    `yaml:"settle_ms"`
	StepMs     int    `yaml:"step_ms"`
}

// ---- MODULES ----

// ModuleConfig is one position on the chain, in physical order.
type ModuleConfig struct {
	Address uint8  `yaml:"address"`
	Name    string `yaml:"name"`
}

// ---- POLL ----

type PollConfig struct {
	IntervalMs      int    `yaml:"interval_ms"`
	SystemCurrentMA uint16 `yaml:"system_current_ma"`
	Summary         *bool  `yaml:"summary"`
	Snapshot        *bool  `yaml:"snapshot"`
}

// ---- MIRROR (Modbus TCP) ----

type MirrorConfig struct {
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id"`
	BaseSlot  uint16 `yaml:"base_slot"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// ---- LOGGING ----

type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"` // json | console
	File   LoggingFileConfig `yaml:"file"`
}

type LoggingFileConfig struct {
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
	Path   string `yaml:"path"`
}
