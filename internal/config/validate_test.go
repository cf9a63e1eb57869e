// internal/config/validate_test.go
package config

import "testing"

// helper to build a minimal valid config quickly
func chain(addrs ...uint8) *Config {
	cfg := &Config{
		Bus: BusConfig{
			Serial: SerialConfig{Port: "/dev/ttyUSB0"},
		},
	}
	for _, a := range addrs {
		cfg.Modules = append(cfg.Modules, ModuleConfig{Address: a})
	}
	return cfg
}

// ---- tests ----

func TestValidate_MinimalChainOK(t *testing.T) {
	if err := Validate(chain(0x10, 0x11, 0x12)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_NoModules(t *testing.T) {
	if err := Validate(chain()); err == nil {
		t.Fatalf("expected error for empty chain, got nil")
	}
}

func TestValidate_DuplicateAddress(t *testing.T) {
	if err := Validate(chain(0x10, 0x11, 0x10)); err == nil {
		t.Fatalf("expected duplicate address error, got nil")
	}
}

func TestValidate_ReservedAddress(t *testing.T) {
	for _, a := range []uint8{0xFE, 0xFF} {
		if err := Validate(chain(0x01, a)); err == nil {
			t.Fatalf("expected reserved address error for 0x%02X, got nil", a)
		}
	}
}

func TestValidate_PortRequiredUnlessSimulated(t *testing.T) {
	cfg := chain(0x01)
	cfg.Bus.Serial.Port = ""

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected missing port error, got nil")
	}

	cfg.Simulate = true
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error in simulate mode: %v", err)
	}
}

func TestValidate_BadParity(t *testing.T) {
	cfg := chain(0x01)
	cfg.Bus.Serial.Parity = "X"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected parity error, got nil")
	}
}

func TestValidate_RetryBounds(t *testing.T) {
	cfg := chain(0x01)
	cfg.Bus.Retry.Attempts = 11
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected retry attempts error, got nil")
	}

	cfg = chain(0x01)
	cfg.Bus.Retry.BackoffMs = 100
	cfg.Bus.Retry.MaxBackoffMs = 10
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected backoff ordering error, got nil")
	}
}

func TestValidate_NonASCIIName(t *testing.T) {
	cfg := chain(0x01)
	cfg.Modules[0].Name = "BM-é"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ASCII error, got nil")
	}
}

func TestValidate_MirrorGeometry(t *testing.T) {
	cfg := chain(0x01, 0x02)
	cfg.Mirror = &MirrorConfig{Endpoint: "127.0.0.1:502", BaseSlot: 2046}

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error at last fitting slot: %v", err)
	}

	cfg.Mirror.BaseSlot = 2047
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected register space overflow, got nil")
	}
}

func TestValidate_MirrorEndpointRequired(t *testing.T) {
	cfg := chain(0x01)
	cfg.Mirror = &MirrorConfig{}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected endpoint error, got nil")
	}
}

func TestValidate_MQTT(t *testing.T) {
	cfg := chain(0x01)
	cfg.MQTT = &MQTTConfig{Broker: "tcp://localhost:1883", QoS: 3}

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected qos error, got nil")
	}
}
