// internal/transport/gpio.go
package transport

import (
	"fmt"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// TriggerLine drives the enable input of the first module in the chain.
type TriggerLine struct {
	pin       gpio.PinOut
	activeLow bool
}

// OpenTriggerLine initialises the host drivers, looks up the named pin and
// leaves it deasserted.
func OpenTriggerLine(name string, activeLow bool) (*TriggerLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("transport: gpio host init: %w", err)
	}

	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("transport: gpio pin %q not found", name)
	}

	return NewTriggerLine(p, activeLow)
}

// NewTriggerLine wraps an already resolved pin and deasserts it.
func NewTriggerLine(pin gpio.PinOut, activeLow bool) (*TriggerLine, error) {
	t := &TriggerLine{pin: pin, activeLow: activeLow}
	if err := t.Deassert(); err != nil {
		return nil, err
	}
	return t, nil
}

// Assert enables the first module.
func (t *TriggerLine) Assert() error {
	return t.set(true)
}

// Deassert releases the line.
func (t *TriggerLine) Deassert() error {
	return t.set(false)
}

func (t *TriggerLine) set(active bool) error {
	level := gpio.Level(active != t.activeLow)
	if err := t.pin.Out(level); err != nil {
		return fmt.Errorf("transport: trigger %s out(%s): %w", t.pin, level, err)
	}
	return nil
}
