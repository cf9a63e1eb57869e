// internal/writer/builder.go
package writer

import (
	"errors"

	cfg "github.com/tamzrod/bmbus/internal/config"
	wmodbus "github.com/tamzrod/bmbus/internal/writer/modbus"
)

// BuildPlan lays modules out in chain order from mirror.base_slot.
// Assumes config has already passed geometry validation.
func BuildPlan(c *cfg.Config) (Plan, error) {
	if c.Mirror == nil {
		return Plan{}, errors.New("writer: mirror not configured")
	}

	plan := Plan{
		Endpoint: c.Mirror.Endpoint,
		UnitID:   c.Mirror.UnitID,
	}
	for i, m := range c.Modules {
		plan.Modules = append(plan.Modules, ModuleDest{
			Address: m.Address,
			Slot:    c.Mirror.BaseSlot + uint16(i),
		})
	}
	return plan, nil
}

// BuildEndpointClient connects the Modbus TCP client for the plan.
func BuildEndpointClient(c *cfg.Config) (*wmodbus.EndpointClient, func() error, error) {
	if c.Mirror == nil {
		return nil, nil, errors.New("writer: mirror not configured")
	}

	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: c.Mirror.Endpoint,
		Timeout:  c.Mirror.Timeout(),
	})
	if err != nil {
		return nil, nil, err
	}
	return cli, cli.Close, nil
}
