// internal/poller/builder.go
package poller

import (
	"go.uber.org/zap"

	cfg "github.com/tamzrod/bmbus/internal/config"
	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/poller/bmbus"
	"github.com/tamzrod/bmbus/internal/registry"
)

// Build wires a Poller to the dispatcher through the bmbus adapter.
// The config must already be validated and normalized.
func Build(c *cfg.Config, bus bmbus.Bus, reg *registry.Registry, log *zap.Logger, m *metrics.BusMetrics) (*Poller, *bmbus.Client, error) {
	client, err := bmbus.New(bus)
	if err != nil {
		return nil, nil, err
	}

	p, err := New(
		Config{
			Interval:        c.Poll.Interval(),
			SystemCurrentMA: c.Poll.SystemCurrentMA,
			Summary:         c.Poll.Summary != nil && *c.Poll.Summary,
			Snapshot:        c.Poll.Snapshot != nil && *c.Poll.Snapshot,
		},
		client,
		reg,
		WithLogger(log),
		WithMetrics(m),
	)
	if err != nil {
		return nil, nil, err
	}

	return p, client, nil
}
