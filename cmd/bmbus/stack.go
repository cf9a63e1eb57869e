// cmd/bmbus/stack.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tamzrod/bmbus/internal/addressing"
	"github.com/tamzrod/bmbus/internal/config"
	"github.com/tamzrod/bmbus/internal/dispatcher"
	"github.com/tamzrod/bmbus/internal/logging"
	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/sim"
	"github.com/tamzrod/bmbus/internal/transport"
)

// stack is everything between the config file and the bus.
type stack struct {
	cfg     *config.Config
	log     *zap.Logger
	prom    *prometheus.Registry
	metrics *metrics.BusMetrics
	reg     *registry.Registry
	disp    *dispatcher.Dispatcher
	line    addressing.TriggerLine

	closers []io.Closer
}

// openStack loads the config and opens the bus it describes.
func openStack(path string) (*stack, error) {
	// --------------------
	// Load + validate config
	// --------------------

	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(c); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(c)

	log, err := logging.InitLogger(c.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(log)

	s := &stack{
		cfg:  c,
		log:  log,
		prom: metrics.NewRegistry(),
		reg:  registry.New(),
	}
	s.metrics = metrics.NewBusMetrics(s.prom)

	codec := protocol.NewCodec(checksumParams(c.Bus.Checksum))

	// --------------------
	// Transport
	// --------------------

	var ch dispatcher.Channel
	if c.Simulate {
		var chain *sim.Chain
		if c.Addressing.Enabled {
			chain = sim.NewChain(len(c.Modules), codec)
		} else {
			chain = sim.Preaddressed(c.Addresses(), codec)
		}
		ch, s.line = chain, chain
		log.Warn("simulated chain in use", zap.Int("modules", len(c.Modules)))
	} else {
		sc, err := transport.OpenSerial(transport.SerialConfig{
			Port:     c.Bus.Serial.Port,
			BaudRate: c.Bus.Serial.BaudRate,
			DataBits: c.Bus.Serial.DataBits,
			StopBits: c.Bus.Serial.StopBits,
			Parity:   c.Bus.Serial.Parity,
			ReadPoll: c.Bus.Serial.ReadPoll(),
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, sc)
		ch = sc

		if c.Addressing.Enabled {
			line, err := transport.OpenTriggerLine(c.Addressing.TriggerPin, *c.Addressing.ActiveLow)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.line = line
		}
	}

	s.disp, err = dispatcher.New(ch, dispatcher.Config{
		ResponseTimeout: c.Bus.ResponseTimeout(),
		CommandGap:      c.Bus.CommandGap(),
		Retry: dispatcher.RetryPolicy{
			Attempts:   c.Bus.Retry.Attempts,
			Backoff:    c.Bus.Retry.Backoff(),
			MaxBackoff: c.Bus.Retry.MaxBackoff(),
		},
	},
		dispatcher.WithLogger(log),
		dispatcher.WithMetrics(s.metrics),
		dispatcher.WithCodec(codec),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// bringUp fills the registry: through the handshake when addressing is
// enabled, otherwise from the configured chain as already primed.
func (s *stack) bringUp(ctx context.Context) error {
	c := s.cfg

	if !c.Addressing.Enabled {
		for i, m := range c.Modules {
			if err := s.reg.Register(m.Address, m.Name, i, registry.StatePrimed); err != nil {
				return err
			}
		}
		s.metrics.Primed(len(c.Modules))
		return nil
	}

	if s.line == nil {
		return errors.New("addressing enabled without a trigger line")
	}

	coord, err := addressing.New(s.disp, s.line, s.reg, addressing.Config{
		Settle: c.Addressing.Settle(),
		Step:   c.Addressing.Step(),
	},
		addressing.WithLogger(s.log),
		addressing.WithMetrics(s.metrics),
	)
	if err != nil {
		return err
	}

	targets := make([]addressing.Target, len(c.Modules))
	for i, m := range c.Modules {
		targets[i] = addressing.Target{Address: m.Address, Name: m.Name}
	}
	_, err = coord.Assign(ctx, targets)
	return err
}

// Close releases the bus and flushes the logger.
func (s *stack) Close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = s.log.Sync()
}

func checksumParams(c config.ChecksumConfig) protocol.ChecksumParams {
	p := protocol.DefaultChecksum
	if c.Poly != nil {
		p.Poly = *c.Poly
	}
	if c.Init != nil {
		p.Init = *c.Init
	}
	p.RefIn = c.RefIn
	p.RefOut = c.RefOut
	p.XorOut = c.XorOut
	return p
}
