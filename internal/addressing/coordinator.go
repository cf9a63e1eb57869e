// internal/addressing/coordinator.go
package addressing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tamzrod/bmbus/internal/logging"
	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
)

// TriggerLine is the enable input of chain position 0.
type TriggerLine interface {
	Assert() error
	Deassert() error
}

// Bus issues one command. Addressing commands are never answered.
type Bus interface {
	Do(ctx context.Context, cmd protocol.Command) (*protocol.Response, error)
}

// Registrar receives modules as they get their address.
type Registrar interface {
	Register(addr byte, name string, position int, state registry.State) error
	SetState(addr byte, s registry.State) error
}

// Target is one chain position to address, in physical order.
type Target struct {
	Address byte
	Name    string
}

// Config holds the handshake timings.
type Config struct {
	// Settle follows trigger line edges and the final broadcast.
	Settle time.Duration
	// Step follows every addressing command.
	Step time.Duration
}

// Coordinator runs the trigger-gated addressing handshake.
type Coordinator struct {
	bus     Bus
	line    TriggerLine
	reg     Registrar
	cfg     Config
	log     *zap.Logger
	metrics *metrics.BusMetrics
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = logging.OrNop(l) } }

func WithMetrics(m *metrics.BusMetrics) Option { return func(c *Coordinator) { c.metrics = m } }

func New(bus Bus, line TriggerLine, reg Registrar, cfg Config, opts ...Option) (*Coordinator, error) {
	if bus == nil || line == nil || reg == nil {
		return nil, errors.New("addressing: bus, trigger line and registrar are required")
	}
	c := &Coordinator{
		bus:   bus,
		line:  line,
		reg:   reg,
		cfg:   cfg,
		log:   zap.NewNop(),
		sleep: sleepCtx,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Assign addresses every target in chain order and primes the chain.
// The trigger line is deasserted on every return path.
func (c *Coordinator) Assign(ctx context.Context, targets []Target) ([]Position, error) {
	if err := checkTargets(targets); err != nil {
		return nil, err
	}

	pos := make([]Position, len(targets))
	for i, t := range targets {
		pos[i] = Position{Index: i, Address: t.Address, State: registry.StatePowered}
	}

	run := &run{c: c, ctx: ctx, pos: pos}
	defer run.releaseLine()

	c.log.Info("addressing started", zap.Int("modules", len(targets)))

	for i, t := range targets {
		if err := run.position(i, t); err != nil {
			return pos, err
		}
	}

	// ---- close the handshake ----
	if err := run.send(protocol.AutoAddrDoneCmd()); err != nil {
		return pos, err
	}
	for i := range pos {
		if err := run.apply(i, EventPrime); err != nil {
			return pos, err
		}
		if err := c.reg.SetState(pos[i].Address, registry.StatePrimed); err != nil {
			return pos, err
		}
	}
	if err := c.sleep(ctx, c.cfg.Settle); err != nil {
		return pos, err
	}

	c.metrics.Primed(len(pos))
	c.log.Info("addressing complete", zap.Int("modules", len(pos)))
	return pos, nil
}

// run is the state of one Assign call.
type run struct {
	c        *Coordinator
	ctx      context.Context
	pos      []Position
	asserted bool
}

func (r *run) position(i int, t Target) error {
	c := r.c

	if i == 0 {
		if err := c.line.Assert(); err != nil {
			return fmt.Errorf("addressing: assert trigger: %w", err)
		}
		r.asserted = true
		if err := r.apply(0, EventEnable); err != nil {
			return err
		}
		if err := c.sleep(r.ctx, c.cfg.Settle); err != nil {
			return err
		}
	}

	// the single enabled, unaddressed module captures the address
	setAddr, err := protocol.SetAddressCmd(t.Address)
	if err != nil {
		return err
	}
	if err := r.send(setAddr); err != nil {
		return err
	}
	if err := r.apply(i, EventAssign); err != nil {
		return err
	}
	if err := c.reg.Register(t.Address, t.Name, i, registry.StateAddressed); err != nil {
		return err
	}

	// new module enables its successor
	if err := r.send(protocol.TriggerCmd(t.Address)); err != nil {
		return err
	}
	if err := r.apply(i, EventChainNext); err != nil {
		return err
	}
	if i+1 < len(r.pos) {
		if err := r.apply(i+1, EventEnable); err != nil {
			return err
		}
	}

	if i == 0 {
		if err := r.releaseLine(); err != nil {
			return err
		}
		if err := r.apply(0, EventRelease); err != nil {
			return err
		}
		if err := c.sleep(r.ctx, c.cfg.Settle); err != nil {
			return err
		}
	} else {
		// previous module drops this one off the addressing bus
		if err := r.send(protocol.TriggerCmd(r.pos[i-1].Address)); err != nil {
			return err
		}
		if err := r.apply(i, EventRelease); err != nil {
			return err
		}
	}

	c.log.Debug("module addressed",
		zap.Int("position", i),
		zap.Uint8("address", t.Address),
	)
	return nil
}

func (r *run) send(cmd protocol.Command) error {
	if _, err := r.c.bus.Do(r.ctx, cmd); err != nil {
		return fmt.Errorf("addressing: %s to 0x%02X: %w", cmd.Opcode, cmd.Address, err)
	}
	return r.c.sleep(r.ctx, r.c.cfg.Step)
}

func (r *run) apply(i int, e Event) error {
	if err := r.pos[i].Apply(e); err != nil {
		return err
	}
	if n := eligible(r.pos); n > 1 {
		return fmt.Errorf("addressing: %d modules eligible for SET_ADDRESS after %s on position %d", n, e, i)
	}
	return nil
}

func (r *run) releaseLine() error {
	if !r.asserted {
		return nil
	}
	if err := r.c.line.Deassert(); err != nil {
		r.c.log.Error("trigger deassert failed", zap.Error(err))
		return fmt.Errorf("addressing: deassert trigger: %w", err)
	}
	r.asserted = false
	return nil
}

// eligible counts positions that would capture a SET_ADDRESS right now.
func eligible(pos []Position) int {
	n := 0
	for _, p := range pos {
		if p.Enabled && p.State == registry.StatePowered {
			n++
		}
	}
	return n
}

func checkTargets(targets []Target) error {
	if len(targets) == 0 {
		return &protocol.FrameError{Kind: protocol.KindInvalidParameter, Detail: "no modules to address"}
	}
	seen := make(map[byte]bool, len(targets))
	for i, t := range targets {
		if protocol.IsReserved(t.Address) {
			return &protocol.FrameError{
				Kind:   protocol.KindInvalidParameter,
				Detail: fmt.Sprintf("position %d: address 0x%02X is reserved", i, t.Address),
			}
		}
		if seen[t.Address] {
			return &protocol.FrameError{
				Kind:   protocol.KindInvalidParameter,
				Detail: fmt.Sprintf("position %d: duplicate address 0x%02X", i, t.Address),
			}
		}
		seen[t.Address] = true
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
