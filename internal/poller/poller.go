// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tamzrod/bmbus/internal/logging"
	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/poller/bmbus"
	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
)

// Client abstracts the module commands needed by the poller.
type Client interface {
	GlobalSnapshot(ctx context.Context, currentMA uint16) error
	ReadVoltages(ctx context.Context, addr byte) (bmbus.Voltages, error)
	ReadSummary(ctx context.Context, addr byte, currentMA uint16) (protocol.Summary, error)
}

// Config is the minimal runtime config the poller needs.
type Config struct {
	Interval        time.Duration
	SystemCurrentMA uint16
	Summary         bool
	Snapshot        bool
}

// Poller is a clock-driven reader of every primed module.
type Poller struct {
	cfg     Config
	client  Client
	reg     *registry.Registry
	log     *zap.Logger
	metrics *metrics.BusMetrics
	now     func() time.Time
}

type Option func(*Poller)

func WithLogger(l *zap.Logger) Option { return func(p *Poller) { p.log = logging.OrNop(l) } }

func WithMetrics(m *metrics.BusMetrics) Option { return func(p *Poller) { p.metrics = m } }

// New creates a poller with immutable config.
func New(cfg Config, client Client, reg *registry.Registry, opts ...Option) (*Poller, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if reg == nil {
		return nil, errors.New("poller: registry required")
	}
	p := &Poller{
		cfg:    cfg,
		client: client,
		reg:    reg,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// PollOnce performs exactly one poll cycle.
// A failing module does not abort the cycle; a failed snapshot does.
func (p *Poller) PollOnce(ctx context.Context) PollResult {
	res := PollResult{
		CycleID: uuid.NewString(),
		At:      p.now(),
	}
	log := p.log.With(zap.String("cycle", res.CycleID))

	var targets []byte
	for _, m := range p.reg.Modules() {
		if m.State == registry.StatePrimed {
			targets = append(targets, m.Address)
		}
	}

	if p.cfg.Snapshot && len(targets) > 0 {
		if err := p.client.GlobalSnapshot(ctx, p.cfg.SystemCurrentMA); err != nil {
			res.Err = fmt.Errorf("poller: global snapshot: %w", err)
			for _, addr := range targets {
				res.Modules = append(res.Modules, p.fail(addr, res.Err))
			}
			p.metrics.Cycle(false)
			log.Warn("poll cycle aborted", zap.Error(res.Err))
			return res
		}
	}

	for _, addr := range targets {
		if ctx.Err() != nil {
			res.Err = ctx.Err()
			break
		}
		res.Modules = append(res.Modules, p.pollModule(ctx, addr))
	}

	failed := res.Failed()
	p.metrics.Cycle(failed == 0 && res.Err == nil)
	log.Debug("poll cycle done",
		zap.Int("modules", len(res.Modules)),
		zap.Int("failed", failed),
	)
	return res
}

func (p *Poller) pollModule(ctx context.Context, addr byte) ModuleResult {
	mr := ModuleResult{Address: addr, Summary: protocol.SentinelSummary()}

	// ---- voltages: 3 pages ----
	v, err := p.client.ReadVoltages(ctx, addr)
	mr.Voltages, mr.VoltagesErr = v.Cells, err
	for page := 1; page <= protocol.VoltagePages; page++ {
		if v.PageErr[page-1] != nil {
			continue
		}
		p.registryErr(addr, p.reg.UpdateVoltagePage(addr, page, v.Page(page)))
	}
	p.registryErr(addr, p.reg.CommitVoltages(addr, mr.VoltagesErr))
	p.metrics.Stale(addr, "voltages", mr.VoltagesErr != nil)
	if mr.VoltagesErr == nil {
		p.metrics.Cells(addr, mr.Voltages[:])
	}

	// ---- summary ----
	if p.cfg.Summary {
		s, err := p.client.ReadSummary(ctx, addr, p.cfg.SystemCurrentMA)
		if err != nil {
			mr.SummaryErr = err
			p.registryErr(addr, p.reg.MarkSummaryStale(addr, err))
		} else {
			mr.Summary = s
			p.registryErr(addr, p.reg.UpdateSummary(addr, s))
			p.metrics.Temps(addr, s.Temp1, s.Temp2)
		}
		p.metrics.Stale(addr, "summary", err != nil)
	}

	if err := mr.Err(); err != nil {
		p.log.Warn("module read failed",
			zap.Uint8("address", addr),
			zap.Error(err),
		)
	}
	return mr
}

// fail builds an all-sentinel result and marks the registry stale.
func (p *Poller) fail(addr byte, err error) ModuleResult {
	mr := ModuleResult{Address: addr, VoltagesErr: err, Summary: protocol.SentinelSummary()}
	for i := range mr.Voltages {
		mr.Voltages[i] = protocol.Sentinel
	}
	p.metrics.Stale(addr, "voltages", true)
	if !p.cfg.Summary {
		p.registryErr(addr, p.reg.CommitVoltages(addr, err))
		return mr
	}
	mr.SummaryErr = err
	p.registryErr(addr, p.reg.MarkStale(addr, err))
	p.metrics.Stale(addr, "summary", true)
	return mr
}

// registryErr logs a registry update that found no module.
func (p *Poller) registryErr(addr byte, err error) {
	if err != nil {
		p.log.Debug("registry update skipped",
			zap.Uint8("address", addr),
			zap.Error(err),
		)
	}
}
