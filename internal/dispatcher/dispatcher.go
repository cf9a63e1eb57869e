// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tamzrod/bmbus/internal/logging"
	"github.com/tamzrod/bmbus/internal/metrics"
	"github.com/tamzrod/bmbus/internal/protocol"
)

// Channel is the byte transport the dispatcher owns.
type Channel interface {
	Write(p []byte) error
	// ReadFull returns how many bytes arrived before timeout.
	ReadFull(buf []byte, timeout time.Duration) (int, error)
	ResetInput() error
}

// RetryPolicy bounds re-sends of read opcodes.
type RetryPolicy struct {
	Attempts   int // total tries, >= 1
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Config is the runtime config the dispatcher needs.
type Config struct {
	ResponseTimeout time.Duration
	CommandGap      time.Duration
	Retry           RetryPolicy
}

// Dispatcher serialises commands onto the single shared bus.
// At most one command is in flight.
type Dispatcher struct {
	mu      sync.Mutex
	ch      Channel
	codec   *protocol.Codec
	cfg     Config
	limiter *rate.Limiter
	log     *zap.Logger
	metrics *metrics.BusMetrics
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(l *zap.Logger) Option { return func(d *Dispatcher) { d.log = logging.OrNop(l) } }

func WithMetrics(m *metrics.BusMetrics) Option { return func(d *Dispatcher) { d.metrics = m } }

func WithCodec(c *protocol.Codec) Option { return func(d *Dispatcher) { d.codec = c } }

// New creates a dispatcher that owns ch.
func New(ch Channel, cfg Config, opts ...Option) (*Dispatcher, error) {
	if ch == nil {
		return nil, errors.New("dispatcher: channel required")
	}
	if cfg.ResponseTimeout <= 0 {
		return nil, errors.New("dispatcher: response timeout must be > 0")
	}
	if cfg.CommandGap < 0 {
		return nil, errors.New("dispatcher: command gap must be >= 0")
	}
	if cfg.Retry.Attempts < 1 {
		cfg.Retry.Attempts = 1
	}

	d := &Dispatcher{
		ch:    ch,
		codec: protocol.Default,
		cfg:   cfg,
		log:   zap.NewNop(),
		sleep: sleepCtx,
		now:   time.Now,
	}

	// one token per gap: consecutive writes are at least CommandGap apart
	if cfg.CommandGap > 0 {
		d.limiter = rate.NewLimiter(rate.Every(cfg.CommandGap), 1)
	} else {
		d.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// Send issues (addr, op, params) with a zero mode byte.
// Fire-and-forget and broadcast commands return (nil, nil).
func (d *Dispatcher) Send(ctx context.Context, addr byte, op protocol.Opcode, params protocol.Params) (*protocol.Response, error) {
	return d.Do(ctx, protocol.Command{Address: addr, Opcode: op, Params: params})
}

// Do issues cmd and, when the opcode is answered, waits for the response.
// Read opcodes are retried per the policy; nothing else is.
func (d *Dispatcher) Do(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	if err := validate(cmd); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	frame := d.codec.EncodeCommand(cmd)

	if cmd.Broadcast() || !cmd.Opcode.ExpectsResponse() {
		if err := d.write(ctx, cmd, frame); err != nil {
			return nil, err
		}
		return nil, nil
	}

	attempts := 1
	if cmd.Opcode.IsRead() {
		attempts = d.cfg.Retry.Attempts
	}

	backoff := d.cfg.Retry.Backoff
	var lastErr error

	for try := 1; try <= attempts; try++ {
		if try > 1 {
			d.metrics.Retry(cmd.Opcode)
			d.log.Debug("retrying read",
				zap.Stringer("opcode", cmd.Opcode),
				zap.Uint8("address", cmd.Address),
				zap.Int("attempt", try),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr),
			)
			if err := d.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			backoff = nextBackoff(backoff, d.cfg.Retry.MaxBackoff)
		}

		resp, err := d.roundTrip(ctx, cmd, frame)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// only frame-level failures are worth repeating
		if protocol.KindOf(err) == 0 {
			return nil, err
		}
	}

	d.log.Warn("command failed",
		zap.Stringer("opcode", cmd.Opcode),
		zap.Uint8("address", cmd.Address),
		zap.Int("attempts", attempts),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

func (d *Dispatcher) roundTrip(ctx context.Context, cmd protocol.Command, frame protocol.Frame) (*protocol.Response, error) {
	if err := d.ch.ResetInput(); err != nil {
		return nil, fmt.Errorf("dispatcher: reset input: %w", err)
	}
	if err := d.write(ctx, cmd, frame); err != nil {
		return nil, err
	}

	start := d.now()
	buf := make([]byte, protocol.ResponseLen)

	n, err := d.ch.ReadFull(buf, d.cfg.ResponseTimeout)
	if err != nil {
		d.metrics.Response(cmd.Opcode, "io_error", d.now().Sub(start))
		return nil, fmt.Errorf("dispatcher: %s addr=0x%02X: %w", cmd.Opcode, cmd.Address, err)
	}

	if n == 0 {
		d.metrics.Response(cmd.Opcode, "timeout", d.now().Sub(start))
		return nil, (&protocol.FrameError{
			Kind:   protocol.KindTimeout,
			Detail: fmt.Sprintf("no response within %s", d.cfg.ResponseTimeout),
		}).WithFrame(cmd.Opcode, cmd.Address)
	}

	resp, err := d.codec.DecodeAndValidate(buf[:n])
	if err != nil {
		var fe *protocol.FrameError
		if errors.As(err, &fe) {
			d.metrics.Response(cmd.Opcode, resultLabel(fe.Kind), d.now().Sub(start))
			return nil, fe.WithFrame(cmd.Opcode, cmd.Address)
		}
		return nil, err
	}

	d.metrics.Response(cmd.Opcode, "ok", d.now().Sub(start))
	if resp.Address() != cmd.Address {
		d.log.Debug("response address differs from request",
			zap.Uint8("want", cmd.Address),
			zap.Uint8("got", resp.Address()),
		)
	}
	return &resp, nil
}

func (d *Dispatcher) write(ctx context.Context, cmd protocol.Command, frame protocol.Frame) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatcher: spacing wait: %w", err)
	}
	if err := d.ch.Write(frame[:]); err != nil {
		return fmt.Errorf("dispatcher: %s addr=0x%02X: %w", cmd.Opcode, cmd.Address, err)
	}
	d.metrics.Sent(cmd.Opcode)
	d.log.Debug("frame sent",
		zap.Stringer("opcode", cmd.Opcode),
		zap.Uint8("address", cmd.Address),
		zap.Binary("frame", frame[:]),
	)
	return nil
}

func validate(cmd protocol.Command) error {
	if !cmd.Opcode.Known() {
		return &protocol.FrameError{
			Kind:    protocol.KindInvalidParameter,
			Opcode:  cmd.Opcode,
			Address: cmd.Address,
			Detail:  "unknown opcode",
		}
	}
	if cmd.Address == protocol.AddrDefault && cmd.Opcode.ExpectsResponse() {
		return &protocol.FrameError{
			Kind:    protocol.KindInvalidParameter,
			Opcode:  cmd.Opcode,
			Address: cmd.Address,
			Detail:  "factory default address cannot be polled",
		}
	}
	return nil
}

func resultLabel(k protocol.Kind) string {
	switch k {
	case protocol.KindLengthMismatch:
		return "short"
	case protocol.KindChecksumMismatch:
		return "checksum"
	case protocol.KindTimeout:
		return "timeout"
	default:
		return "invalid"
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if max > 0 && next > max {
		return max
	}
	return next
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
