// internal/addressing/coordinator_test.go
package addressing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/bmbus/internal/dispatcher"
	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/sim"
)

// ---- recording fakes ----

// event is either a bus command or a trigger line edge, in call order.
type event struct {
	cmd  *protocol.Command
	line string // "assert" | "deassert"
}

type recorder struct {
	events  []event
	failOn  protocol.Opcode
	lineErr error
}

func (r *recorder) Do(_ context.Context, cmd protocol.Command) (*protocol.Response, error) {
	c := cmd
	r.events = append(r.events, event{cmd: &c})
	if r.failOn != 0 && cmd.Opcode == r.failOn {
		return nil, errors.New("bus down")
	}
	return nil, nil
}

func (r *recorder) Assert() error {
	r.events = append(r.events, event{line: "assert"})
	return r.lineErr
}

func (r *recorder) Deassert() error {
	r.events = append(r.events, event{line: "deassert"})
	return nil
}

func (r *recorder) count(op protocol.Opcode) int {
	n := 0
	for _, e := range r.events {
		if e.cmd != nil && e.cmd.Opcode == op {
			n++
		}
	}
	return n
}

func noSleep(c *Coordinator) { c.sleep = func(context.Context, time.Duration) error { return nil } }

func targets(addrs ...byte) []Target {
	out := make([]Target, len(addrs))
	for i, a := range addrs {
		out[i] = Target{Address: a}
	}
	return out
}

// ---- tests ----

func TestAssign_ThreeModuleSequence(t *testing.T) {
	rec := &recorder{}
	reg := registry.New()

	c, err := New(rec, rec, reg, Config{}, noSleep)
	require.NoError(t, err)

	pos, err := c.Assign(context.Background(), targets(0xA0, 0xA1, 0xA2))
	require.NoError(t, err)

	assert.Equal(t, 3, rec.count(protocol.OpSetAddress))
	assert.Equal(t, 5, rec.count(protocol.OpTrigger))
	assert.Equal(t, 1, rec.count(protocol.OpAutoAddrDone))

	// exact order
	type step struct {
		line string
		op   protocol.Opcode
		addr byte
	}
	want := []step{
		{line: "assert"},
		{op: protocol.OpSetAddress, addr: protocol.AddrBroadcast},
		{op: protocol.OpTrigger, addr: 0xA0},
		{line: "deassert"},
		{op: protocol.OpSetAddress, addr: protocol.AddrBroadcast},
		{op: protocol.OpTrigger, addr: 0xA1},
		{op: protocol.OpTrigger, addr: 0xA0},
		{op: protocol.OpSetAddress, addr: protocol.AddrBroadcast},
		{op: protocol.OpTrigger, addr: 0xA2},
		{op: protocol.OpTrigger, addr: 0xA1},
		{op: protocol.OpAutoAddrDone, addr: protocol.AddrBroadcast},
	}
	require.Len(t, rec.events, len(want))
	for i, w := range want {
		e := rec.events[i]
		if w.line != "" {
			assert.Equal(t, w.line, e.line, "step %d", i)
			continue
		}
		require.NotNil(t, e.cmd, "step %d", i)
		assert.Equal(t, w.op, e.cmd.Opcode, "step %d", i)
		assert.Equal(t, w.addr, e.cmd.Address, "step %d", i)
	}

	// set-address payloads carry the new address
	assert.Equal(t, byte(0xA1), rec.events[4].cmd.Params[0])

	for i, p := range pos {
		assert.Equal(t, registry.StatePrimed, p.State, "position %d", i)
		assert.False(t, p.Enabled)
	}
	assert.Equal(t, []byte{0xA0, 0xA1, 0xA2}, reg.Addresses())
	m, _ := reg.Get(0xA2)
	assert.Equal(t, registry.StatePrimed, m.State)
	assert.Equal(t, 2, m.Position)
}

func TestAssign_SingleModule(t *testing.T) {
	rec := &recorder{}
	c, err := New(rec, rec, registry.New(), Config{}, noSleep)
	require.NoError(t, err)

	_, err = c.Assign(context.Background(), targets(0x01))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(protocol.OpTrigger))
}

func TestAssign_InvalidTargets(t *testing.T) {
	rec := &recorder{}
	c, err := New(rec, rec, registry.New(), Config{}, noSleep)
	require.NoError(t, err)

	for name, tg := range map[string][]Target{
		"empty":     nil,
		"broadcast": targets(0x01, 0xFF),
		"default":   targets(0xFE),
		"duplicate": targets(0x01, 0x02, 0x01),
	} {
		_, err := c.Assign(context.Background(), tg)
		assert.ErrorIs(t, err, protocol.ErrInvalidParameter, name)
	}
	assert.Empty(t, rec.events, "nothing sent for invalid input")
}

func TestAssign_LineReleasedOnFailure(t *testing.T) {
	rec := &recorder{failOn: protocol.OpSetAddress}
	c, err := New(rec, rec, registry.New(), Config{}, noSleep)
	require.NoError(t, err)

	_, err = c.Assign(context.Background(), targets(0x01, 0x02))
	require.Error(t, err)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "deassert", last.line)
}

func TestAssign_CancelledContext(t *testing.T) {
	rec := &recorder{}
	c, err := New(rec, rec, registry.New(), Config{Settle: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Assign(ctx, targets(0x01))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "deassert", rec.events[len(rec.events)-1].line)
}

func TestPosition_IllegalTransitions(t *testing.T) {
	p := Position{State: registry.StatePowered}
	assert.Error(t, p.Apply(EventAssign), "assign before enable")
	assert.Error(t, p.Apply(EventPrime))
	require.NoError(t, p.Apply(EventEnable))
	assert.Error(t, p.Apply(EventEnable))
	require.NoError(t, p.Apply(EventAssign))
	assert.Error(t, p.Apply(EventPrime), "prime while still enabled")
	require.NoError(t, p.Apply(EventChainNext))
	assert.Error(t, p.Apply(EventChainNext))
	require.NoError(t, p.Apply(EventRelease))
	require.NoError(t, p.Apply(EventPrime))
	assert.Equal(t, registry.StatePrimed, p.State)
}

// End to end against the simulated chain through a real dispatcher.
func TestAssign_SimulatedChain(t *testing.T) {
	chain := sim.NewChain(4, nil)
	d, err := dispatcher.New(chain, dispatcher.Config{ResponseTimeout: time.Millisecond})
	require.NoError(t, err)

	reg := registry.New()
	c, err := New(d, chain, reg, Config{}, noSleep)
	require.NoError(t, err)

	addrs := []byte{0x10, 0x11, 0x12, 0x13}
	_, err = c.Assign(context.Background(), targets(addrs...))
	require.NoError(t, err)

	assert.Empty(t, chain.Violations)
	for i, a := range addrs {
		m := chain.Module(i)
		assert.Equal(t, a, m.Address, "position %d", i)
		assert.True(t, m.Primed, "position %d", i)
	}
	assert.Equal(t, []bool{true, false}, chain.LineEdges)
	assert.False(t, chain.Module(0).TriggerOut)
	assert.False(t, chain.Module(2).TriggerOut)
}
