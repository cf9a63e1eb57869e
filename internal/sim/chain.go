// internal/sim/chain.go
package sim

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/bmbus/internal/protocol"
)

// Module is one simulated battery module.
type Module struct {
	Address   byte
	Addressed bool
	Primed    bool

	// TriggerOut feeds the enable input of the next module.
	TriggerOut bool

	Cells     [protocol.CellsPerModule]uint16
	Temp1     uint16
	Temp2     uint16
	Status    byte
	TargetMV  uint16
	Snapshots int

	// Fault injection, consumed one request at a time.
	DropNext     int // ignore this many requests
	TruncateNext int // answer this many requests with 9 bytes
	CorruptNext  int // answer this many requests with a bad checksum
}

// Chain is a daisy chain of modules behind one UART and one trigger line.
// It implements the dispatcher channel and the addressing trigger line.
type Chain struct {
	mu      sync.Mutex
	codec   *protocol.Codec
	modules []*Module
	line    bool
	rx      []byte

	// Sent records every valid command frame in order.
	Sent []protocol.Command
	// LineEdges records trigger line transitions (true = asserted).
	LineEdges []bool
	// Violations collects protocol misuse seen by the modules.
	Violations []string
}

// NewChain builds n unaddressed modules with deterministic telemetry.
func NewChain(n int, codec *protocol.Codec) *Chain {
	if codec == nil {
		codec = protocol.Default
	}
	c := &Chain{codec: codec}
	for i := 0; i < n; i++ {
		m := &Module{
			Address: protocol.AddrDefault,
			Temp1:   0x190 + uint16(i),
			Temp2:   0x1A0 + uint16(i),
		}
		for j := range m.Cells {
			m.Cells[j] = 3300 + uint16(10*i+j)
		}
		c.modules = append(c.modules, m)
	}
	return c
}

// Preaddressed builds a primed chain, as after a successful handshake.
func Preaddressed(addrs []byte, codec *protocol.Codec) *Chain {
	c := NewChain(len(addrs), codec)
	for i, a := range addrs {
		c.modules[i].Address = a
		c.modules[i].Addressed = true
		c.modules[i].Primed = true
	}
	return c
}

// Module returns the module at chain position i.
func (c *Chain) Module(i int) *Module {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modules[i]
}

// ---- trigger line ----

func (c *Chain) Assert() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.line = true
	c.LineEdges = append(c.LineEdges, true)
	return nil
}

func (c *Chain) Deassert() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.line = false
	c.LineEdges = append(c.LineEdges, false)
	return nil
}

// ---- byte channel ----

func (c *Chain) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd, err := c.codec.ParseCommand(p)
	if err != nil {
		c.Violations = append(c.Violations, fmt.Sprintf("bad frame % X: %v", p, err))
		return nil
	}
	c.Sent = append(c.Sent, cmd)
	c.handle(cmd)
	return nil
}

func (c *Chain) ReadFull(buf []byte, _ time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := copy(buf, c.rx)
	c.rx = c.rx[n:]
	return n, nil
}

func (c *Chain) ResetInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rx = nil
	return nil
}

// ---- module behaviour ----

func (c *Chain) enabled(i int) bool {
	if i == 0 {
		return c.line
	}
	return c.modules[i-1].TriggerOut
}

func (c *Chain) byAddress(addr byte) *Module {
	for _, m := range c.modules {
		if m.Addressed && m.Address == addr {
			return m
		}
	}
	return nil
}

func (c *Chain) handle(cmd protocol.Command) {
	switch cmd.Opcode {
	case protocol.OpSetAddress:
		var captured []int
		for i, m := range c.modules {
			if !m.Addressed && c.enabled(i) {
				captured = append(captured, i)
			}
		}
		if len(captured) > 1 {
			c.Violations = append(c.Violations, fmt.Sprintf("SET_ADDRESS 0x%02X captured by positions %v", cmd.Params[0], captured))
		}
		if cmd.Mode != protocol.ModePrime {
			c.Violations = append(c.Violations, fmt.Sprintf("SET_ADDRESS without prime mode (0x%02X)", cmd.Mode))
		}
		for _, i := range captured {
			c.modules[i].Address = cmd.Params[0]
			c.modules[i].Addressed = true
		}

	case protocol.OpTrigger:
		if m := c.byAddress(cmd.Address); m != nil {
			m.TriggerOut = !m.TriggerOut
		}

	case protocol.OpAutoAddrDone:
		for _, m := range c.modules {
			if m.Addressed {
				m.Primed = true
			}
		}

	case protocol.OpGlobalSnapshot:
		for _, m := range c.modules {
			if m.Primed {
				m.Snapshots++
			}
		}

	case protocol.OpSendVoltages1, protocol.OpSendVoltages2, protocol.OpSendVoltages3:
		m := c.byAddress(cmd.Address)
		if m == nil || cmd.Broadcast() {
			return
		}
		page := int(cmd.Opcode - protocol.OpSendVoltages1)
		var body [protocol.ResponseLen - 1]byte
		body[0], body[1] = protocol.Head, m.Address
		for j := 0; j < protocol.CellsPerPage; j++ {
			binary.LittleEndian.PutUint16(body[2+2*j:], m.Cells[page*protocol.CellsPerPage+j])
		}
		c.reply(m, body)

	case protocol.OpSendSummary:
		m := c.byAddress(cmd.Address)
		if m == nil || cmd.Broadcast() {
			return
		}
		c.reply(m, summaryBody(m))

	case protocol.OpBalanceTarget:
		target := cmd.Params.CurrentParam() + 1
		if cmd.Broadcast() {
			for _, m := range c.modules {
				m.TargetMV = target
			}
			return
		}
		m := c.byAddress(cmd.Address)
		if m == nil {
			return
		}
		m.TargetMV = target
		var body [protocol.ResponseLen - 1]byte
		body[0], body[1] = protocol.Head, m.Address
		c.reply(m, body)
	}
}

func (c *Chain) reply(m *Module, body [protocol.ResponseLen - 1]byte) {
	if m.DropNext > 0 {
		m.DropNext--
		return
	}
	raw := c.codec.EncodeResponse(body)
	// One fault per reply: drop, then truncate, then corrupt.
	if m.TruncateNext > 0 {
		m.TruncateNext--
		c.rx = append(c.rx, raw[:9]...)
		return
	}
	if m.CorruptNext > 0 {
		m.CorruptNext--
		raw[4] ^= 0x01
	}
	c.rx = append(c.rx, raw[:]...)
}

func summaryBody(m *Module) [protocol.ResponseLen - 1]byte {
	minV, maxV := m.Cells[0], m.Cells[0]
	var minLoc, maxLoc int
	var sum uint32
	for j, v := range m.Cells {
		if v < minV {
			minV, minLoc = v, j
		}
		if v > maxV {
			maxV, maxLoc = v, j
		}
		sum += uint32(v)
	}
	avg := uint16(sum / uint32(len(m.Cells)))

	var body [protocol.ResponseLen - 1]byte
	body[0], body[1] = protocol.Head, m.Address
	binary.LittleEndian.PutUint16(body[2:], minV-1)
	binary.LittleEndian.PutUint16(body[4:], maxV-1)
	binary.LittleEndian.PutUint16(body[6:], avg-1)
	body[8] = byte(maxLoc)<<4 | byte(minLoc)&0x0F
	body[9] = byte(m.Temp1)
	body[10] = byte(m.Temp1>>8)&0x0F | byte(m.Temp2&0x0F)<<4
	body[11] = byte(m.Temp2 >> 4)
	body[12] = m.Status
	return body
}
