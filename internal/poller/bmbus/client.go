// internal/poller/bmbus/client.go
package bmbus

import (
	"context"
	"errors"

	"github.com/tamzrod/bmbus/internal/protocol"
)

// Bus is the dispatcher contract this adapter needs.
type Bus interface {
	Do(ctx context.Context, cmd protocol.Command) (*protocol.Response, error)
}

// Client issues module commands on top of the command dispatcher.
// It builds commands and unpacks validated responses; no retries here.
type Client struct {
	bus Bus
}

func New(bus Bus) (*Client, error) {
	if bus == nil {
		return nil, errors.New("bmbus client: bus required")
	}
	return &Client{bus: bus}, nil
}

// ---- reads ----

// GlobalSnapshot makes every module latch its measurements.
func (c *Client) GlobalSnapshot(ctx context.Context, currentMA uint16) error {
	_, err := c.bus.Do(ctx, protocol.GlobalSnapshotCmd(currentMA))
	return err
}

func (c *Client) ReadVoltagePage(ctx context.Context, addr byte, page int) ([protocol.CellsPerPage]uint16, error) {
	cmd, err := protocol.VoltagesCmd(addr, page)
	if err != nil {
		return [protocol.CellsPerPage]uint16{}, err
	}
	resp, err := c.request(ctx, cmd)
	if err != nil {
		return [protocol.CellsPerPage]uint16{}, err
	}
	return protocol.DecodeVoltages(resp.Payload())
}

func (c *Client) ReadSummary(ctx context.Context, addr byte, currentMA uint16) (protocol.Summary, error) {
	resp, err := c.request(ctx, protocol.SummaryCmd(addr, currentMA))
	if err != nil {
		return protocol.Summary{}, err
	}
	return protocol.DecodeSummary(resp.Payload())
}

// ---- module commands ----

// Voltages is one module's cells with the outcome of each page.
type Voltages struct {
	Cells   [protocol.CellsPerModule]uint16
	PageErr [protocol.VoltagePages]error
}

// Err returns the first page failure.
func (v Voltages) Err() error {
	for _, err := range v.PageErr {
		if err != nil {
			return err
		}
	}
	return nil
}

// Page returns the cells of page (1-based).
func (v Voltages) Page(page int) [protocol.CellsPerPage]uint16 {
	var out [protocol.CellsPerPage]uint16
	copy(out[:], v.Cells[(page-1)*protocol.CellsPerPage:])
	return out
}

// ReadVoltages reads all three pages. Failed pages hold protocol.Sentinel;
// the first error is returned alongside the partial result.
func (c *Client) ReadVoltages(ctx context.Context, addr byte) (Voltages, error) {
	var v Voltages

	for page := 1; page <= protocol.VoltagePages; page++ {
		base := (page - 1) * protocol.CellsPerPage
		cells, err := c.ReadVoltagePage(ctx, addr, page)
		if err != nil {
			for j := 0; j < protocol.CellsPerPage; j++ {
				v.Cells[base+j] = protocol.Sentinel
			}
			v.PageErr[page-1] = err
			continue
		}
		copy(v.Cells[base:], cells[:])
	}
	return v, v.Err()
}

// BalanceTarget sets the balancing target of addr in mV.
// A unicast target is acknowledged by a valid response; broadcast is
// fire-and-forget and counts as acknowledged once written.
func (c *Client) BalanceTarget(ctx context.Context, addr byte, targetMV uint16) error {
	cmd, err := protocol.BalanceTargetCmd(addr, targetMV)
	if err != nil {
		return err
	}
	_, err = c.bus.Do(ctx, cmd)
	return err
}

// ResetTarget clears balancing on addr.
func (c *Client) ResetTarget(ctx context.Context, addr byte) error {
	_, err := c.bus.Do(ctx, protocol.ResetTargetCmd(addr))
	return err
}

func (c *Client) request(ctx context.Context, cmd protocol.Command) (*protocol.Response, error) {
	resp, err := c.bus.Do(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, &protocol.FrameError{
			Kind:    protocol.KindTimeout,
			Opcode:  cmd.Opcode,
			Address: cmd.Address,
			Detail:  "no response returned",
		}
	}
	return resp, nil
}
