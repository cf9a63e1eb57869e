// internal/addressing/fsm.go
package addressing

import (
	"fmt"

	"github.com/tamzrod/bmbus/internal/registry"
)

// Event drives a chain position through the handshake.
type Event uint8

const (
	// EventEnable: the position's trigger input went active.
	EventEnable Event = iota + 1
	// EventAssign: SET_ADDRESS captured while enabled.
	EventAssign
	// EventChainNext: TRIGGER to this position enabled the next one.
	EventChainNext
	// EventRelease: the trigger input went inactive again.
	EventRelease
	// EventPrime: AUTOADDR_DONE received.
	EventPrime
)

func (e Event) String() string {
	switch e {
	case EventEnable:
		return "enable"
	case EventAssign:
		return "assign"
	case EventChainNext:
		return "chain-next"
	case EventRelease:
		return "release"
	case EventPrime:
		return "prime"
	default:
		return fmt.Sprintf("event(%d)", uint8(e))
	}
}

// Position is one module slot on the physical chain, tracked only while
// addressing runs.
type Position struct {
	Index   int
	Address byte
	State   registry.State

	// Enabled mirrors the trigger input of this position.
	Enabled bool
	// Chained is set once this position has enabled its successor.
	Chained bool
}

// Apply performs one transition or reports why it is illegal.
func (p *Position) Apply(e Event) error {
	switch e {
	case EventEnable:
		if p.State == registry.StatePowered && !p.Enabled {
			p.Enabled = true
			return nil
		}
	case EventAssign:
		if p.State == registry.StatePowered && p.Enabled {
			p.State = registry.StateAddressed
			return nil
		}
	case EventChainNext:
		if p.State == registry.StateAddressed && !p.Chained {
			p.Chained = true
			return nil
		}
	case EventRelease:
		if p.State == registry.StateAddressed && p.Enabled {
			p.Enabled = false
			return nil
		}
	case EventPrime:
		if p.State == registry.StateAddressed && !p.Enabled {
			p.State = registry.StatePrimed
			return nil
		}
	}
	return fmt.Errorf(
		"addressing: position %d (0x%02X): illegal %s in state %s (enabled=%t)",
		p.Index, p.Address, e, p.State, p.Enabled,
	)
}
