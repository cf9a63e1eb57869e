// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/bmbus/internal/protocol"
)

// ModuleResult is what one cycle read from one module.
// Fields that could not be read hold protocol.Sentinel.
type ModuleResult struct {
	Address byte

	Voltages    [protocol.CellsPerModule]uint16
	VoltagesErr error

	Summary    protocol.Summary
	SummaryErr error // nil also when summary polling is disabled
}

// Err returns the first failure of the module in this cycle.
func (m ModuleResult) Err() error {
	if m.VoltagesErr != nil {
		return m.VoltagesErr
	}
	return m.SummaryErr
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	CycleID string
	At      time.Time

	Modules []ModuleResult
	Err     error // non-nil means the cycle itself failed (snapshot broadcast)
}

// Failed counts modules with at least one failed read.
func (r PollResult) Failed() int {
	n := 0
	for _, m := range r.Modules {
		if m.Err() != nil {
			n++
		}
	}
	return n
}
