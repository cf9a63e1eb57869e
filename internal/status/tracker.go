// internal/status/tracker.go
package status

import (
	"sync"

	"github.com/tamzrod/bmbus/internal/poller"
	"github.com/tamzrod/bmbus/internal/protocol"
)

// Tracker owns one Snapshot per module and derives it from poll results.
// seconds_in_error only moves on Tick.
type Tracker struct {
	mu    sync.Mutex
	snaps map[byte]*Snapshot
}

// NewTracker starts every module in HealthUnknown.
func NewTracker(addrs []byte) *Tracker {
	t := &Tracker{snaps: make(map[byte]*Snapshot, len(addrs))}
	for _, a := range addrs {
		t.snaps[a] = &Snapshot{Health: HealthUnknown}
	}
	return t
}

// Get returns the current snapshot of addr.
func (t *Tracker) Get(addr byte) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.slot(addr)
}

// Apply folds one cycle into the snapshots.
// Returns the addresses whose snapshot changed.
func (t *Tracker) Apply(res poller.PollResult) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []byte
	for _, mr := range res.Modules {
		s := t.slot(mr.Address)
		before := *s

		if err := mr.Err(); err == nil {
			// Recovery / OK
			s.Health = HealthOK
			s.LastErrorCode = 0
			s.SecondsInError = 0
		} else {
			s.Health = healthFor(err)
			s.LastErrorCode = ErrorCode(err)
		}

		if *s != before {
			changed = append(changed, mr.Address)
		}
	}
	return changed
}

// Disable marks addr as not taking part in polling.
func (t *Tracker) Disable(addr byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slot(addr).Health = HealthDisabled
}

// Tick advances seconds_in_error (1 Hz) for every module that is not OK.
// Returns the addresses whose counter moved.
func (t *Tracker) Tick() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []byte
	for a, s := range t.snaps {
		if s.Health == HealthOK || s.Health == HealthDisabled {
			continue
		}
		// HARD INVARIANT: seconds_in_error MUST NOT wrap
		if s.SecondsInError < 65535 {
			s.SecondsInError++
			changed = append(changed, a)
		}
	}
	return changed
}

func (t *Tracker) slot(addr byte) *Snapshot {
	s, ok := t.snaps[addr]
	if !ok {
		s = &Snapshot{Health: HealthUnknown}
		t.snaps[addr] = s
	}
	return s
}

// healthFor maps frame-level failures to Stale and everything else to Error.
func healthFor(err error) uint16 {
	if protocol.KindOf(err) != 0 {
		return HealthStale
	}
	return HealthError
}
