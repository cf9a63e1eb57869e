// internal/registry/registry.go
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/tamzrod/bmbus/internal/protocol"
)

// State is the lifecycle state of a module on the bus.
type State uint8

const (
	StatePowered State = iota
	StateAddressed
	StatePrimed
)

func (s State) String() string {
	switch s {
	case StatePowered:
		return "powered"
	case StateAddressed:
		return "addressed"
	case StatePrimed:
		return "primed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Reading is a last-known-good value plus its staleness.
// Stale is set when the latest read failed; Value keeps the previous data.
type Reading[T any] struct {
	Value     T
	Valid     bool // at least one successful read
	Stale     bool
	UpdatedAt time.Time
	Err       error
}

// Module is one battery module keyed by its bus address.
type Module struct {
	Address  byte
	Name     string
	Position int // physical chain position, -1 if unknown
	State    State

	Voltages Reading[[protocol.CellsPerModule]uint16]
	Summary  Reading[protocol.Summary]
}

// Registry owns every Module record.
// Readers get copies; only the registry mutates.
type Registry struct {
	mu      sync.RWMutex
	order   []byte
	modules map[byte]*Module
	now     func() time.Time
}

func New() *Registry {
	return &Registry{
		modules: make(map[byte]*Module),
		now:     time.Now,
	}
}

// Register creates (or re-states) the record for addr.
// Registration order is kept as chain order.
func (r *Registry) Register(addr byte, name string, position int, state State) error {
	if protocol.IsReserved(addr) {
		return fmt.Errorf("registry: address 0x%02X is reserved", addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.modules[addr]; ok {
		m.State = state
		if name != "" {
			m.Name = name
		}
		if position >= 0 {
			m.Position = position
		}
		return nil
	}

	m := &Module{Address: addr, Name: name, Position: position, State: state}
	for i := range m.Voltages.Value {
		m.Voltages.Value[i] = protocol.Sentinel
	}
	m.Summary.Value = protocol.SentinelSummary()

	r.modules[addr] = m
	r.order = append(r.order, addr)
	return nil
}

// SetState moves a registered module to s.
func (r *Registry) SetState(addr byte, s State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}
	m.State = s
	return nil
}

// Get returns a copy of the module record.
func (r *Registry) Get(addr byte) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[addr]
	if !ok {
		return Module{}, false
	}
	return *m, true
}

// Addresses returns addresses in registration order.
func (r *Registry) Addresses() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]byte, len(r.order))
	copy(out, r.order)
	return out
}

// Modules returns copies of every record in registration order.
func (r *Registry) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, *r.modules[a])
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ---- telemetry updates ----

// UpdateVoltagePage stores one successful page (1..3).
// Stale is cleared only when the whole set is fresh again, see CommitVoltages.
func (r *Registry) UpdateVoltagePage(addr byte, page int, cells [protocol.CellsPerPage]uint16) error {
	if page < 1 || page > protocol.VoltagePages {
		return fmt.Errorf("registry: voltage page %d out of range", page)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}

	copy(m.Voltages.Value[(page-1)*protocol.CellsPerPage:], cells[:])
	return nil
}

// CommitVoltages closes a voltage read. err == nil marks the set fresh;
// otherwise the set is stale and keeps whatever pages did succeed.
func (r *Registry) CommitVoltages(addr byte, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}
	commit(&m.Voltages, err, r.now())
	return nil
}

// UpdateSummary stores a successful summary and clears its stale flag.
func (r *Registry) UpdateSummary(addr byte, s protocol.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}
	m.Summary.Value = s
	commit(&m.Summary, nil, r.now())
	return nil
}

// MarkSummaryStale flags the summary as stale, keeping the last value.
func (r *Registry) MarkSummaryStale(addr byte, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}
	commit(&m.Summary, err, r.now())
	return nil
}

// MarkStale flags every reading of addr as stale after a failure that hit
// the whole module. Last-known-good values are kept.
func (r *Registry) MarkStale(addr byte, err error) error {
	if err == nil {
		return fmt.Errorf("registry: MarkStale 0x%02X needs a cause", addr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.modules[addr]
	if !ok {
		return fmt.Errorf("registry: module 0x%02X not registered", addr)
	}
	now := r.now()
	commit(&m.Voltages, err, now)
	commit(&m.Summary, err, now)
	return nil
}

func commit[T any](rd *Reading[T], err error, at time.Time) {
	if err != nil {
		rd.Stale = true
		rd.Err = err
		return
	}
	rd.Valid = true
	rd.Stale = false
	rd.Err = nil
	rd.UpdatedAt = at
}
