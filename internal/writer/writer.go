// internal/writer/writer.go
package writer

import (
	"errors"
	"strings"
	"sync"

	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
)

// Mirror writes every planned module block to one endpoint.
type Mirror struct {
	mu      sync.Mutex
	modules map[byte]*moduleWriter
}

func New(plan Plan, cli endpointClient) *Mirror {
	m := &Mirror{modules: make(map[byte]*moduleWriter, len(plan.Modules))}
	for _, d := range plan.Modules {
		m.modules[d.Address] = newModuleWriter(d, plan.UnitID, cli)
	}
	return m
}

// Write delivers the full state of every module known to the plan.
// Modules absent from the plan are ignored.
func (w *Mirror) Write(modules []registry.Module, snaps func(addr byte) status.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []string
	for _, m := range modules {
		mw, ok := w.modules[m.Address]
		if !ok {
			continue
		}
		if err := mw.WriteModule(snaps(m.Address), m); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

// WriteStatus delivers only the status slots of the given modules.
func (w *Mirror) WriteStatus(modules []registry.Module, snaps func(addr byte) status.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []string
	for _, m := range modules {
		mw, ok := w.modules[m.Address]
		if !ok {
			continue
		}
		if err := mw.WriteStatus(snaps(m.Address), m); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return joinErrs(errs)
}

func joinErrs(errs []string) error {
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}
	return nil
}
