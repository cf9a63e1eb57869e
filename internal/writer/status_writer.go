// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
)

// moduleWriter delivers one module block.
// First write and any write after a failure is a full block (identity
// re-assert); otherwise only changed status slots plus the telemetry range.
type moduleWriter struct {
	dest   ModuleDest
	unitID uint8
	cli    endpointClient

	needFull bool
	last     status.Snapshot
}

func newModuleWriter(dest ModuleDest, unitID uint8, cli endpointClient) *moduleWriter {
	return &moduleWriter{
		dest:     dest,
		unitID:   unitID,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Snapshot{Health: status.HealthUnknown},
	}
}

// WriteModule delivers s and m into the module's block.
// On any write failure, the next successful call will re-assert the full block.
func (w *moduleWriter) WriteModule(s status.Snapshot, m registry.Module) error {
	if w.cli == nil {
		return errors.New("module writer: missing client")
	}

	baseAddr := w.baseAddr()

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if w.needFull {
		if err := w.cli.WriteRegisters(w.unitID, baseAddr, status.Encode(s, m)); err != nil {
			w.needFull = true
			return fmt.Errorf("module writer 0x%02X: full block write failed: %w", w.dest.Address, err)
		}
		w.needFull = false
		w.last = s
		return nil
	}

	var errs []string

	// Slot 0: health_code
	if w.last.Health != s.Health {
		if err := w.cli.WriteRegisters(w.unitID, baseAddr+status.SlotHealthCode, []uint16{s.Health}); err != nil {
			errs = append(errs, fmt.Sprintf("slot0 health write failed: %v", err))
		} else {
			w.last.Health = s.Health
		}
	}

	// Slot 1: last_error_code
	if w.last.LastErrorCode != s.LastErrorCode {
		if err := w.cli.WriteRegisters(w.unitID, baseAddr+status.SlotLastErrorCode, []uint16{s.LastErrorCode}); err != nil {
			errs = append(errs, fmt.Sprintf("slot1 last_error write failed: %v", err))
		} else {
			w.last.LastErrorCode = s.LastErrorCode
		}
	}

	// Slot 2: seconds_in_error
	if w.last.SecondsInError != s.SecondsInError {
		if err := w.cli.WriteRegisters(w.unitID, baseAddr+status.SlotSecondsInError, []uint16{s.SecondsInError}); err != nil {
			errs = append(errs, fmt.Sprintf("slot2 seconds write failed: %v", err))
		} else {
			w.last.SecondsInError = s.SecondsInError
		}
	}

	// Slots 3..23: telemetry, always
	if err := w.cli.WriteRegisters(w.unitID, baseAddr+status.TelemetryStart, status.EncodeTelemetry(m)); err != nil {
		errs = append(errs, fmt.Sprintf("telemetry write failed: %v", err))
	}

	if len(errs) > 0 {
		// Partial failure: re-assert on next success.
		w.needFull = true
		return fmt.Errorf("module writer 0x%02X: %s", w.dest.Address, strings.Join(errs, " | "))
	}

	return nil
}

// WriteStatus delivers only the status slots (1 Hz seconds tick).
func (w *moduleWriter) WriteStatus(s status.Snapshot, m registry.Module) error {
	if w.needFull {
		return w.WriteModule(s, m)
	}
	if w.last == s {
		return nil
	}

	regs := []uint16{s.Health, s.LastErrorCode, s.SecondsInError}
	if err := w.cli.WriteRegisters(w.unitID, w.baseAddr()+status.SlotHealthCode, regs); err != nil {
		w.needFull = true
		return fmt.Errorf("module writer 0x%02X: status write failed: %w", w.dest.Address, err)
	}
	w.last = s
	return nil
}

func (w *moduleWriter) baseAddr() uint16 {
	// Each module owns a fixed SlotsPerModule block.
	return w.dest.Slot * status.SlotsPerModule
}
