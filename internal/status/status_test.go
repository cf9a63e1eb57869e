// internal/status/status_test.go
package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tamzrod/bmbus/internal/poller"
	"github.com/tamzrod/bmbus/internal/protocol"
	"github.com/tamzrod/bmbus/internal/registry"
)

func TestEncode_Layout(t *testing.T) {
	m := registry.Module{Address: 0xAD, Name: "BM-01", State: registry.StatePrimed}
	for i := range m.Voltages.Value {
		m.Voltages.Value[i] = uint16(3300 + i)
	}
	m.Voltages.Stale = true
	m.Summary.Value = protocol.Summary{
		MinMV: 3300, MaxMV: 3311, AvgMV: 3305,
		MinLocation: 0, MaxLocation: 11,
		Temp1: 0xDAB, Temp2: 0xEFC, Status: 0x5A,
	}

	regs := Encode(Snapshot{Health: HealthStale, LastErrorCode: 0x0103, SecondsInError: 9}, m)

	if len(regs) != SlotsPerModule {
		t.Fatalf("block size: got=%d want=%d", len(regs), SlotsPerModule)
	}

	checks := map[int]uint16{
		SlotHealthCode:     HealthStale,
		SlotLastErrorCode:  0x0103,
		SlotSecondsInError: 9,
		SlotAddress:        0xAD,
		SlotState:          uint16(registry.StatePrimed),
		SlotFlags:          0x5A00 | FlagVoltagesStale,
		SlotCellStart:      3300,
		SlotCellStart + 11: 3311,
		SlotMin:            3300,
		SlotMax:            3311,
		SlotAvg:            3305,
		SlotLocations:      0xB0,
		SlotTemp1:          0xDAB,
		SlotTemp2:          0xEFC,
		SlotNameStart:      uint16('B')<<8 | uint16('M'),
		SlotNameStart + 2:  uint16('1') << 8,
		SlotNameEnd:        0,
	}
	for slot, want := range checks {
		if regs[slot] != want {
			t.Fatalf("slot %d: got=0x%04X want=0x%04X", slot, regs[slot], want)
		}
	}
}

func TestEncodeName_SanitizeAndTruncate(t *testing.T) {
	regs := EncodeName("A\x01CDEFGHIJKLMNOPQRS")
	if regs[0] != uint16('A')<<8|uint16('?') {
		t.Fatalf("sanitize failed: 0x%04X", regs[0])
	}
	if regs[7] != uint16('O')<<8|uint16('P') {
		t.Fatalf("truncate failed: 0x%04X", regs[7])
	}
}

func TestTracker_ApplyAndRecover(t *testing.T) {
	tr := NewTracker([]byte{0x10, 0x11})

	timeout := &protocol.FrameError{Kind: protocol.KindTimeout}
	res := poller.PollResult{Modules: []poller.ModuleResult{
		{Address: 0x10},
		{Address: 0x11, VoltagesErr: timeout},
	}}

	changed := tr.Apply(res)
	if len(changed) != 2 {
		t.Fatalf("expected both modules changed, got %v", changed)
	}
	if s := tr.Get(0x10); s.Health != HealthOK {
		t.Fatalf("0x10 health=%d", s.Health)
	}
	s := tr.Get(0x11)
	if s.Health != HealthStale || s.LastErrorCode != timeout.Code() {
		t.Fatalf("0x11 snapshot %+v", s)
	}

	// same result again: nothing changes
	if changed := tr.Apply(res); len(changed) != 0 {
		t.Fatalf("expected no change, got %v", changed)
	}

	// seconds tick only for the failing module
	if moved := tr.Tick(); len(moved) != 1 || moved[0] != 0x11 {
		t.Fatalf("tick moved %v", moved)
	}
	tr.Tick()
	if s := tr.Get(0x11); s.SecondsInError != 2 {
		t.Fatalf("seconds_in_error=%d", s.SecondsInError)
	}

	// recovery resets everything
	tr.Apply(poller.PollResult{Modules: []poller.ModuleResult{{Address: 0x11}}})
	if s := tr.Get(0x11); s != (Snapshot{Health: HealthOK}) {
		t.Fatalf("not reset on recovery: %+v", s)
	}
}

func TestTracker_TransportErrorAndSaturation(t *testing.T) {
	tr := NewTracker([]byte{0x10})
	tr.Apply(poller.PollResult{Modules: []poller.ModuleResult{
		{Address: 0x10, SummaryErr: errors.New("port closed")},
	}})

	s := tr.Get(0x10)
	if s.Health != HealthError || s.LastErrorCode != 1 {
		t.Fatalf("snapshot %+v", s)
	}

	tr.snaps[0x10].SecondsInError = 65535
	if moved := tr.Tick(); len(moved) != 0 {
		t.Fatalf("seconds_in_error wrapped")
	}
}

func TestTracker_Disabled(t *testing.T) {
	tr := NewTracker([]byte{0x10})
	tr.Disable(0x10)
	if moved := tr.Tick(); len(moved) != 0 {
		t.Fatalf("disabled module ticked")
	}
}

func TestErrorCode(t *testing.T) {
	fe := &protocol.FrameError{Kind: protocol.KindChecksumMismatch}
	if got := ErrorCode(fmt.Errorf("wrapped: %w", fe)); got != fe.Code() {
		t.Fatalf("got=0x%04X", got)
	}
	if ErrorCode(nil) != 0 {
		t.Fatalf("nil must be 0")
	}
}
