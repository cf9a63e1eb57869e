// internal/writer/writer_test.go
package writer

import (
	"testing"

	cfg "github.com/tamzrod/bmbus/internal/config"
	"github.com/tamzrod/bmbus/internal/registry"
	"github.com/tamzrod/bmbus/internal/status"
)

// ---- fake endpoint client ----

type fakeEndpointClient struct {
	writes []writeCall
	fail   error
}

type writeCall struct {
	unitID uint8
	addr   uint16
	regs   []uint16
}

func (f *fakeEndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	if f.fail != nil {
		return f.fail
	}
	cp := append([]uint16(nil), regs...)
	f.writes = append(f.writes, writeCall{unitID: unitID, addr: addr, regs: cp})
	return nil
}

// ---- tests ----

func TestBuildPlan_ChainOrderSlots(t *testing.T) {
	c := &cfg.Config{
		Modules: []cfg.ModuleConfig{{Address: 0x01}, {Address: 0x02}, {Address: 0x03}},
		Mirror:  &cfg.MirrorConfig{Endpoint: "127.0.0.1:502", UnitID: 7, BaseSlot: 10},
	}

	plan, err := BuildPlan(c)
	if err != nil {
		t.Fatal(err)
	}
	if plan.UnitID != 7 || plan.Endpoint != "127.0.0.1:502" {
		t.Fatalf("unexpected plan header: %+v", plan)
	}
	for i, d := range plan.Modules {
		if d.Address != byte(i+1) || d.Slot != uint16(10+i) {
			t.Fatalf("module %d: got %+v", i, d)
		}
	}
}

func TestBuildPlan_RequiresMirror(t *testing.T) {
	if _, err := BuildPlan(&cfg.Config{}); err == nil {
		t.Fatalf("expected error without mirror")
	}
}

func TestMirror_OffsetMathPerModule(t *testing.T) {
	fake := &fakeEndpointClient{}
	plan := Plan{
		UnitID: 3,
		Modules: []ModuleDest{
			{Address: 0x01, Slot: 0},
			{Address: 0x02, Slot: 1},
		},
	}
	w := New(plan, fake)

	mods := []registry.Module{
		{Address: 0x01, Name: "A"},
		{Address: 0x02, Name: "B"},
		{Address: 0x09, Name: "unplanned"},
	}
	snaps := func(byte) status.Snapshot { return status.Snapshot{Health: status.HealthOK} }

	if err := w.Write(mods, snaps); err != nil {
		t.Fatal(err)
	}

	if len(fake.writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(fake.writes))
	}
	if fake.writes[0].addr != 0 || fake.writes[1].addr != status.SlotsPerModule {
		t.Fatalf("unexpected addresses: %d, %d", fake.writes[0].addr, fake.writes[1].addr)
	}
	for _, wr := range fake.writes {
		if wr.unitID != 3 {
			t.Fatalf("unit id: got %d", wr.unitID)
		}
	}
	if fake.writes[1].regs[status.SlotAddress] != 0x02 {
		t.Fatalf("address slot: got %d", fake.writes[1].regs[status.SlotAddress])
	}
}

func TestMirror_WriteStatusPerModule(t *testing.T) {
	fake := &fakeEndpointClient{}
	w := New(Plan{UnitID: 1, Modules: []ModuleDest{{Address: 0x01}}}, fake)
	mods := []registry.Module{{Address: 0x01}}

	ok := func(byte) status.Snapshot { return status.Snapshot{Health: status.HealthOK} }
	if err := w.Write(mods, ok); err != nil {
		t.Fatal(err)
	}
	fake.writes = nil

	failing := func(byte) status.Snapshot {
		return status.Snapshot{Health: status.HealthError, LastErrorCode: 0x0103, SecondsInError: 1}
	}
	if err := w.WriteStatus(mods, failing); err != nil {
		t.Fatal(err)
	}
	if len(fake.writes) != 1 || fake.writes[0].addr != status.SlotHealthCode {
		t.Fatalf("unexpected writes: %+v", fake.writes)
	}
}
