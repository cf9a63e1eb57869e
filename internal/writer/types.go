// internal/writer/types.go
package writer

// ModuleDest places one module's block on the mirror endpoint.
type ModuleDest struct {
	Address byte
	Slot    uint16 // block index; register address = Slot * SlotsPerModule
}

// Plan is the fully-built mirror plan.
type Plan struct {
	Endpoint string
	UnitID   uint8
	Modules  []ModuleDest
}

// endpointClient is the exact contract the writer uses.
type endpointClient interface {
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}
