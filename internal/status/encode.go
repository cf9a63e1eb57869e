// internal/status/encode.go
package status

import (
	"github.com/tamzrod/bmbus/internal/registry"
)

// Encode converts a Snapshot and a module record into a full block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot, m registry.Module) []uint16 {
	regs := make([]uint16, SlotsPerModule)

	regs[SlotHealthCode] = s.Health
	regs[SlotLastErrorCode] = s.LastErrorCode
	regs[SlotSecondsInError] = s.SecondsInError

	copy(regs[TelemetryStart:], EncodeTelemetry(m))
	copy(regs[SlotNameStart:], EncodeName(m.Name))

	return regs
}

// EncodeTelemetry returns slots TelemetryStart..TelemetryEnd.
func EncodeTelemetry(m registry.Module) []uint16 {
	regs := make([]uint16, TelemetryEnd-TelemetryStart+1)
	at := func(slot int) *uint16 { return &regs[slot-TelemetryStart] }

	*at(SlotAddress) = uint16(m.Address)
	*at(SlotState) = uint16(m.State)

	sum := m.Summary.Value
	flags := uint16(sum.Status) << 8
	if m.Voltages.Stale {
		flags |= FlagVoltagesStale
	}
	if m.Summary.Stale {
		flags |= FlagSummaryStale
	}
	*at(SlotFlags) = flags

	for i, v := range m.Voltages.Value {
		*at(SlotCellStart + i) = v
	}

	*at(SlotMin) = sum.MinMV
	*at(SlotMax) = sum.MaxMV
	*at(SlotAvg) = sum.AvgMV
	*at(SlotLocations) = uint16(sum.MaxLocation&0x0F)<<4 | uint16(sum.MinLocation&0x0F)
	*at(SlotTemp1) = sum.Temp1
	*at(SlotTemp2) = sum.Temp2

	return regs
}

// EncodeName packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeName(name string) []uint16 {
	out := make([]uint16, SlotNameSlots)

	b := []byte(name)
	if len(b) > NameMaxChars {
		b = b[:NameMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < NameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
