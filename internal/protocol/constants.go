// internal/protocol/constants.go
package protocol

import "fmt"

// ---- FRAME GEOMETRY ----

const (
	// Head is the first byte of every command frame.
	Head byte = 0x58

	// CommandLen is the fixed length of a master -> module frame.
	CommandLen = 8

	// ResponseLen is the fixed length of a module -> master frame.
	ResponseLen = 14

	// ParamLen is the number of opcode-dependent parameter bytes.
	ParamLen = 3
)

// Byte offsets inside a command frame.
const (
	offHead     = 0
	offAddress  = 1
	offOpcode   = 2
	offParams   = 3
	offMode     = 6
	offChecksum = 7
)

// ---- ADDRESSES ----

const (
	// AddrBroadcast is received by every module on the bus.
	AddrBroadcast byte = 0xFF

	// AddrDefault is the factory address of a module that has not been addressed.
	AddrDefault byte = 0xFE
)

// IsReserved reports whether addr can never be assigned to a module.
func IsReserved(addr byte) bool {
	return addr == AddrBroadcast || addr == AddrDefault
}

// ---- MODES ----

// ModePrime is carried by SET_ADDRESS; the module arms itself for
// the AUTOADDR_DONE broadcast that closes the handshake.
const ModePrime byte = 0x02

// ---- OPCODES ----

// Opcode identifies the command carried by a frame.
type Opcode byte

const (
	OpTrigger        Opcode = 0x32
	OpSetAddress     Opcode = 0x3C
	OpAutoAddrDone   Opcode = 0x41
	OpGlobalSnapshot Opcode = 0x46
	OpSendSummary    Opcode = 0x50
	OpSendVoltages1  Opcode = 0xA0
	OpSendVoltages2  Opcode = 0xA1
	OpSendVoltages3  Opcode = 0xA2
	OpBalanceTarget  Opcode = 0xAA
	OpVendorSUSI     Opcode = 0xFB
)

// VoltagePages is the number of SEND_VOLTAGES pages per module.
const VoltagePages = 3

// CellsPerPage is the number of cell voltages carried by one page.
const CellsPerPage = 4

// CellsPerModule is the number of cells a module reports.
const CellsPerModule = VoltagePages * CellsPerPage

// Sentinel marks a reading that could not be obtained.
const Sentinel uint16 = 0xFFFF

// ResetTargetMV is the balance target that clears balancing on a module.
const ResetTargetMV uint16 = 4096

// DefaultSystemCurrentMA is the pack current sent with snapshot and summary
// requests when nothing better is known.
const DefaultSystemCurrentMA uint16 = 285

// Known reports whether the opcode is part of the command set.
func (o Opcode) Known() bool {
	switch o {
	case OpTrigger, OpSetAddress, OpAutoAddrDone, OpGlobalSnapshot,
		OpSendSummary, OpSendVoltages1, OpSendVoltages2, OpSendVoltages3,
		OpBalanceTarget, OpVendorSUSI:
		return true
	}
	return false
}

// ExpectsResponse reports whether a unicast frame with this opcode is
// answered by a 14-byte response. Broadcast frames are never answered.
func (o Opcode) ExpectsResponse() bool {
	switch o {
	case OpSendSummary, OpSendVoltages1, OpSendVoltages2, OpSendVoltages3, OpBalanceTarget:
		return true
	}
	return false
}

// IsRead reports whether the opcode only fetches telemetry and is safe
// to repeat.
func (o Opcode) IsRead() bool {
	switch o {
	case OpSendSummary, OpSendVoltages1, OpSendVoltages2, OpSendVoltages3:
		return true
	}
	return false
}

// VoltagePageOpcode maps page 1..3 to its opcode.
func VoltagePageOpcode(page int) (Opcode, error) {
	if page < 1 || page > VoltagePages {
		return 0, newError(KindInvalidParameter, "voltage page %d out of range 1..%d", page, VoltagePages)
	}
	return OpSendVoltages1 + Opcode(page-1), nil
}

func (o Opcode) String() string {
	switch o {
	case OpTrigger:
		return "TRIGGER"
	case OpSetAddress:
		return "SET_ADDRESS"
	case OpAutoAddrDone:
		return "AUTOADDR_DONE"
	case OpGlobalSnapshot:
		return "GLOBAL_SNAPSHOT"
	case OpSendSummary:
		return "SEND_SUMMARY"
	case OpSendVoltages1:
		return "SEND_VOLTAGES_1"
	case OpSendVoltages2:
		return "SEND_VOLTAGES_2"
	case OpSendVoltages3:
		return "SEND_VOLTAGES_3"
	case OpBalanceTarget:
		return "BALANCE_TARGET"
	case OpVendorSUSI:
		return "SUSI"
	default:
		return fmt.Sprintf("OP_0x%02X", byte(o))
	}
}
