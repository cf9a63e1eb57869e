// internal/protocol/commands.go
package protocol

// Command builders. Each returns the Command value; sealing into a Frame
// is the codec's job.

// SetAddressCmd is broadcast during addressing. Only the module whose
// trigger input is asserted captures newAddr.
func SetAddressCmd(newAddr byte) (Command, error) {
	if IsReserved(newAddr) {
		return Command{}, newError(KindInvalidParameter, "address 0x%02X is reserved", newAddr)
	}
	return Command{
		Address: AddrBroadcast,
		Opcode:  OpSetAddress,
		Params:  Params{newAddr, 0, 0},
		Mode:    ModePrime,
	}, nil
}

// TriggerCmd toggles the trigger output of the module at addr.
func TriggerCmd(addr byte) Command {
	return Command{Address: addr, Opcode: OpTrigger}
}

// AutoAddrDoneCmd closes the addressing handshake.
func AutoAddrDoneCmd() Command {
	return Command{Address: AddrBroadcast, Opcode: OpAutoAddrDone}
}

// GlobalSnapshotCmd makes every module latch its measurements at once.
func GlobalSnapshotCmd(currentMA uint16) Command {
	return Command{
		Address: AddrBroadcast,
		Opcode:  OpGlobalSnapshot,
		Params:  Params{0, byte(currentMA), byte(currentMA >> 8)},
	}
}

// SummaryCmd requests min/max/avg, locations and temperatures.
func SummaryCmd(addr byte, currentMA uint16) Command {
	return Command{
		Address: addr,
		Opcode:  OpSendSummary,
		Params:  Params{0, byte(currentMA), byte(currentMA >> 8)},
	}
}

// VoltagesCmd requests one page (1..3) of four cell voltages.
func VoltagesCmd(addr byte, page int) (Command, error) {
	op, err := VoltagePageOpcode(page)
	if err != nil {
		return Command{}, err
	}
	return Command{Address: addr, Opcode: op}, nil
}

// BalanceTargetCmd sets the balancing target in mV.
// The wire value is target-1.
func BalanceTargetCmd(addr byte, targetMV uint16) (Command, error) {
	if targetMV == 0 {
		return Command{}, newError(KindInvalidParameter, "balance target must be > 0")
	}
	v := targetMV - 1
	return Command{
		Address: addr,
		Opcode:  OpBalanceTarget,
		Params:  Params{0, byte(v), byte(v >> 8)},
	}, nil
}

// ResetTargetCmd clears the balancing target.
func ResetTargetCmd(addr byte) Command {
	cmd, _ := BalanceTargetCmd(addr, ResetTargetMV)
	return cmd
}

// CurrentParam reads back the little-endian current carried in params 1..2.
func (p Params) CurrentParam() uint16 {
	return uint16(p[1]) | uint16(p[2])<<8
}
