// internal/protocol/decode_test.go
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVoltages_Literal(t *testing.T) {
	payload := []byte{0x58, 0xAD, 0x10, 0x0C, 0x22, 0x0C, 0x01, 0x0D, 0xF0, 0x0C, 0, 0, 0}

	cells, err := DecodeVoltages(payload)
	require.NoError(t, err)
	assert.Equal(t, [4]uint16{0x0C10, 0x0C22, 0x0D01, 0x0CF0}, cells)
}

func TestDecodeVoltages_Short(t *testing.T) {
	_, err := DecodeVoltages(make([]byte, 9))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestDecodeTemperatures_Literal(t *testing.T) {
	t1, t2 := DecodeTemperatures(0xAB, 0xCD, 0xEF)
	assert.Equal(t, uint16(0xDAB), t1)
	assert.Equal(t, uint16(0xEFC), t2)
}

func TestDecodeSummary(t *testing.T) {
	payload := []byte{
		0x58, 0xAD,
		0xFF, 0x0B, // min raw 0x0BFF
		0x0F, 0x0D, // max raw 0x0D0F
		0x7F, 0x0C, // avg raw 0x0C7F
		0xA3,             // max loc 10, min loc 3
		0xAB, 0xCD, 0xEF, // temps
		0x5A, // status
	}

	s, err := DecodeSummary(payload)
	require.NoError(t, err)

	assert.Equal(t, uint16(0x0C00), s.MinMV)
	assert.Equal(t, uint16(0x0D10), s.MaxMV)
	assert.Equal(t, uint16(0x0C80), s.AvgMV)
	assert.Equal(t, uint8(3), s.MinLocation)
	assert.Equal(t, uint8(10), s.MaxLocation)
	assert.Equal(t, uint16(0xDAB), s.Temp1)
	assert.Equal(t, uint16(0xEFC), s.Temp2)
	assert.Equal(t, byte(0x5A), s.Status)
}

func TestDecodeSummary_SentinelNotWrapped(t *testing.T) {
	payload := make([]byte, 13)
	payload[2], payload[3] = 0xFF, 0xFF

	s, err := DecodeSummary(payload)
	require.NoError(t, err)
	assert.Equal(t, Sentinel, s.MinMV)
	assert.Equal(t, uint16(1), s.MaxMV)
}

func TestUnbias_TopOfRange(t *testing.T) {
	assert.Equal(t, uint16(1), unbias(0))
	assert.Equal(t, uint16(0xFFFE), unbias(0xFFFD))
	// 0xFFFE and the sentinel decode to the same value
	assert.Equal(t, Sentinel, unbias(0xFFFE))
	assert.Equal(t, Sentinel, unbias(Sentinel))
}

func TestDecodeSummary_Short(t *testing.T) {
	_, err := DecodeSummary(make([]byte, 12))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestBuilders(t *testing.T) {
	_, err := SetAddressCmd(AddrDefault)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = SetAddressCmd(AddrBroadcast)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	bt, err := BalanceTargetCmd(0x10, 3300)
	require.NoError(t, err)
	assert.Equal(t, Params{0, 0xE3, 0x0C}, bt.Params) // 3299
	assert.Equal(t, uint16(3299), bt.Params.CurrentParam())

	rt := ResetTargetCmd(0x10)
	assert.Equal(t, Params{0, 0xFF, 0x0F}, rt.Params)

	gs := GlobalSnapshotCmd(DefaultSystemCurrentMA)
	assert.True(t, gs.Broadcast())
	assert.Equal(t, DefaultSystemCurrentMA, gs.Params.CurrentParam())

	for page, op := range map[int]Opcode{1: OpSendVoltages1, 2: OpSendVoltages2, 3: OpSendVoltages3} {
		c, err := VoltagesCmd(0x10, page)
		require.NoError(t, err)
		assert.Equal(t, op, c.Opcode)
	}
	for _, page := range []int{0, 4, -1} {
		_, err := VoltagesCmd(0x10, page)
		assert.ErrorIs(t, err, ErrInvalidParameter)
	}
}

func TestOpcodeClasses(t *testing.T) {
	for _, op := range []Opcode{OpTrigger, OpSetAddress, OpAutoAddrDone, OpGlobalSnapshot, OpVendorSUSI} {
		assert.False(t, op.ExpectsResponse(), op.String())
		assert.False(t, op.IsRead(), op.String())
	}
	assert.True(t, OpBalanceTarget.ExpectsResponse())
	assert.False(t, OpBalanceTarget.IsRead())
	assert.True(t, OpSendSummary.IsRead())
	assert.False(t, Opcode(0x99).Known())
	assert.Equal(t, "OP_0x99", Opcode(0x99).String())
}
