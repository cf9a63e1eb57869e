// internal/protocol/decode.go
package protocol

import "encoding/binary"

// Summary is the decoded SEND_SUMMARY reply.
// Voltages are in the module's native unit (mV); no conversion is applied.
type Summary struct {
	MinMV uint16
	MaxMV uint16
	AvgMV uint16

	// Cell index (0..15) of the minimum and maximum.
	MinLocation uint8
	MaxLocation uint8

	Temp1 uint16
	Temp2 uint16

	// Status is passed through opaque.
	Status byte
}

// Payload offsets.
const (
	offCells       = 2
	offSummaryMin  = 2
	offSummaryMax  = 4
	offSummaryAvg  = 6
	offLocations   = 8
	offTemps       = 9
	offStatus      = 12
	voltagesMinLen = offCells + 2*CellsPerPage
	summaryMinLen  = offStatus + 1
)

// DecodeVoltages extracts four little-endian cell voltages from bytes 2..9.
func DecodeVoltages(payload []byte) ([CellsPerPage]uint16, error) {
	var out [CellsPerPage]uint16
	if len(payload) < voltagesMinLen {
		return out, newError(KindLengthMismatch, "voltage payload has %d bytes, want %d", len(payload), voltagesMinLen)
	}
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(payload[offCells+2*i:])
	}
	return out, nil
}

// DecodeSummary extracts the SEND_SUMMARY fields.
// The wire carries min/max/avg minus one; the bias is removed here.
func DecodeSummary(payload []byte) (Summary, error) {
	if len(payload) < summaryMinLen {
		return Summary{}, newError(KindLengthMismatch, "summary payload has %d bytes, want %d", len(payload), summaryMinLen)
	}

	loc := payload[offLocations]
	t1, t2 := DecodeTemperatures(payload[offTemps], payload[offTemps+1], payload[offTemps+2])

	return Summary{
		MinMV:       unbias(binary.LittleEndian.Uint16(payload[offSummaryMin:])),
		MaxMV:       unbias(binary.LittleEndian.Uint16(payload[offSummaryMax:])),
		AvgMV:       unbias(binary.LittleEndian.Uint16(payload[offSummaryAvg:])),
		MinLocation: loc & 0x0F,
		MaxLocation: loc >> 4,
		Temp1:       t1,
		Temp2:       t2,
		Status:      payload[offStatus],
	}, nil
}

// DecodeTemperatures unpacks two 12-bit values from three bytes:
// t1 is b0 plus the low nibble of b1, t2 is b2 plus the high nibble of b1.
func DecodeTemperatures(b0, b1, b2 byte) (t1, t2 uint16) {
	t1 = uint16(b1&0x0F)<<8 | uint16(b0)
	t2 = uint16(b2)<<4 | uint16(b1>>4)
	return t1, t2
}

// unbias adds the +1 wire bias. 0xFFFF stays the sentinel; 0xFFFE also
// lands on 0xFFFF.
func unbias(v uint16) uint16 {
	if v == Sentinel {
		return Sentinel
	}
	return v + 1
}

// SentinelSummary is reported when a summary could not be read.
func SentinelSummary() Summary {
	return Summary{
		MinMV:       Sentinel,
		MaxMV:       Sentinel,
		AvgMV:       Sentinel,
		MinLocation: 0x0F,
		MaxLocation: 0x0F,
		Temp1:       Sentinel,
		Temp2:       Sentinel,
		Status:      0xFF,
	}
}
