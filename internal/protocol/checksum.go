// internal/protocol/checksum.go
package protocol

import "github.com/sigurn/crc8"

// ChecksumParams describes the CRC-8 used to seal frames.
// The device firmware fixes these values; the default is plain CRC-8.
type ChecksumParams struct {
	Poly   uint8
	Init   uint8
	RefIn  bool
	RefOut bool
	XorOut uint8
}

// DefaultChecksum is CRC-8 (poly 0x07, init 0x00, no reflection, xorout 0x00).
var DefaultChecksum = ChecksumParams{
	Poly: crc8.CRC8.Poly,
}

// Codec seals and validates frames with one checksum table.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	table *crc8.Table
}

// NewCodec builds the lookup table for p.
func NewCodec(p ChecksumParams) *Codec {
	return &Codec{
		table: crc8.MakeTable(crc8.Params{
			Poly:   p.Poly,
			Init:   p.Init,
			RefIn:  p.RefIn,
			RefOut: p.RefOut,
			XorOut: p.XorOut,
			Name:   "bmbus",
		}),
	}
}

// Default is the codec built from DefaultChecksum.
var Default = NewCodec(DefaultChecksum)

// Checksum computes the checksum of data.
func (c *Codec) Checksum(data []byte) byte {
	return crc8.Checksum(data, c.table)
}
