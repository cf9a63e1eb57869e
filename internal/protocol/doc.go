// internal/protocol/doc.go

// Package protocol implements the Battery Module bus framing.
//
// Commands are 8 bytes:
//
//	[0x58][ADDR][OP][P0][P1][P2][MODE][CRC]
//
// Responses are 14 bytes with the checksum in the last byte. Multi-byte
// quantities are little-endian. Address 0xFF is broadcast and 0xFE is the
// factory default of an unaddressed module.
//
// The package does no IO. Encoding, validation and payload decoding are
// pure functions over byte slices; the checksum table lives in a Codec.
package protocol
