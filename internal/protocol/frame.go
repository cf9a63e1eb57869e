// internal/protocol/frame.go
package protocol

// Frame is an encoded master -> module command.
//
//	[HEAD][ADDR][OP][P0][P1][P2][MODE][CRC]
//
// The checksum covers bytes 0..6.
type Frame [CommandLen]byte

// Params are the three opcode-dependent bytes at offsets 3..5.
type Params [ParamLen]byte

// Command is the decoded form of a Frame.
// Mode is zero for every opcode except SET_ADDRESS.
type Command struct {
	Address byte
	Opcode  Opcode
	Params  Params
	Mode    byte
}

// Broadcast reports whether the command is addressed to every module.
func (c Command) Broadcast() bool {
	return c.Address == AddrBroadcast
}

// Encode builds a frame for (addr, op, params) with a zero mode byte.
func (c *Codec) Encode(addr byte, op Opcode, params Params) Frame {
	return c.EncodeCommand(Command{Address: addr, Opcode: op, Params: params})
}

// EncodeCommand builds the frame for cmd.
// The checksum is always recomputed.
func (c *Codec) EncodeCommand(cmd Command) Frame {
	var f Frame
	f[offHead] = Head
	f[offAddress] = cmd.Address
	f[offOpcode] = byte(cmd.Opcode)
	copy(f[offParams:offParams+ParamLen], cmd.Params[:])
	f[offMode] = cmd.Mode
	f[offChecksum] = c.Checksum(f[:offChecksum])
	return f
}

// ParseCommand validates and decodes a command frame.
// Used on the module side of the bus (simulation, captures).
func (c *Codec) ParseCommand(raw []byte) (Command, error) {
	if len(raw) != CommandLen {
		return Command{}, newError(KindLengthMismatch, "command frame has %d bytes, want %d", len(raw), CommandLen)
	}
	if raw[offHead] != Head {
		return Command{}, newError(KindInvalidParameter, "bad head 0x%02X", raw[offHead])
	}
	if want := c.Checksum(raw[:offChecksum]); raw[offChecksum] != want {
		return Command{}, newError(KindChecksumMismatch, "got 0x%02X, computed 0x%02X", raw[offChecksum], want)
	}

	var cmd Command
	cmd.Address = raw[offAddress]
	cmd.Opcode = Opcode(raw[offOpcode])
	copy(cmd.Params[:], raw[offParams:offParams+ParamLen])
	cmd.Mode = raw[offMode]
	return cmd, nil
}

// ---- RESPONSES ----

// Response is a validated 14-byte module reply.
type Response struct {
	Raw [ResponseLen]byte
}

// Head returns byte 0 as sent by the module.
func (r Response) Head() byte { return r.Raw[0] }

// Address returns byte 1 as sent by the module.
func (r Response) Address() byte { return r.Raw[1] }

// Payload returns bytes 0..12 (everything except the checksum).
// Decoder offsets are relative to the start of this slice.
func (r Response) Payload() []byte { return r.Raw[:ResponseLen-1] }

// DecodeAndValidate checks length and checksum of a response.
// A failed frame is never partially decoded.
func (c *Codec) DecodeAndValidate(raw []byte) (Response, error) {
	if len(raw) < ResponseLen {
		return Response{}, newError(KindLengthMismatch, "response has %d bytes, want %d", len(raw), ResponseLen)
	}
	raw = raw[:ResponseLen]

	got := raw[ResponseLen-1]
	if want := c.Checksum(raw[:ResponseLen-1]); got != want {
		return Response{}, newError(KindChecksumMismatch, "got 0x%02X, computed 0x%02X", got, want)
	}

	var r Response
	copy(r.Raw[:], raw)
	return r, nil
}

// EncodeResponse seals a 13-byte body into a response frame.
func (c *Codec) EncodeResponse(body [ResponseLen - 1]byte) [ResponseLen]byte {
	var out [ResponseLen]byte
	copy(out[:], body[:])
	out[ResponseLen-1] = c.Checksum(body[:])
	return out
}

// ---- PACKAGE-LEVEL HELPERS (default checksum) ----

// Encode builds a frame with the default codec.
func Encode(addr byte, op Opcode, params Params) Frame {
	return Default.Encode(addr, op, params)
}

// DecodeAndValidate validates a response with the default codec.
func DecodeAndValidate(raw []byte) (Response, error) {
	return Default.DecodeAndValidate(raw)
}
