// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

// Kind classifies a bus failure.
type Kind uint8

const (
	KindLengthMismatch Kind = iota + 1
	KindChecksumMismatch
	KindTimeout
	KindInvalidParameter
)

func (k Kind) String() string {
	switch k {
	case KindLengthMismatch:
		return "length mismatch"
	case KindChecksumMismatch:
		return "checksum mismatch"
	case KindTimeout:
		return "timeout"
	case KindInvalidParameter:
		return "invalid parameter"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Sentinels for errors.Is. A *FrameError matches the sentinel of its Kind.
var (
	ErrLengthMismatch   = errors.New("protocol: length mismatch")
	ErrChecksumMismatch = errors.New("protocol: checksum mismatch")
	ErrTimeout          = errors.New("protocol: timeout")
	ErrInvalidParameter = errors.New("protocol: invalid parameter")
)

// FrameError is returned by the codec and the dispatcher.
// Opcode and Address are zero when the failure is not tied to a frame.
type FrameError struct {
	Kind    Kind
	Opcode  Opcode
	Address byte
	Detail  string
}

func (e *FrameError) Error() string {
	if e.Opcode == 0 {
		return fmt.Sprintf("protocol: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("protocol: %s addr=0x%02X: %s: %s", e.Opcode, e.Address, e.Kind, e.Detail)
}

func (e *FrameError) Is(target error) bool {
	switch target {
	case ErrLengthMismatch:
		return e.Kind == KindLengthMismatch
	case ErrChecksumMismatch:
		return e.Kind == KindChecksumMismatch
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrInvalidParameter:
		return e.Kind == KindInvalidParameter
	}
	return false
}

// Code exposes the kind as a numeric status code (0x0100 | kind).
func (e *FrameError) Code() uint16 {
	return 0x0100 | uint16(e.Kind)
}

// WithFrame returns a copy of e tagged with the frame it concerns.
func (e *FrameError) WithFrame(op Opcode, addr byte) *FrameError {
	c := *e
	c.Opcode = op
	c.Address = addr
	return &c
}

func newError(k Kind, format string, args ...any) *FrameError {
	return &FrameError{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind carried by err, or 0 if err is not a *FrameError.
func KindOf(err error) Kind {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
