// internal/transport/serial.go
package transport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goburrow/serial"
)

// SerialConfig is the UART setup for the module bus.
type SerialConfig struct {
	Port     string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string

	// ReadPoll bounds one blocking Read on the port. ReadFull loops over
	// polls until its own deadline.
	ReadPoll time.Duration
}

// maxDrainPolls bounds ResetInput on a bus that never goes quiet.
const maxDrainPolls = 64

// SerialChannel is a blocking byte channel over a UART.
// It is owned by exactly one dispatcher and is not safe for concurrent use.
type SerialChannel struct {
	port io.ReadWriteCloser
	poll time.Duration
	now  func() time.Time

	// dirty is set when stray bytes may be waiting: at open and after a
	// short or failed read. A drain on a clean channel costs a full poll.
	dirty bool
}

// OpenSerial opens the UART described by cfg.
func OpenSerial(cfg SerialConfig) (*SerialChannel, error) {
	if cfg.Port == "" {
		return nil, errors.New("transport: serial port required")
	}
	if cfg.ReadPoll <= 0 {
		cfg.ReadPoll = 10 * time.Millisecond
	}

	p, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.ReadPoll,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}

	return newSerialChannel(p, cfg.ReadPoll), nil
}

func newSerialChannel(port io.ReadWriteCloser, poll time.Duration) *SerialChannel {
	return &SerialChannel{port: port, poll: poll, now: time.Now, dirty: true}
}

// Write sends p in full.
func (c *SerialChannel) Write(p []byte) error {
	for len(p) > 0 {
		n, err := c.port.Write(p)
		if err != nil {
			return fmt.Errorf("transport: write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// ReadFull reads until buf is full or timeout elapses.
// It returns the number of bytes read; running out of time is not an
// error, the caller classifies short reads.
func (c *SerialChannel) ReadFull(buf []byte, timeout time.Duration) (int, error) {
	deadline := c.now().Add(timeout)
	n := 0

	for n < len(buf) {
		m, err := c.port.Read(buf[n:])
		n += m

		if err != nil && !isTimeout(err) {
			c.dirty = true
			return n, fmt.Errorf("transport: read: %w", err)
		}
		if n < len(buf) && !c.now().Before(deadline) {
			break
		}
	}

	if n < len(buf) {
		// a late reply may still land
		c.dirty = true
	}
	return n, nil
}

// ResetInput discards whatever is waiting in the receive buffer.
// After a complete response nothing is pending and the drain is skipped.
func (c *SerialChannel) ResetInput() error {
	if !c.dirty {
		return nil
	}

	var scratch [64]byte

	for i := 0; i < maxDrainPolls; i++ {
		n, err := c.port.Read(scratch[:])
		if err != nil {
			if isTimeout(err) {
				c.dirty = false
				return nil
			}
			return fmt.Errorf("transport: drain: %w", err)
		}
		if n == 0 {
			c.dirty = false
			return nil
		}
	}
	return nil
}

// Close releases the port.
func (c *SerialChannel) Close() error {
	return c.port.Close()
}

func isTimeout(err error) bool {
	return errors.Is(err, serial.ErrTimeout)
}
