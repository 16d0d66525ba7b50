// Package transport provides the register bus shared by the light sensor,
// the device storage and the stick light driver.
package transport

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Transport is a byte-addressed register bus.
type Transport interface {
	// ReadMem reads len(buf) bytes starting at register reg of the device at addr.
	ReadMem(addr uint16, reg uint8, buf []byte, timeout time.Duration) error
	// WriteMem writes data starting at register reg of the device at addr.
	WriteMem(addr uint16, reg uint8, data []byte, timeout time.Duration) error
	// SetSpeed changes the bus clock.
	SetSpeed(f physic.Frequency) error
}

const (
	// StandardSpeed is the bus clock used while idle and in normal mode.
	StandardSpeed = 100 * physic.KiloHertz
	// FastSpeed is the 400 kHz bus clock.
	FastSpeed = 400 * physic.KiloHertz
	// FastPlusSpeed is used to drain the sensor FIFO in fast mode.
	FastPlusSpeed = physic.MegaHertz

	// DefaultTimeout bounds a single bus transaction.
	DefaultTimeout = 100 * time.Millisecond
)

// ErrTimeout is returned when a bus transaction does not complete in time.
var ErrTimeout = errors.New("transport: timeout")

// withTimeout runs fn and gives up waiting after timeout.
// The transaction itself keeps the bus until it returns.
func withTimeout(timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrTimeout
	}
}

// readTimeout runs a read transaction into a private buffer and copies it to
// buf once the transaction has completed. An abandoned transaction never
// writes to buf.
func readTimeout(timeout time.Duration, buf []byte, read func(r []byte) error) error {
	r := make([]byte, len(buf))
	if err := withTimeout(timeout, func() error { return read(r) }); err != nil {
		return err
	}
	copy(buf, r)
	return nil
}

func frame(reg uint8, data []byte) []byte {
	w := make([]byte, len(data)+1)
	w[0] = reg
	copy(w[1:], data)
	return w
}
