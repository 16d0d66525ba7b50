package transport

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

// baudRater is implemented by machine.I2C.
type baudRater interface {
	SetBaudRate(br uint32) error
}

// TinyGo adapts a tinygo I²C bus such as machine.I2C0.
type TinyGo struct {
	mu  sync.Mutex
	bus drivers.I2C
}

var _ Transport = (*TinyGo)(nil)

// NewTinyGo wraps a configured tinygo bus.
func NewTinyGo(bus drivers.I2C) *TinyGo {
	return &TinyGo{bus: bus}
}

// ReadMem writes the register address and reads buf in one transaction.
func (t *TinyGo) ReadMem(addr uint16, reg uint8, buf []byte, timeout time.Duration) error {
	return readTimeout(timeout, buf, func(r []byte) error {
		t.mu.Lock()
		defer t.mu.Unlock()

		if err := t.bus.Tx(addr, []byte{reg}, r); err != nil {
			return fmt.Errorf("read 0x%02X from 0x%02X: %w", reg, addr, err)
		}
		return nil
	})
}

// WriteMem writes the register address followed by data.
func (t *TinyGo) WriteMem(addr uint16, reg uint8, data []byte, timeout time.Duration) error {
	w := frame(reg, data)
	return withTimeout(timeout, func() error {
		t.mu.Lock()
		defer t.mu.Unlock()

		if err := t.bus.Tx(addr, w, nil); err != nil {
			return fmt.Errorf("write 0x%02X to 0x%02X: %w", reg, addr, err)
		}
		return nil
	})
}

// SetSpeed changes the bus clock when the bus supports it.
func (t *TinyGo) SetSpeed(f physic.Frequency) error {
	br, ok := t.bus.(baudRater)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return br.SetBaudRate(uint32(f / physic.Hertz))
}
