package transport

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Periph adapts a periph.io I²C bus.
type Periph struct {
	mu  sync.Mutex
	bus i2c.Bus
}

var _ Transport = (*Periph)(nil)

// NewPeriph wraps an opened periph bus, e.g. one returned by i2creg.Open.
func NewPeriph(bus i2c.Bus) *Periph {
	return &Periph{bus: bus}
}

// ReadMem writes the register address and reads buf in one transaction.
func (p *Periph) ReadMem(addr uint16, reg uint8, buf []byte, timeout time.Duration) error {
	return readTimeout(timeout, buf, func(r []byte) error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.bus.Tx(addr, []byte{reg}, r); err != nil {
			return fmt.Errorf("read 0x%02X from 0x%02X: %w", reg, addr, err)
		}
		return nil
	})
}

// WriteMem writes the register address followed by data.
func (p *Periph) WriteMem(addr uint16, reg uint8, data []byte, timeout time.Duration) error {
	w := frame(reg, data)
	return withTimeout(timeout, func() error {
		p.mu.Lock()
		defer p.mu.Unlock()

		if err := p.bus.Tx(addr, w, nil); err != nil {
			return fmt.Errorf("write 0x%02X to 0x%02X: %w", reg, addr, err)
		}
		return nil
	})
}

// SetSpeed changes the bus clock.
func (p *Periph) SetSpeed(f physic.Frequency) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.bus.SetSpeed(f); err != nil {
		return fmt.Errorf("set bus speed %s: %w", f, err)
	}
	return nil
}

// String implements fmt.Stringer.
func (p *Periph) String() string {
	return p.bus.String()
}
