package enlarger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

// coilClient is the part of modbus.Client the relay uses.
type coilClient interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
}

// ModbusConfig addresses one relay coil on a Modbus TCP I/O module.
type ModbusConfig struct {
	Endpoint string        `yaml:"endpoint"`
	UnitID   uint8         `yaml:"unit_id"`
	Coil     uint16        `yaml:"coil"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Modbus switches the enlarger through a coil of a Modbus TCP relay module.
type Modbus struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  coilClient
	coil    uint16
}

// NewModbus connects to the relay module.
func NewModbus(cfg ModbusConfig) (*Modbus, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("enlarger modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.SlaveId = cfg.UnitID
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("enlarger modbus: connect %s: %w", cfg.Endpoint, err)
	}

	return &Modbus{handler: h, client: modbus.NewClient(h), coil: cfg.Coil}, nil
}

func newModbus(client coilClient, coil uint16) *Modbus {
	return &Modbus{client: client, coil: coil}
}

// SetEnabled writes the relay coil.
func (m *Modbus) SetEnabled(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	value := uint16(coilOff)
	if on {
		value = coilOn
	}
	if _, err := m.client.WriteSingleCoil(m.coil, value); err != nil {
		return fmt.Errorf("enlarger modbus: write coil %d: %w", m.coil, err)
	}
	return nil
}

// Enabled reads the relay coil back.
func (m *Modbus) Enabled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bits, err := m.client.ReadCoils(m.coil, 1)
	if err != nil {
		return false, fmt.Errorf("enlarger modbus: read coil %d: %w", m.coil, err)
	}
	if len(bits) == 0 {
		return false, fmt.Errorf("enlarger modbus: read coil %d: empty response", m.coil)
	}
	return bits[0]&1 != 0, nil
}

// Close closes the TCP connection.
func (m *Modbus) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	return m.handler.Close()
}
