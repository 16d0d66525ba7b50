package settings

import (
	"fmt"
	"sync"
	"time"

	"github.com/itohio/golightmeter/pkg/transport"
)

// Store gives access to the identity and calibration data of a peripheral.
type Store interface {
	ReadID() (ID, error)
	Read() (Settings, error)
	Write(s Settings) error
}

const (
	// EEPROMAddress is the bus address of the calibration memory.
	EEPROMAddress = 0x50
	// EEPROMIDAddress is the bus address of the identification page.
	EEPROMIDAddress = 0x58

	writePageSize = 16
	writeCycle    = 5 * time.Millisecond
)

// EEPROM is a Store backed by the peripheral's M24C02 memory.
type EEPROM struct {
	bus     transport.Transport
	addr    uint16
	idAddr  uint16
	timeout time.Duration
	cycle   time.Duration
}

var _ Store = (*EEPROM)(nil)

// NewEEPROM returns a store on the given bus.
func NewEEPROM(bus transport.Transport) *EEPROM {
	return &EEPROM{
		bus:     bus,
		addr:    EEPROMAddress,
		idAddr:  EEPROMIDAddress,
		timeout: transport.DefaultTimeout,
		cycle:   writeCycle,
	}
}

// ReadID reads the identification page.
func (e *EEPROM) ReadID() (ID, error) {
	b := make([]byte, IDPageSize)
	if err := e.bus.ReadMem(e.idAddr, 0, b, e.timeout); err != nil {
		return ID{}, fmt.Errorf("read id page: %w", err)
	}
	return DecodeID(b)
}

// Read reads and validates the calibration page.
func (e *EEPROM) Read() (Settings, error) {
	b := make([]byte, PageSize)
	if err := e.bus.ReadMem(e.addr, 0, b, e.timeout); err != nil {
		return Settings{}, fmt.Errorf("read calibration page: %w", err)
	}
	return Decode(b)
}

// Write stores s. The header page goes last so an interrupted write leaves
// the previous header checksum failing rather than a mixed page validating.
func (e *EEPROM) Write(s Settings) error {
	b := Encode(s)
	for off := writePageSize; off < PageSize; off += writePageSize {
		if err := e.writePage(off, b[off:off+writePageSize]); err != nil {
			return err
		}
	}
	return e.writePage(0, b[:writePageSize])
}

func (e *EEPROM) writePage(off int, data []byte) error {
	if err := e.bus.WriteMem(e.addr, uint8(off), data, e.timeout); err != nil {
		return fmt.Errorf("write calibration page at %d: %w", off, err)
	}
	time.Sleep(e.cycle)
	return nil
}

// Memory is an in-memory Store used by the simulated peripheral.
type Memory struct {
	mu   sync.Mutex
	id   []byte
	data []byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns a store holding id and, when s is non-nil, its encoding.
func NewMemory(id ID, s *Settings) *Memory {
	m := &Memory{id: EncodeID(id)}
	if s != nil {
		m.data = Encode(*s)
	} else {
		m.data = make([]byte, PageSize)
	}
	return m
}

// ReadID decodes the stored identification page.
func (m *Memory) ReadID() (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DecodeID(m.id)
}

// Read decodes the stored calibration page.
func (m *Memory) Read() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Decode(m.data)
}

// Write replaces the stored calibration page.
func (m *Memory) Write(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = Encode(s)
	return nil
}

// Corrupt flips one byte of the stored calibration page.
func (m *Memory) Corrupt(off int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[off] ^= 0xFF
}
