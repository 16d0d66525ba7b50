// Package tsl2585 drives the TSL2585 photon-counting light sensor.
package tsl2585

import (
	"errors"
	"fmt"
	"time"

	"github.com/chewxy/math32"
)

// Address is the fixed I²C address of the sensor.
const Address = 0x39

// ChipIDValue is the expected content of the ID register.
const ChipIDValue = 0x5C

var (
	// ErrUnknownChip is returned by Init when the ID register does not match.
	ErrUnknownChip = errors.New("tsl2585: unknown chip id")
	// ErrInvalidGain is returned for gain values outside the sensor range.
	ErrInvalidGain = errors.New("tsl2585: invalid gain")
	// ErrInvalidSelector is returned when a modulator or step selector does not
	// name exactly one channel.
	ErrInvalidSelector = errors.New("tsl2585: invalid modulator or step")
)

// Gain is a modulator gain setting.
type Gain uint8

const (
	Gain0_5X Gain = iota
	Gain1X
	Gain2X
	Gain4X
	Gain8X
	Gain16X
	Gain32X
	Gain64X
	Gain128X
	Gain256X
	Gain512X
	Gain1024X
	Gain2048X
	Gain4096X

	// GainMax is the highest gain the sensor supports.
	GainMax = Gain4096X
)

// Valid reports whether g is a gain the sensor supports.
func (g Gain) Valid() bool {
	return g <= GainMax
}

// Value returns the nominal multiplier, or NaN when g is out of range.
func (g Gain) Value() float32 {
	if !g.Valid() {
		return math32.NaN()
	}
	return 0.5 * float32(uint32(1)<<uint(g))
}

func (g Gain) String() string {
	if !g.Valid() {
		return fmt.Sprintf("Gain(%d)", uint8(g))
	}
	if g == Gain0_5X {
		return "0.5x"
	}
	return fmt.Sprintf("%dx", 1<<(uint(g)-1))
}

// Modulator selects one or more of the three photon-counting channels.
type Modulator uint8

const (
	Mod0 Modulator = 1 << iota
	Mod1
	Mod2

	ModAll = Mod0 | Mod1 | Mod2
	// ModNone leaves a photodiode unrouted.
	ModNone Modulator = 0
)

// index returns 0..2 for a single modulator.
func (m Modulator) index() (int, error) {
	switch m {
	case Mod0:
		return 0, nil
	case Mod1:
		return 1, nil
	case Mod2:
		return 2, nil
	}
	return 0, ErrInvalidSelector
}

// Step selects one or more measurement sequencer steps.
type Step uint8

const (
	Step0 Step = 1 << iota
	Step1
	Step2
	Step3

	StepAll = Step0 | Step1 | Step2 | Step3
)

func (s Step) index() (int, error) {
	switch s {
	case Step0:
		return 0, nil
	case Step1:
		return 1, nil
	case Step2:
		return 2, nil
	case Step3:
		return 3, nil
	}
	return 0, ErrInvalidSelector
}

// PhotodiodeCount is the number of photodiodes that can be routed to modulators.
const PhotodiodeCount = 6

// Routing assigns every photodiode to a modulator for one sequencer step.
type Routing [PhotodiodeCount]Modulator

// DataFormat is the width of a FIFO ALS result.
type DataFormat uint8

const (
	Format16Bit DataFormat = iota
	Format24Bit
	Format32Bit
)

// Size returns the number of bytes one result occupies in the FIFO.
func (f DataFormat) Size() int {
	switch f {
	case Format16Bit:
		return 2
	case Format24Bit:
		return 3
	}
	return 4
}

// StatusSize is the number of ALS status bytes appended to a result when
// FIFO status writing is enabled.
const StatusSize = 3

// EntrySize is the size of one modulator-0 result with status, as configured
// by the controller.
const EntrySize = 4 + StatusSize

// FIFOStatus reports the state of the result buffer.
type FIFOStatus struct {
	Level     uint16 // bytes available
	Overflow  bool
	Underflow bool
}

// ChipID identifies the sensor die.
type ChipID struct {
	ID       uint8
	Revision uint8
	Aux      uint8
}

// Interrupt enable bits.
const (
	IntSleepAfter uint8 = 0x01 // SIEN
	IntFIFO       uint8 = 0x04 // FIEN
	IntALS        uint8 = 0x08 // AIEN
	IntModulator  uint8 = 0x80 // MIEN

	intMask uint8 = 0x8D
)

// Status register bits.
const (
	StatusSINT uint8 = 0x01
	StatusFINT uint8 = 0x04
	StatusAINT uint8 = 0x08
	StatusMINT uint8 = 0x80
)

// Status2 register bits.
const (
	Status2ALSDigitalSaturation uint8 = 0x10
	Status2ALSDataValid         uint8 = 0x40
)

// Status4 register bits.
const (
	Status4SleepActive uint8 = 0x02
)

// ALS status bits appended to FIFO results.
const (
	ALSData0AnalogSaturation uint8 = 0x20
	ALSData1AnalogSaturation uint8 = 0x10
	ALSData2AnalogSaturation uint8 = 0x08
)

// IntegrationTime returns the length of one ALS integration cycle.
// One sample_time tick is 1.388889 µs.
func IntegrationTime(sampleTime, sampleCount uint16) time.Duration {
	ns := float64(uint32(sampleCount)+1) * float64(uint32(sampleTime)+1) * 1388.889
	return time.Duration(ns)
}
