// Package settings reads and writes the identity and calibration data that
// every light sensor peripheral keeps in its own EEPROM.
package settings

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
)

var (
	// ErrUnknownMemory is returned when the identification page does not
	// carry the expected memory id.
	ErrUnknownMemory = errors.New("settings: unknown memory id")
	// ErrVersion is returned for an unsupported calibration page version.
	ErrVersion = errors.New("settings: unsupported version")
	// ErrChecksum is returned when the calibration page checksum does not match.
	ErrChecksum = errors.New("settings: checksum mismatch")
	// ErrKind is returned when a page belongs to a different peripheral kind.
	ErrKind = errors.New("settings: peripheral kind mismatch")
)

// Kind identifies the peripheral type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindProbe
	KindStick
)

func (k Kind) String() string {
	switch k {
	case KindProbe:
		return "probe"
	case KindStick:
		return "stick"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind converts a configuration name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "probe", "":
		return KindProbe, nil
	case "stick":
		return KindStick, nil
	}
	return KindUnknown, fmt.Errorf("unknown peripheral kind %q", s)
}

// ID is the factory identity of a peripheral.
type ID struct {
	Kind     Kind
	RevMajor uint8
	RevMinor uint8
	Serial   uint32
}

// Revision returns the hardware revision as "major.minor".
func (id ID) Revision() string {
	return fmt.Sprintf("%d.%d", id.RevMajor, id.RevMinor)
}

// SerialString returns the serial number as printed on the device label.
func (id ID) SerialString() string {
	return fmt.Sprintf("%08X", id.Serial)
}

// GainCount is the number of calibrated gain steps, 0.5x through 256x.
const GainCount = 10

// GainTable holds the measured multiplier of each calibrated gain step.
type GainTable [GainCount]float32

// Valid reports whether every entry is a positive finite number.
func (t GainTable) Valid() bool {
	for _, v := range t {
		if !finitePositive(v) {
			return false
		}
	}
	return true
}

// Slope holds the log10 quadratic correction of the meter probe.
type Slope struct {
	B0, B1, B2 float32
}

// Valid reports whether every coefficient is finite.
func (s Slope) Valid() bool {
	return finite(s.B0) && finite(s.B1) && finite(s.B2)
}

// LinearTarget converts a basic reading to lux.
type LinearTarget struct {
	Slope     float32
	Intercept float32
}

// Valid reports whether both coefficients are finite.
func (t LinearTarget) Valid() bool {
	return finite(t.Slope) && finite(t.Intercept)
}

// DensityTarget maps stick readings to reflection density.
type DensityTarget struct {
	LoDensity float32
	LoReading float32
	HiDensity float32
	HiReading float32
}

// Valid reports whether the two calibration points are usable.
func (t DensityTarget) Valid() bool {
	return finite(t.LoDensity) && finite(t.HiDensity) &&
		finitePositive(t.LoReading) && finitePositive(t.HiReading) &&
		t.LoDensity < t.HiDensity
}

// Settings is the calibration data of a peripheral.
type Settings struct {
	Kind    Kind
	Gain    GainTable
	Slope   Slope
	Target  LinearTarget
	Density DensityTarget
}

// Nominal returns calibration data built from the nominal gain values with an
// identity correction and a unit lux slope.
func Nominal(kind Kind) Settings {
	s := Settings{
		Kind:   kind,
		Slope:  Slope{B0: 0, B1: 1, B2: 0},
		Target: LinearTarget{Slope: 1, Intercept: 0},
		Density: DensityTarget{
			LoDensity: 0.05, LoReading: 1,
			HiDensity: 1.5, HiReading: 0.0316,
		},
	}
	for i := range s.Gain {
		s.Gain[i] = 0.5 * float32(uint32(1)<<uint(i))
	}
	return s
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

func finitePositive(v float32) bool {
	return finite(v) && v > 0
}
