// Package calc converts raw sensor counts into physical light values.
//
// Every function returns NaN when an input is out of range or a calibration
// coefficient is missing. Callers must treat any non-finite result as a
// failed measurement.
package calc

import (
	"github.com/chewxy/math32"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

// tickMicros is the length of one sample_time tick.
const tickMicros = 1.388889

// fractionScale removes the fractional bits of a 32-bit FIFO result.
const fractionScale = 16

// IntegrationTimeMs returns the integration cycle length in milliseconds.
func IntegrationTimeMs(sampleTime, sampleCount uint16) float32 {
	return float32(uint32(sampleCount)+1) * float32(uint32(sampleTime)+1) * tickMicros / 1000
}

// GainValue returns the multiplier of gain from the calibrated table, or the
// nominal value for gains above the calibrated range.
func GainValue(table settings.GainTable, gain tsl2585.Gain) float32 {
	if !gain.Valid() {
		return math32.NaN()
	}
	if int(gain) >= len(table) {
		return gain.Value()
	}
	v := table[gain]
	if math32.IsNaN(v) || math32.IsInf(v, 0) || v <= 0 {
		return math32.NaN()
	}
	return v
}

// BasicReading normalizes a raw count by gain and integration time.
func BasicReading(table settings.GainTable, raw uint32, gain tsl2585.Gain, sampleTime, sampleCount uint16) float32 {
	g := GainValue(table, gain)
	if math32.IsNaN(g) {
		return g
	}
	itime := IntegrationTimeMs(sampleTime, sampleCount)
	return (float32(raw) / fractionScale) / (itime * g)
}

// SlopeCorrected applies the log10 quadratic correction of the meter probe.
func SlopeCorrected(slope settings.Slope, basic float32) float32 {
	if !slope.Valid() || math32.IsNaN(basic) {
		return math32.NaN()
	}
	if basic <= 0 {
		return 0
	}
	l := math32.Log10(basic)
	return math32.Pow(10, slope.B0+slope.B1*l+slope.B2*l*l)
}

// Lux converts a basic reading to illuminance, clamped at zero.
func Lux(target settings.LinearTarget, basic float32) float32 {
	if !target.Valid() || math32.IsNaN(basic) {
		return math32.NaN()
	}
	lux := basic*target.Slope + target.Intercept
	if lux < 0 {
		return 0
	}
	return lux
}

// Density converts a stick basic reading to reflection density using the two
// stored calibration points.
func Density(target settings.DensityTarget, basic float32) float32 {
	if !target.Valid() || math32.IsNaN(basic) || basic <= 0 {
		return math32.NaN()
	}
	lo := math32.Log10(target.LoReading)
	hi := math32.Log10(target.HiReading)
	if lo == hi {
		return math32.NaN()
	}
	k := (target.HiDensity - target.LoDensity) / (hi - lo)
	return target.LoDensity + k*(math32.Log10(basic)-lo)
}

// IsValid reports whether v is a usable measurement.
func IsValid(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Calculator applies the calibration of one peripheral.
type Calculator struct {
	settings settings.Settings
}

// New returns a calculator for the given calibration data.
func New(s settings.Settings) *Calculator {
	return &Calculator{settings: s}
}

// Basic returns the basic reading of a raw result, including the slope
// correction when the peripheral is a meter probe.
func (c *Calculator) Basic(raw uint32, gain tsl2585.Gain, sampleTime, sampleCount uint16) float32 {
	basic := BasicReading(c.settings.Gain, raw, gain, sampleTime, sampleCount)
	if c.settings.Kind == settings.KindProbe {
		return SlopeCorrected(c.settings.Slope, basic)
	}
	return basic
}

// Lux returns the illuminance of a raw result.
func (c *Calculator) Lux(raw uint32, gain tsl2585.Gain, sampleTime, sampleCount uint16) float32 {
	return Lux(c.settings.Target, c.Basic(raw, gain, sampleTime, sampleCount))
}

// Density returns the reflection density of a raw stick result.
func (c *Calculator) Density(raw uint32, gain tsl2585.Gain, sampleTime, sampleCount uint16) float32 {
	return Density(c.settings.Density, c.Basic(raw, gain, sampleTime, sampleCount))
}
