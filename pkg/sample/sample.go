package sample

import (
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/golightmeter/pkg/calc"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

// Sample is one sensor result converted to physical values.
type Sample struct {
	At     time.Time
	Raw    uint32
	Gain   tsl2585.Gain
	Status sensor.ResultStatus
	Basic  float32 // normalized reading, NaN when unusable
	Lux    float32 // illuminance, NaN without a lux calibration
}

// Valid reports whether the sample carries a usable basic reading.
func (s Sample) Valid() bool {
	return s.Status == sensor.StatusValid && calc.IsValid(s.Basic)
}

// Converter is a function type that converts a Reading channel to a Sample channel.
type Converter func(in <-chan sensor.Reading) <-chan Sample

// NewConverter creates a converter that expands every reading into one sample
// per result.
func NewConverter(c *calc.Calculator, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan sensor.Reading) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for r := range in {
				for _, s := range Convert(c, r) {
					select {
					case out <- s:
					case <-time.After(time.Second):
						log.Printf("Converter output channel full, dropping sample")
					}
				}
			}
		}()

		return out
	}
}

// Convert turns every result of r into a sample. Results of a fast-mode batch
// are spaced one integration cycle apart, the last one at r.At.
func Convert(c *calc.Calculator, r sensor.Reading) []Sample {
	period := r.IntegrationTime()
	n := len(r.Results)
	out := make([]Sample, 0, n)

	for i, res := range r.Results {
		s := Sample{
			At:     r.At.Add(-time.Duration(n-1-i) * period),
			Raw:    res.Count,
			Gain:   res.Gain,
			Status: res.Status,
			Basic:  math32.NaN(),
			Lux:    math32.NaN(),
		}
		if res.Status == sensor.StatusValid {
			s.Basic = c.Basic(res.Count, res.Gain, r.SampleTime, r.SampleCount)
			s.Lux = c.Lux(res.Count, res.Gain, r.SampleTime, r.SampleCount)
		}
		out = append(out, s)
	}

	return out
}
