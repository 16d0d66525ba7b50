package calibration

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Stats summarises a set of readings.
type Stats struct {
	Mean   float32
	Min    float32
	Max    float32
	StdDev float32
}

// ComputeStats returns the mean, range and population standard deviation
// of values.
func ComputeStats(values []float32) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{Min: values[0], Max: values[0]}
	var sum float32
	for _, v := range values {
		sum += v
		s.Min = math32.Min(s.Min, v)
		s.Max = math32.Max(s.Max, v)
	}
	s.Mean = sum / float32(len(values))

	var dist float32
	for _, v := range values {
		d := v - s.Mean
		dist += d * d
	}
	s.StdDev = math32.Sqrt(dist / float32(len(values)))
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("Mean = %.1f, Min = %.1f, Max = %.1f, StdDev = %.1f", s.Mean, s.Min, s.Max, s.StdDev)
}
