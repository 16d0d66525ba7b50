package calibration

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
)

// Profile describes how an enlarger lamp switches on and off. Durations have
// millisecond resolution.
type Profile struct {
	TurnOnDelay   time.Duration `yaml:"turn_on_delay"`
	RiseTime      time.Duration `yaml:"rise_time"`
	RiseTimeEquiv time.Duration `yaml:"rise_time_equiv"`
	TurnOffDelay  time.Duration `yaml:"turn_off_delay"`
	FallTime      time.Duration `yaml:"fall_time"`
	FallTimeEquiv time.Duration `yaml:"fall_time_equiv"`
}

// DefaultProfile is used for enlargers that were never calibrated.
func DefaultProfile() Profile {
	return Profile{
		TurnOnDelay:   40 * time.Millisecond,
		RiseTime:      20 * time.Millisecond,
		RiseTimeEquiv: 10 * time.Millisecond,
		TurnOffDelay:  20 * time.Millisecond,
		FallTime:      60 * time.Millisecond,
		FallTimeEquiv: 20 * time.Millisecond,
	}
}

// Valid reports whether every duration is non-negative and each equivalent
// time is no longer than the transition it stands for.
func (p Profile) Valid() bool {
	for _, d := range p.fields() {
		if *d < 0 {
			return false
		}
	}
	return p.RiseTimeEquiv <= p.RiseTime && p.FallTimeEquiv <= p.FallTime
}

// MinExposure is the shortest exposure the enlarger can produce: the lamp
// has to come on and go off again.
func (p Profile) MinExposure() time.Duration {
	d := p.TurnOnDelay + p.RiseTimeEquiv + p.FallTimeEquiv - p.TurnOffDelay
	if d < 0 {
		return 0
	}
	return d
}

func (p Profile) String() string {
	return fmt.Sprintf("on delay %v, rise %v (equiv %v), off delay %v, fall %v (equiv %v)",
		p.TurnOnDelay, p.RiseTime, p.RiseTimeEquiv, p.TurnOffDelay, p.FallTime, p.FallTimeEquiv)
}

func (p *Profile) fields() [6]*time.Duration {
	return [6]*time.Duration{
		&p.TurnOnDelay, &p.RiseTime, &p.RiseTimeEquiv,
		&p.TurnOffDelay, &p.FallTime, &p.FallTimeEquiv,
	}
}

// Aggregate combines per-run profiles field by field with a geometric mean.
// A field that was zero in any run aggregates to zero.
func Aggregate(runs []Profile) Profile {
	var out Profile
	if len(runs) == 0 {
		return out
	}

	dst := out.fields()
	for f := range dst {
		values := make([]float32, len(runs))
		for i := range runs {
			values[i] = millis(*runs[i].fields()[f])
		}
		*dst[f] = fromMillis(GeometricMean(values))
	}
	return out
}

// GeometricMean returns exp(mean(ln(v))). Any non-positive value yields 0.
func GeometricMean(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var sum float32
	for _, v := range values {
		if v <= 0 {
			return 0
		}
		sum += math32.Log(v)
	}
	return math32.Exp(sum / float32(len(values)))
}

func millis(d time.Duration) float32 {
	return float32(d) / float32(time.Millisecond)
}

func fromMillis(ms float32) time.Duration {
	return time.Duration(math32.Round(ms)) * time.Millisecond
}
