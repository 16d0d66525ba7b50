package enlarger

import (
	"sync"
	"time"
)

// Timing describes how a lamp follows its relay.
type Timing struct {
	TurnOnDelay  time.Duration `yaml:"turn_on_delay"`
	RiseTime     time.Duration `yaml:"rise_time"`
	TurnOffDelay time.Duration `yaml:"turn_off_delay"`
	FallTime     time.Duration `yaml:"fall_time"`
}

// DefaultTiming resembles a tungsten enlarger lamp.
func DefaultTiming() Timing {
	return Timing{
		TurnOnDelay:  30 * time.Millisecond,
		RiseTime:     60 * time.Millisecond,
		TurnOffDelay: 15 * time.Millisecond,
		FallTime:     120 * time.Millisecond,
	}
}

// Mock is a simulated enlarger. Its light output ramps linearly between dark
// and full brightness after the configured delays. Intensity can drive a
// simulated sensor.
type Mock struct {
	mu     sync.Mutex
	timing Timing
	level  float64
	dark   float64
	now    func() time.Time

	on       bool
	switched time.Time
	from     float64 // intensity when last switched
	switches int
}

// NewMock returns a lamp that is off, emitting dark when off and level
// when fully on.
func NewMock(timing Timing, level, dark float64) *Mock {
	return &Mock{timing: timing, level: level, dark: dark, now: time.Now, from: dark}
}

// SetEnabled switches the lamp.
func (m *Mock) SetEnabled(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if on == m.on {
		return nil
	}
	at := m.now()
	m.from = m.intensity(at)
	m.on = on
	m.switched = at
	m.switches++
	return nil
}

// Enabled returns the relay state.
func (m *Mock) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on
}

// Switches returns how many times the relay changed state.
func (m *Mock) Switches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.switches
}

// Close turns the lamp off.
func (m *Mock) Close() error {
	return m.SetEnabled(false)
}

// Intensity returns the light output at a moment.
func (m *Mock) Intensity(at time.Time) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intensity(at)
}

func (m *Mock) intensity(at time.Time) float64 {
	if m.switched.IsZero() || at.Before(m.switched) {
		return m.from
	}

	dt := at.Sub(m.switched)
	if m.on {
		return ramp(m.from, m.level, dt, m.timing.TurnOnDelay, m.timing.RiseTime)
	}
	return ramp(m.from, m.dark, dt, m.timing.TurnOffDelay, m.timing.FallTime)
}

func ramp(from, to float64, dt, delay, length time.Duration) float64 {
	switch {
	case dt < delay:
		return from
	case dt >= delay+length:
		return to
	}
	k := float64(dt-delay) / float64(length)
	return from + (to-from)*k
}
