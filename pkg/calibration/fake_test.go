package calibration

import (
	"context"
	"sync"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// lamp is a piecewise linear enlarger model.
type lamp struct {
	clock    *fakeClock
	level    float32
	dark     float32
	onDelay  time.Duration
	rise     time.Duration
	offDelay time.Duration
	fall     time.Duration

	on       bool
	switched time.Time
	switches []bool
}

func (l *lamp) SetEnabled(on bool) error {
	l.switches = append(l.switches, on)
	if on == l.on {
		return nil
	}
	l.on = on
	l.switched = l.clock.Now()
	return nil
}

func ramp(from, to float32, dt, delay, length time.Duration) float32 {
	switch {
	case dt < delay:
		return from
	case dt >= delay+length:
		return to
	}
	k := float32(dt-delay) / float32(length)
	return from + (to-from)*k
}

func (l *lamp) at(t time.Time) float32 {
	if l.switched.IsZero() {
		return l.dark
	}
	dt := t.Sub(l.switched)
	if dt < 0 {
		if l.on {
			return l.dark
		}
		return l.level
	}
	if l.on {
		return ramp(l.dark, l.level, dt, l.onDelay, l.rise)
	}
	return ramp(l.level, l.dark, dt, l.offDelay, l.fall)
}

// fakeSensor produces readings of the lamp on the fake clock, one sample
// per period.
type fakeSensor struct {
	clock  *fakeClock
	light  func(time.Time) float32
	period time.Duration
	batch  int
	status sensor.ResultStatus

	state        sensor.State
	mode         sensor.Mode
	gain         tsl2585.Gain
	agc          bool
	last         time.Time
	integration  [2]uint16
	integrations [][2]uint16
}

func (s *fakeSensor) State() sensor.State { return s.state }

func (s *fakeSensor) Enable(mode sensor.Mode) error {
	if s.state != sensor.StateStarted {
		return sensor.ErrInvalidState
	}
	s.state = sensor.StateRunning
	s.mode = mode
	s.last = time.Time{}
	return nil
}

func (s *fakeSensor) Disable() error {
	if s.state != sensor.StateRunning {
		return sensor.ErrInvalidState
	}
	s.state = sensor.StateStarted
	return nil
}

func (s *fakeSensor) SetGain(gain tsl2585.Gain, mod tsl2585.Modulator) error {
	s.gain = gain
	return nil
}

func (s *fakeSensor) SetIntegration(sampleTime, sampleCount uint16) error {
	s.integration = [2]uint16{sampleTime, sampleCount}
	s.integrations = append(s.integrations, s.integration)
	return nil
}

func (s *fakeSensor) Integration() (uint16, uint16, error) {
	if s.state < sensor.StateStarted {
		return 0, 0, sensor.ErrInvalidState
	}
	return s.integration[0], s.integration[1], nil
}

func (s *fakeSensor) EnableAGC(sampleCount uint16) error {
	s.agc = true
	return nil
}

func (s *fakeSensor) DisableAGC() error {
	s.agc = false
	return nil
}

func (s *fakeSensor) ClearLastReading() {}

func (s *fakeSensor) NextReading(ctx context.Context, timeout time.Duration) (sensor.Reading, error) {
	if s.state != sensor.StateRunning {
		s.clock.Sleep(timeout)
		return sensor.Reading{}, sensor.ErrTimeout
	}

	n := 1
	if s.mode == sensor.ModeFast {
		n = s.batch
	}
	s.clock.Sleep(time.Duration(n) * s.period)
	at := s.clock.Now()

	r := sensor.Reading{Results: make([]sensor.Result, n), Mode: s.mode, At: at}
	if !s.last.IsZero() {
		r.Elapsed = at.Sub(s.last)
	}
	s.last = at

	for i := range r.Results {
		t := at.Add(-time.Duration(n-1-i) * s.period)
		r.Results[i] = sensor.Result{
			Count:  uint32(s.light(t)),
			Gain:   tsl2585.Gain16X,
			Status: s.status,
		}
	}
	return r, nil
}

// scriptedSensor replays fixed readings.
type scriptedSensor struct {
	fakeSensor
	readings []sensor.Reading
}

func (s *scriptedSensor) NextReading(ctx context.Context, timeout time.Duration) (sensor.Reading, error) {
	if len(s.readings) == 0 {
		return sensor.Reading{}, sensor.ErrTimeout
	}
	r := s.readings[0]
	s.readings = s.readings[1:]
	return r, nil
}

type fixture struct {
	clock  *fakeClock
	lamp   *lamp
	sensor *fakeSensor
	engine *Engine
}

func newFixture(cfg Config) *fixture {
	clock := newFakeClock()
	l := &lamp{
		clock:    clock,
		level:    100,
		onDelay:  30 * time.Millisecond,
		rise:     20 * time.Millisecond,
		offDelay: 40 * time.Millisecond,
		fall:     20 * time.Millisecond,
	}
	s := &fakeSensor{
		clock:  clock,
		light:  l.at,
		period: 6 * time.Millisecond,
		batch:  8,
		state:  sensor.StateStarted,

		integration: [2]uint16{719, 99},
	}
	e := New(s, l, cfg)
	e.now = clock.Now
	e.sleep = clock.Sleep
	return &fixture{clock: clock, lamp: l, sensor: s, engine: e}
}

func (f *fixture) enlargerOff() bool {
	return !f.lamp.on && len(f.lamp.switches) > 0 && !f.lamp.switches[len(f.lamp.switches)-1]
}
