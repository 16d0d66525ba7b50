package calibration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeometricMean(t *testing.T) {
	assert.InDelta(t, 20.0, GeometricMean([]float32{10, 20, 40}), 1e-3)
	assert.InDelta(t, 7.0, GeometricMean([]float32{7}), 1e-5)
	assert.Zero(t, GeometricMean([]float32{10, 0, 40}))
	assert.Zero(t, GeometricMean(nil))
}

func TestAggregate(t *testing.T) {
	ms := time.Millisecond
	runs := []Profile{
		{TurnOnDelay: 10 * ms, RiseTime: 30 * ms, RiseTimeEquiv: 15 * ms, TurnOffDelay: 5 * ms, FallTime: 50 * ms, FallTimeEquiv: 0},
		{TurnOnDelay: 20 * ms, RiseTime: 30 * ms, RiseTimeEquiv: 15 * ms, TurnOffDelay: 5 * ms, FallTime: 50 * ms, FallTimeEquiv: 10 * ms},
		{TurnOnDelay: 40 * ms, RiseTime: 30 * ms, RiseTimeEquiv: 15 * ms, TurnOffDelay: 5 * ms, FallTime: 50 * ms, FallTimeEquiv: 10 * ms},
	}

	p := Aggregate(runs)
	assert.Equal(t, 20*ms, p.TurnOnDelay, "geometric, not arithmetic mean")
	assert.Equal(t, 30*ms, p.RiseTime)
	assert.Equal(t, 15*ms, p.RiseTimeEquiv)
	assert.Equal(t, 5*ms, p.TurnOffDelay)
	assert.Equal(t, 50*ms, p.FallTime)
	assert.Zero(t, p.FallTimeEquiv)

	assert.Equal(t, Profile{}, Aggregate(nil))
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats([]float32{1, 2, 3, 4})
	assert.Equal(t, float32(2.5), s.Mean)
	assert.Equal(t, float32(1), s.Min)
	assert.Equal(t, float32(4), s.Max)
	assert.InDelta(t, 1.118034, s.StdDev, 1e-5)

	assert.Equal(t, Stats{}, ComputeStats(nil))
}

func TestValidate(t *testing.T) {
	cycle := Stats{Mean: 6, Min: 6, Max: 6}
	tests := []struct {
		name  string
		on    Stats
		off   Stats
		cycle Stats
		code  Code
		err   error
	}{
		{
			name: "valid",
			on:   Stats{Mean: 100, Min: 95, Max: 105, StdDev: 2},
			off:  Stats{Mean: 10, Min: 5, Max: 12, StdDev: 2},
		},
		{
			name: "small range gap",
			on:   Stats{Mean: 100, Min: 95, Max: 105, StdDev: 2},
			off:  Stats{Mean: 90, Min: 85, Max: 92, StdDev: 2},
			code: CodeInvalidReferenceStats,
			err:  ErrRangeGap,
		},
		{
			name: "range gap with distant means",
			on:   Stats{Mean: 150, Min: 95, Max: 200, StdDev: 30},
			off:  Stats{Mean: 40, Min: 0, Max: 92, StdDev: 30},
			code: CodeInvalidReferenceStats,
			err:  ErrRangeGap,
		},
		{
			name: "overlap",
			on:   Stats{Mean: 150, Min: 90, Max: 200, StdDev: 30},
			off:  Stats{Mean: 40, Min: 0, Max: 92, StdDev: 30},
			code: CodeInvalidReferenceStats,
			err:  ErrRangesOverlap,
		},
		{
			name: "equal bounds overlap",
			on:   Stats{Mean: 150, Min: 92, Max: 200, StdDev: 30},
			off:  Stats{Mean: 40, Min: 0, Max: 92, StdDev: 30},
			code: CodeInvalidReferenceStats,
			err:  ErrRangesOverlap,
		},
		{
			name: "small mean gap",
			on:   Stats{Mean: 60, Min: 55, Max: 70, StdDev: 3},
			off:  Stats{Mean: 45, Min: 20, Max: 44, StdDev: 10},
			code: CodeInvalidReferenceStats,
			err:  ErrMeanGap,
		},
		{
			name:  "interval shorter than integration",
			on:    Stats{Mean: 100, Min: 95, Max: 105, StdDev: 2},
			off:   Stats{Mean: 10, Min: 5, Max: 12, StdDev: 2},
			cycle: Stats{Mean: 4, Min: 4, Max: 4},
			code:  CodeFail,
			err:   ErrCycleTooShort,
		},
	}

	e := New(nil, nil, Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := Reference{On: tt.on, Off: tt.off, Cycle: cycle, Integration: 5 * time.Millisecond}
			if tt.cycle != (Stats{}) {
				ref.Cycle = tt.cycle
			}

			err := e.validate(ref)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestThresholds(t *testing.T) {
	e := New(nil, nil, Config{})

	th := e.thresholds(Reference{
		On:  Stats{Mean: 100, Min: 95, Max: 105, StdDev: 2},
		Off: Stats{Mean: 3.2, Min: 0, Max: 5, StdDev: 1.1},
	})
	assert.Equal(t, float32(5), th.rising)
	assert.Equal(t, float32(98), th.steady)
	assert.Equal(t, float32(95), th.turnOff)
	assert.Equal(t, float32(4), th.falling)

	th = e.thresholds(Reference{
		On:  Stats{Mean: 100.4, Min: 100, Max: 101, StdDev: 0.49},
		Off: Stats{},
	})
	assert.Equal(t, float32(2), th.rising, "floor")
	assert.Equal(t, float32(100), th.steady, "quiet lamp uses on minimum")
	assert.Equal(t, float32(2), th.falling, "floor")
}

func batch(at time.Time, counts ...uint32) sensor.Reading {
	r := sensor.Reading{Mode: sensor.ModeFast, At: at}
	for _, c := range counts {
		r.Results = append(r.Results, sensor.Result{Count: c, Status: sensor.StatusValid})
	}
	return r
}

func TestScan_RisingEdge(t *testing.T) {
	from := time.Unix(100, 0)
	period := 10 * time.Millisecond
	ref := Reference{
		On:  Stats{Mean: 100, Min: 95, Max: 105, StdDev: 2},
		Off: Stats{Mean: 3, Min: 1, Max: 5, StdDev: 1},
	}

	s := &scriptedSensor{readings: []sensor.Reading{
		// Samples at from+10ms ... from+70ms.
		batch(from.Add(70*time.Millisecond), 2, 3, 6, 40, 90, 100, 101),
	}}
	e := New(s, nil, Config{})
	th := e.thresholds(ref)

	tr, err := e.scan(context.Background(), from, period,
		func(c float32) bool { return c > th.rising },
		func(c float32) bool { return c >= th.steady },
	)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Millisecond, tr.delay, "first sample above 5 is the 6")
	assert.Equal(t, 30*time.Millisecond, tr.duration, "runs to the 100")
	assert.Equal(t, float32(6+40+90+100), tr.integral)
	assert.Equal(t, 4, tr.samples)
	assert.Equal(t, 18*time.Millisecond, tr.equiv(ref.On.Mean))
}

func TestScan_AcrossBatches(t *testing.T) {
	from := time.Unix(100, 0)
	period := 5 * time.Millisecond

	s := &scriptedSensor{readings: []sensor.Reading{
		// The first sample predates the drive command and is ignored even
		// though it is bright.
		batch(from.Add(5*time.Millisecond), 50, 1, 1),
		batch(from.Add(25*time.Millisecond), 1, 2, 30),
		{At: from.Add(40 * time.Millisecond), Results: []sensor.Result{
			{Status: sensor.StatusInvalid},
			{Count: 80, Status: sensor.StatusValid},
			{Count: 99, Status: sensor.StatusValid},
		}},
	}}
	e := New(s, nil, Config{})

	tr, err := e.scan(context.Background(), from, period,
		func(c float32) bool { return c > 2 },
		func(c float32) bool { return c >= 98 },
	)
	require.NoError(t, err)
	assert.Equal(t, 25*time.Millisecond, tr.delay)
	assert.Equal(t, 15*time.Millisecond, tr.duration)
	assert.Equal(t, 3, tr.samples)
}

func TestScan_Timeout(t *testing.T) {
	from := time.Unix(100, 0)
	s := &scriptedSensor{readings: []sensor.Reading{
		batch(from.Add(time.Second), 1, 1),
		batch(from.Add(11*time.Second), 1, 1),
	}}
	e := New(s, nil, Config{})

	_, err := e.scan(context.Background(), from, time.Millisecond,
		func(c float32) bool { return c > 2 },
		func(c float32) bool { return c >= 98 },
	)
	assert.Equal(t, CodeTimeout, CodeOf(err))
}

func TestScan_SensorSilent(t *testing.T) {
	e := New(&scriptedSensor{}, nil, Config{})

	_, err := e.scan(context.Background(), time.Unix(0, 0), time.Millisecond,
		func(float32) bool { return true },
		func(float32) bool { return true },
	)
	assert.Equal(t, CodeSensorFault, CodeOf(err))
	assert.ErrorIs(t, err, sensor.ErrTimeout)
}

func TestCodes(t *testing.T) {
	codes := []Code{
		CodeSensorFault, CodeZeroReading, CodeSaturated, CodeInvalidReferenceStats,
		CodeTimeout, CodeUserCancel, CodeFail,
	}
	seen := map[string]bool{}
	for _, c := range codes {
		g := c.Guidance()
		assert.NotEmpty(t, g)
		assert.False(t, seen[g], "guidance for %s is not distinct", c)
		seen[g] = true
	}

	err := fmt.Errorf("run: %w", fail(CodeSaturated, errors.New("too bright")))
	assert.Equal(t, CodeSaturated, CodeOf(err))
	assert.ErrorIs(t, err, CodeSaturated)
	assert.NotErrorIs(t, err, CodeTimeout)
	assert.Equal(t, "calibration: sensor saturated: too bright", errors.Unwrap(err).Error())

	assert.Equal(t, CodeTimeout, CodeOf(CodeTimeout))
	assert.Equal(t, CodeFail, CodeOf(errors.New("other")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestProfile(t *testing.T) {
	p := DefaultProfile()
	assert.True(t, p.Valid())
	assert.Equal(t, 50*time.Millisecond, p.MinExposure())

	p.RiseTimeEquiv = p.RiseTime + time.Millisecond
	assert.False(t, p.Valid())

	p = Profile{TurnOnDelay: -time.Millisecond}
	assert.False(t, p.Valid())

	p = Profile{TurnOffDelay: 100 * time.Millisecond}
	assert.Zero(t, p.MinExposure())
}
