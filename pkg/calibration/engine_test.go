package calibration

import (
	"context"
	"testing"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func between(t *testing.T, d, lo, hi time.Duration, name string) {
	t.Helper()
	assert.GreaterOrEqual(t, d, lo, name)
	assert.LessOrEqual(t, d, hi, name)
}

func TestEngine_Run(t *testing.T) {
	f := newFixture(Config{Iterations: 3})

	p, err := f.engine.Run(context.Background())
	require.NoError(t, err)

	between(t, p.TurnOnDelay, 30*time.Millisecond, 37*time.Millisecond, "turn on delay")
	between(t, p.RiseTime, 13*time.Millisecond, 26*time.Millisecond, "rise time")
	between(t, p.TurnOffDelay, 40*time.Millisecond, 47*time.Millisecond, "turn off delay")
	between(t, p.FallTime, 13*time.Millisecond, 26*time.Millisecond, "fall time")
	assert.Positive(t, p.RiseTimeEquiv)
	assert.Positive(t, p.FallTimeEquiv)
	assert.True(t, p.Valid())

	assert.Equal(t, sensor.StateStarted, f.sensor.state)
	assert.False(t, f.sensor.agc)
	assert.Equal(t, tsl2585.Gain16X, f.sensor.gain)
	assert.True(t, f.enlargerOff())

	cfg := f.engine.Config()
	assert.Contains(t, f.sensor.integrations, [2]uint16{cfg.SampleTime, cfg.SampleCount})
	assert.Equal(t, [2]uint16{719, 99}, f.sensor.integration, "integration time not restored")
}

func TestEngine_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		ctx   func() context.Context
		code  Code
		err   error
	}{
		{
			name:  "not started",
			setup: func(f *fixture) { f.sensor.state = sensor.StateAttached },
			code:  CodeSensorFault,
			err:   ErrNotStarted,
		},
		{
			name:  "saturated",
			setup: func(f *fixture) { f.sensor.status = sensor.StatusSaturatedAnalog },
			code:  CodeSaturated,
		},
		{
			name:  "zero reading",
			setup: func(f *fixture) { f.lamp.level = 0 },
			code:  CodeZeroReading,
		},
		{
			name:  "dim lamp",
			setup: func(f *fixture) { f.lamp.level, f.lamp.dark = 12, 5 },
			code:  CodeInvalidReferenceStats,
			err:   ErrRangeGap,
		},
		{
			name:  "interval shorter than integration",
			setup: func(f *fixture) { f.sensor.period = 4 * time.Millisecond },
			code:  CodeFail,
			err:   ErrCycleTooShort,
		},
		{
			name: "lamp never comes on",
			setup: func(f *fixture) {
				f.lamp.onDelay = 20 * time.Second
				f.engine.cfg.StabilizeOn = 30 * time.Second
			},
			code: CodeTimeout,
			err:  ErrNoTransition,
		},
		{
			name: "cancelled",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			code: CodeUserCancel,
			err:  context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(Config{Iterations: 2})
			if tt.setup != nil {
				tt.setup(f)
			}
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			_, err := f.engine.Run(ctx)
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.ErrorIs(t, err, tt.code)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}

			assert.NotEqual(t, sensor.StateRunning, f.sensor.state, "sensor left running")
			assert.True(t, f.enlargerOff(), "enlarger left on")
			assert.Equal(t, [2]uint16{719, 99}, f.sensor.integration, "integration time not restored")
		})
	}
}

func TestEngine_DisablesRunningSensor(t *testing.T) {
	f := newFixture(Config{Iterations: 1})
	f.sensor.state = sensor.StateRunning

	_, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sensor.StateStarted, f.sensor.state)
}

func TestEngine_Wait(t *testing.T) {
	f := newFixture(Config{})
	start := f.clock.Now()

	require.NoError(t, f.engine.wait(context.Background(), 95*time.Millisecond))
	assert.Equal(t, 95*time.Millisecond, f.clock.Now().Sub(start))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.engine.wait(ctx, time.Second)
	assert.ErrorIs(t, err, CodeUserCancel)
}

func TestConfig_Defaults(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, 100, c.ReferenceReadings)
	assert.Equal(t, 5, c.Iterations)
	assert.Equal(t, 10*time.Second, c.MaxScanDuration)
	assert.Equal(t, 5*time.Second, c.StabilizeOn)
	assert.Equal(t, 2*time.Second, c.StabilizeOff)
	assert.Equal(t, float32(10), c.MinRangeGap)
	assert.Equal(t, float32(20), c.MinMeanGap)
	assert.Equal(t, float32(2), c.ThresholdFloor)

	c = Config{Iterations: 3}
	c.ensureDefaults()
	assert.Equal(t, 3, c.Iterations)
}
