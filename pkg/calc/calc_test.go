package calc

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"github.com/stretchr/testify/assert"
)

func TestIntegrationTimeMs(t *testing.T) {
	tests := []struct {
		name        string
		sampleTime  uint16
		sampleCount uint16
		want        float32
	}{
		{name: "single tick", sampleTime: 0, sampleCount: 0, want: 0.001388889},
		{name: "100ms", sampleTime: 719, sampleCount: 99, want: 100},
		{name: "1ms", sampleTime: 719, sampleCount: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, IntegrationTimeMs(tt.sampleTime, tt.sampleCount), 1e-4)
		})
	}
}

func TestBasicReading(t *testing.T) {
	table := settings.Nominal(settings.KindProbe).Gain

	got := BasicReading(table, 16*100*128, tsl2585.Gain128X, 719, 99)
	assert.InDelta(t, 1.0, got, 1e-4)

	half := BasicReading(table, 16*100*128, tsl2585.Gain256X, 719, 99)
	assert.InDelta(t, 0.5, half, 1e-4)
}

func TestBasicReading_MonotonicInIntegrationTime(t *testing.T) {
	table := settings.Nominal(settings.KindProbe).Gain
	const raw = 123456

	for g := tsl2585.Gain0_5X; g <= tsl2585.GainMax; g++ {
		prev := math32.Inf(1)
		for _, count := range []uint16{0, 1, 9, 49, 99, 499, 2047} {
			v := BasicReading(table, raw, g, 719, count)
			assert.True(t, IsValid(v), "gain %s count %d", g, count)
			assert.Less(t, v, prev, "gain %s count %d", g, count)
			prev = v
		}
	}
}

func TestBasicReading_NaN(t *testing.T) {
	table := settings.Nominal(settings.KindProbe).Gain

	t.Run("gain out of range", func(t *testing.T) {
		for _, g := range []tsl2585.Gain{14, 15, 200, 255} {
			assert.True(t, math32.IsNaN(BasicReading(table, 1000, g, 719, 99)), "gain %d", g)
		}
	})

	t.Run("missing calibration", func(t *testing.T) {
		broken := table
		broken[tsl2585.Gain64X] = math32.NaN()
		assert.True(t, math32.IsNaN(BasicReading(broken, 1000, tsl2585.Gain64X, 719, 99)))
		assert.False(t, math32.IsNaN(BasicReading(broken, 1000, tsl2585.Gain32X, 719, 99)))
	})

	t.Run("erased calibration", func(t *testing.T) {
		var erased settings.GainTable
		assert.True(t, math32.IsNaN(BasicReading(erased, 1000, tsl2585.Gain1X, 719, 99)))
	})
}

func TestGainValue_AboveCalibratedRange(t *testing.T) {
	var table settings.GainTable
	assert.Equal(t, float32(512), GainValue(table, tsl2585.Gain512X))
	assert.Equal(t, float32(4096), GainValue(table, tsl2585.Gain4096X))
}

func TestSlopeCorrected(t *testing.T) {
	identity := settings.Slope{B0: 0, B1: 1, B2: 0}
	assert.InDelta(t, 42.0, SlopeCorrected(identity, 42), 1e-3)

	offset := settings.Slope{B0: 1, B1: 1, B2: 0}
	assert.InDelta(t, 420.0, SlopeCorrected(offset, 42), 1e-2)

	quadratic := settings.Slope{B0: 0, B1: 1, B2: 0.25}
	assert.InDelta(t, 1000.0, SlopeCorrected(quadratic, 100), 1e-1)

	nan := settings.Slope{B0: math32.NaN(), B1: 1}
	assert.True(t, math32.IsNaN(SlopeCorrected(nan, 42)))

	dark := settings.Slope{B0: 0.01, B1: 1.02, B2: 0.003}
	assert.Equal(t, float32(0), SlopeCorrected(dark, 0))
}

func TestCalculator_Dark(t *testing.T) {
	cal := settings.Nominal(settings.KindProbe)
	cal.Slope = settings.Slope{B0: 0.01, B1: 1.02, B2: 0.003}
	cal.Target = settings.LinearTarget{Slope: 3, Intercept: 0}

	c := New(cal)
	basic := c.Basic(0, tsl2585.Gain128X, 719, 99)
	assert.True(t, IsValid(basic))
	assert.Equal(t, float32(0), basic)
	assert.Equal(t, float32(0), c.Lux(0, tsl2585.Gain128X, 719, 99))
}

func TestLux(t *testing.T) {
	target := settings.LinearTarget{Slope: 2, Intercept: -1}

	tests := []struct {
		name  string
		basic float32
		want  float32
	}{
		{name: "linear", basic: 10, want: 19},
		{name: "clamped", basic: 0.25, want: 0},
		{name: "zero", basic: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Lux(target, tt.basic), 1e-6)
		})
	}

	assert.True(t, math32.IsNaN(Lux(settings.LinearTarget{Slope: math32.NaN()}, 1)))
	assert.True(t, math32.IsNaN(Lux(target, math32.NaN())))
}

func TestDensity(t *testing.T) {
	target := settings.DensityTarget{LoDensity: 0, LoReading: 1, HiDensity: 2, HiReading: 0.01}

	assert.InDelta(t, 0.0, Density(target, 1), 1e-5)
	assert.InDelta(t, 1.0, Density(target, 0.1), 1e-5)
	assert.InDelta(t, 2.0, Density(target, 0.01), 1e-5)
	assert.True(t, math32.IsNaN(Density(target, 0)))
}

func TestCalculator(t *testing.T) {
	probe := settings.Nominal(settings.KindProbe)
	probe.Slope = settings.Slope{B0: 1, B1: 1, B2: 0}
	probe.Target = settings.LinearTarget{Slope: 3, Intercept: 0}

	c := New(probe)
	assert.InDelta(t, 10.0, c.Basic(16*100*128, tsl2585.Gain128X, 719, 99), 1e-3)
	assert.InDelta(t, 30.0, c.Lux(16*100*128, tsl2585.Gain128X, 719, 99), 1e-2)

	stick := probe
	stick.Kind = settings.KindStick
	s := New(stick)
	assert.InDelta(t, 1.0, s.Basic(16*100*128, tsl2585.Gain128X, 719, 99), 1e-4)
}
