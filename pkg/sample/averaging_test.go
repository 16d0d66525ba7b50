package sample

import (
	"testing"
	"time"

	"github.com/itohio/golightmeter/pkg/calc"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valid(at time.Time, basic float32) Sample {
	return Sample{At: at, Raw: uint32(basic * 100), Gain: tsl2585.Gain16X, Basic: basic, Lux: 2 * basic}
}

func TestAverage(t *testing.T) {
	now := time.Now()
	samples := []Sample{valid(now, 1), valid(now.Add(time.Millisecond), 2), valid(now.Add(2*time.Millisecond), 6)}

	got := Average(samples)
	assert.Equal(t, samples[2].At, got.At)
	assert.Equal(t, tsl2585.Gain16X, got.Gain)
	assert.Equal(t, uint32(300), got.Raw)
	assert.InDelta(t, 3.0, got.Basic, 1e-6)
	assert.InDelta(t, 6.0, got.Lux, 1e-6)
	assert.True(t, got.Valid())
}

func TestAverage_Empty(t *testing.T) {
	got := Average(nil)
	assert.False(t, got.Valid())
	assert.False(t, calc.IsValid(got.Basic))
}

func TestNewAveragingConverter_Window(t *testing.T) {
	in := make(chan Sample, 10)
	now := time.Now()
	for i := 1; i <= 5; i++ {
		in <- valid(now.Add(time.Duration(i)*time.Millisecond), float32(i))
	}
	close(in)

	var got []Sample
	for s := range NewAveragingConverter(3, 10)(in) {
		got = append(got, s)
	}

	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.InDelta(t, 4.0, last.Basic, 1e-6)
	assert.Equal(t, now.Add(5*time.Millisecond), last.At)
}

func TestNewAveragingConverter_PassesInvalid(t *testing.T) {
	in := make(chan Sample, 2)
	in <- Sample{At: time.Now(), Status: sensor.StatusSaturatedAnalog}
	close(in)

	var got []Sample
	for s := range NewAveragingConverter(3, 10)(in) {
		got = append(got, s)
	}

	require.Len(t, got, 1)
	assert.Equal(t, sensor.StatusSaturatedAnalog, got[0].Status)
}

func TestNewAveragingConverter_Periodic(t *testing.T) {
	prev := averagingInterval
	averagingInterval = 5 * time.Millisecond
	defer func() { averagingInterval = prev }()

	in := make(chan Sample)
	out := NewAveragingConverter(2, 10)(in)

	in <- valid(time.Now(), 4)
	select {
	case s := <-out:
		assert.InDelta(t, 4.0, s.Basic, 1e-6)
	case <-time.After(time.Second):
		t.Fatal("no averaged sample")
	}

	close(in)
	_, ok := <-out
	assert.False(t, ok, "nothing new to flush")
}

func TestNewAveragingConverter_EmptyChannel(t *testing.T) {
	in := make(chan Sample)
	out := NewAveragingConverter(0, 0)(in)
	close(in)

	_, ok := <-out
	assert.False(t, ok)
}
