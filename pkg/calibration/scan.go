package calibration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/golightmeter/pkg/sensor"
)

// transition is one detected lamp edge.
type transition struct {
	// delay runs from the drive command to the first sample past the edge.
	delay time.Duration
	// duration runs from that sample to the first settled sample.
	duration time.Duration
	integral float32
	samples  int
}

// equiv scales the transition duration by how much light it actually
// produced compared to the lamp running at level for the same time.
func (t transition) equiv(level float32) time.Duration {
	if t.samples == 0 || level <= 0 {
		return 0
	}
	scale := t.integral / (level * float32(t.samples))
	return fromMillis(millis(t.duration) * scale)
}

// thresholds derived from the reference statistics.
type thresholds struct {
	rising  float32 // off-state ceiling
	steady  float32 // lamp fully on
	turnOff float32 // lamp starts dimming
	falling float32 // lamp fully off
}

func (e *Engine) thresholds(ref Reference) thresholds {
	floor := e.cfg.ThresholdFloor
	t := thresholds{
		rising:  math32.Max(ref.Off.Max, floor),
		steady:  math32.Round(ref.On.Mean - ref.On.StdDev),
		turnOff: ref.On.Min,
		falling: math32.Max(math32.Round(ref.Off.Mean+ref.Off.StdDev), floor),
	}
	// Very quiet lamps never reach mean - stddev when that rounds up.
	if ref.On.StdDev < 1 {
		t.steady = ref.On.Min
	}
	return t
}

// buildProfile switches the enlarger on and off once and times both edges.
func (e *Engine) buildProfile(ctx context.Context, ref Reference) (Profile, error) {
	th := e.thresholds(ref)
	period := ref.SamplePeriod()

	if err := e.enable(sensor.ModeFast); err != nil {
		return Profile{}, err
	}

	e.sensor.ClearLastReading()
	onAt := e.now()
	if err := e.switchEnlarger(true); err != nil {
		return Profile{}, err
	}
	rise, err := e.scan(ctx, onAt, period,
		func(c float32) bool { return c > th.rising },
		func(c float32) bool { return c >= th.steady },
	)
	if err != nil {
		return Profile{}, err
	}

	if err := e.wait(ctx, e.cfg.StabilizeOn); err != nil {
		return Profile{}, err
	}

	e.sensor.ClearLastReading()
	offAt := e.now()
	if err := e.switchEnlarger(false); err != nil {
		return Profile{}, err
	}
	fall, err := e.scan(ctx, offAt, period,
		func(c float32) bool { return c < th.turnOff },
		func(c float32) bool { return c < th.falling },
	)
	if err != nil {
		return Profile{}, err
	}

	if err := e.wait(ctx, e.cfg.StabilizeOn); err != nil {
		return Profile{}, err
	}
	if err := e.disable(); err != nil {
		return Profile{}, err
	}

	return Profile{
		TurnOnDelay:   rise.delay.Round(time.Millisecond),
		RiseTime:      rise.duration.Round(time.Millisecond),
		RiseTimeEquiv: rise.equiv(ref.On.Mean),
		TurnOffDelay:  fall.delay.Round(time.Millisecond),
		FallTime:      fall.duration.Round(time.Millisecond),
		FallTimeEquiv: fall.equiv(ref.On.Mean),
	}, nil
}

// scan follows the reading stream from the drive time from until a sample
// satisfies crossed, then integrates samples until one satisfies settled.
// Each sample is timestamped from its batch's interrupt time going back one
// period per later sample.
func (e *Engine) scan(ctx context.Context, from time.Time, period time.Duration, crossed, settled func(float32) bool) (transition, error) {
	var (
		tr    transition
		start time.Time
		found bool
	)

	for {
		r, err := e.next(ctx)
		if err != nil {
			return tr, err
		}

		n := len(r.Results)
		for i, res := range r.Results {
			if res.Status == sensor.StatusInvalid {
				continue
			}
			at := r.At.Add(-time.Duration(n-1-i) * period)
			if at.Before(from) {
				continue
			}

			c := float32(res.Count)
			if !found {
				if !crossed(c) {
					continue
				}
				found = true
				start = at
				tr.delay = at.Sub(from)
			}

			tr.integral += c
			tr.samples++
			if settled(c) {
				tr.duration = at.Sub(start)
				return tr, nil
			}
		}

		if r.At.Sub(from) > e.cfg.MaxScanDuration {
			log.Printf("No transition after %v (edge found: %v)", r.At.Sub(from), found)
			return tr, fail(CodeTimeout, fmt.Errorf("%w within %v", ErrNoTransition, e.cfg.MaxScanDuration))
		}
	}
}
