package calibration

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

// Reference is the baseline a profile run is measured against.
type Reference struct {
	On    Stats
	Off   Stats
	Cycle Stats // per-sample interval in milliseconds
	Gain  tsl2585.Gain
	// Integration is the nominal integration time of one sample.
	Integration time.Duration
}

// SamplePeriod is the measured time between consecutive samples.
func (r Reference) SamplePeriod() time.Duration {
	return time.Duration(r.Cycle.Mean * float32(time.Millisecond))
}

func (e *Engine) collectReference(ctx context.Context) (Reference, error) {
	ref := Reference{Integration: tsl2585.IntegrationTime(e.cfg.SampleTime, e.cfg.SampleCount)}

	log.Printf("Turning enlarger on for baseline reading")
	if err := e.switchEnlarger(true); err != nil {
		return ref, err
	}
	log.Printf("Waiting for light to stabilize")
	if err := e.wait(ctx, e.cfg.StabilizeOn); err != nil {
		return ref, err
	}

	gain, err := e.selectGain(ctx)
	if err != nil {
		return ref, err
	}
	ref.Gain = gain
	log.Printf("Selected gain: %s", gain)

	log.Printf("Collecting data with enlarger on")
	on, err := e.collectCounts(ctx, e.cfg.ReferenceReadings)
	if err != nil {
		return ref, err
	}
	ref.On = ComputeStats(on)
	if err := e.disable(); err != nil {
		return ref, err
	}

	log.Printf("Measuring reading interval")
	cycle, err := e.collectIntervals(ctx, e.cfg.ReferenceReadings)
	if err != nil {
		return ref, err
	}
	ref.Cycle = ComputeStats(cycle)

	if err := e.switchEnlarger(false); err != nil {
		return ref, err
	}
	log.Printf("Waiting for light to stabilize")
	if err := e.wait(ctx, e.cfg.StabilizeOff); err != nil {
		return ref, err
	}

	log.Printf("Collecting data with enlarger off")
	if err := e.enable(sensor.ModeNormal); err != nil {
		return ref, err
	}
	off, err := e.collectCounts(ctx, e.cfg.ReferenceReadings)
	if err != nil {
		return ref, err
	}
	ref.Off = ComputeStats(off)
	return ref, e.disable()
}

// selectGain lets AGC range the sensor on the lit enlarger, then locks the
// gain it settled on. The sensor is left running in normal mode.
func (e *Engine) selectGain(ctx context.Context) (tsl2585.Gain, error) {
	err := do(
		func() error { return e.sensor.SetIntegration(e.cfg.SampleTime, e.cfg.SampleCount) },
		func() error { return e.sensor.SetGain(e.cfg.StartGain, tsl2585.Mod0) },
		func() error { return e.sensor.EnableAGC(e.cfg.AGCSamples) },
		func() error { return e.sensor.Enable(sensor.ModeNormal) },
	)
	if err != nil {
		return 0, fail(CodeSensorFault, err)
	}

	var r sensor.Reading
	for i := 0; i < e.cfg.AGCReadings; i++ {
		if r, err = e.next(ctx); err != nil {
			return 0, err
		}
	}

	res := r.Last()
	switch {
	case res.Status == sensor.StatusSaturatedAnalog || res.Status == sensor.StatusSaturatedDigital:
		return 0, fail(CodeSaturated, fmt.Errorf("saturated at gain %s", res.Gain))
	case res.Status != sensor.StatusValid:
		return 0, fail(CodeSensorFault, ErrNoValidReading)
	case res.Count < e.cfg.NoiseFloor:
		return 0, fail(CodeZeroReading, fmt.Errorf("count %d at gain %s", res.Count, res.Gain))
	}

	err = do(
		e.sensor.DisableAGC,
		func() error { return e.sensor.SetGain(res.Gain, tsl2585.Mod0) },
	)
	if err != nil {
		return 0, fail(CodeSensorFault, err)
	}
	return res.Gain, nil
}

// collectCounts gathers n valid sample counts from a running sensor.
func (e *Engine) collectCounts(ctx context.Context, n int) ([]float32, error) {
	values := make([]float32, 0, n)
	for len(values) < n {
		r, err := e.next(ctx)
		if err != nil {
			return nil, err
		}
		for _, res := range r.Results {
			switch res.Status {
			case sensor.StatusValid:
				values = append(values, float32(res.Count))
			case sensor.StatusSaturatedAnalog, sensor.StatusSaturatedDigital:
				return nil, fail(CodeSaturated, fmt.Errorf("saturated at gain %s", res.Gain))
			}
		}
	}
	return values[:n], nil
}

// collectIntervals runs the sensor in fast mode and gathers n per-sample
// intervals, in milliseconds, from the interrupt timestamps.
func (e *Engine) collectIntervals(ctx context.Context, n int) ([]float32, error) {
	if err := e.enable(sensor.ModeFast); err != nil {
		return nil, err
	}

	values := make([]float32, 0, n)
	for len(values) < n {
		r, err := e.next(ctx)
		if err != nil {
			return nil, err
		}
		if r.Elapsed <= 0 || len(r.Results) == 0 {
			continue
		}
		values = append(values, millis(r.Elapsed)/float32(len(r.Results)))
	}
	return values, e.disable()
}

func (e *Engine) validate(ref Reference) error {
	on, off := ref.On, ref.Off
	switch {
	case on.Min <= off.Max:
		return fail(CodeInvalidReferenceStats, ErrRangesOverlap)
	case on.Min-off.Max < e.cfg.MinRangeGap:
		return fail(CodeInvalidReferenceStats, ErrRangeGap)
	case on.Mean-off.Mean < e.cfg.MinMeanGap:
		return fail(CodeInvalidReferenceStats, ErrMeanGap)
	case ref.Cycle.Mean < millis(ref.Integration):
		return fail(CodeFail, fmt.Errorf("%w: %.3fms < %v", ErrCycleTooShort, ref.Cycle.Mean, ref.Integration))
	}
	return nil
}

// do runs steps in order and stops at the first failure.
func do(steps ...func() error) error {
	for _, fn := range steps {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}
