// Package calibration measures how an enlarger lamp switches on and off.
//
// A run collects reference readings with the enlarger on and off, checks
// that the two are far enough apart to tell them apart, then repeatedly
// switches the enlarger and watches the reading stream for the edges. The
// per-run timings are combined with a geometric mean.
package calibration

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

const (
	DefaultReferenceReadings = 100
	DefaultIterations        = 5
	DefaultMaxScanDuration   = 10 * time.Second
	DefaultStabilizeOn       = 5 * time.Second
	DefaultStabilizeOff      = 2 * time.Second
	DefaultSettleDelay       = time.Second
	DefaultReadingTimeout    = time.Second
	DefaultPollInterval      = 10 * time.Millisecond

	DefaultMinRangeGap    = 10
	DefaultMinMeanGap     = 20
	DefaultThresholdFloor = 2
	DefaultNoiseFloor     = 1

	DefaultStartGain   = tsl2585.Gain256X
	DefaultAGCSamples  = 19
	DefaultAGCReadings = 5
	DefaultSampleTime  = 719 // 1 ms
	DefaultSampleCount = 4   // 5 ms integration
)

// Sensor is the part of the sensor controller calibration drives.
type Sensor interface {
	State() sensor.State
	Enable(mode sensor.Mode) error
	Disable() error
	SetGain(gain tsl2585.Gain, mod tsl2585.Modulator) error
	SetIntegration(sampleTime, sampleCount uint16) error
	Integration() (sampleTime, sampleCount uint16, err error)
	EnableAGC(sampleCount uint16) error
	DisableAGC() error
	ClearLastReading()
	NextReading(ctx context.Context, timeout time.Duration) (sensor.Reading, error)
}

var _ Sensor = (*sensor.Controller)(nil)

// Enlarger switches the enlarger lamp.
type Enlarger interface {
	SetEnabled(on bool) error
}

// Config holds the calibration tunables. Zero fields take defaults.
type Config struct {
	ReferenceReadings int           `yaml:"reference_readings"`
	Iterations        int           `yaml:"iterations"`
	MaxScanDuration   time.Duration `yaml:"max_scan_duration"`
	StabilizeOn       time.Duration `yaml:"stabilize_on"`
	StabilizeOff      time.Duration `yaml:"stabilize_off"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ReadingTimeout    time.Duration `yaml:"reading_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`

	// MinRangeGap is the smallest allowed distance between the lowest on
	// reading and the highest off reading.
	MinRangeGap float32 `yaml:"min_range_gap"`
	// MinMeanGap is the smallest allowed distance between the on and off means.
	MinMeanGap     float32 `yaml:"min_mean_gap"`
	ThresholdFloor float32 `yaml:"threshold_floor"`
	NoiseFloor     uint32  `yaml:"noise_floor"`

	StartGain   tsl2585.Gain `yaml:"start_gain"`
	AGCSamples  uint16       `yaml:"agc_samples"`
	AGCReadings int          `yaml:"agc_readings"`
	SampleTime  uint16       `yaml:"sample_time"`
	SampleCount uint16       `yaml:"sample_count"`
}

// DefaultConfig returns the standard calibration tunables.
func DefaultConfig() Config {
	var c Config
	c.ensureDefaults()
	return c
}

func (c *Config) ensureDefaults() {
	if c.ReferenceReadings <= 0 {
		c.ReferenceReadings = DefaultReferenceReadings
	}
	if c.Iterations <= 0 {
		c.Iterations = DefaultIterations
	}
	if c.MaxScanDuration <= 0 {
		c.MaxScanDuration = DefaultMaxScanDuration
	}
	if c.StabilizeOn <= 0 {
		c.StabilizeOn = DefaultStabilizeOn
	}
	if c.StabilizeOff <= 0 {
		c.StabilizeOff = DefaultStabilizeOff
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ReadingTimeout <= 0 {
		c.ReadingTimeout = DefaultReadingTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.MinRangeGap <= 0 {
		c.MinRangeGap = DefaultMinRangeGap
	}
	if c.MinMeanGap <= 0 {
		c.MinMeanGap = DefaultMinMeanGap
	}
	if c.ThresholdFloor <= 0 {
		c.ThresholdFloor = DefaultThresholdFloor
	}
	if c.NoiseFloor == 0 {
		c.NoiseFloor = DefaultNoiseFloor
	}
	if c.StartGain == 0 || !c.StartGain.Valid() {
		c.StartGain = DefaultStartGain
	}
	if c.AGCSamples == 0 {
		c.AGCSamples = DefaultAGCSamples
	}
	if c.AGCReadings <= 0 {
		c.AGCReadings = DefaultAGCReadings
	}
	if c.SampleTime == 0 {
		c.SampleTime = DefaultSampleTime
	}
	if c.SampleCount == 0 {
		c.SampleCount = DefaultSampleCount
	}
}

// Engine runs enlarger calibrations.
type Engine struct {
	cfg      Config
	sensor   Sensor
	enlarger Enlarger

	now   func() time.Time
	sleep func(time.Duration)
}

// New returns an engine driving s and enlarger.
func New(s Sensor, enlarger Enlarger, cfg Config) *Engine {
	cfg.ensureDefaults()
	return &Engine{
		cfg:      cfg,
		sensor:   s,
		enlarger: enlarger,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// Config returns the tunables in use.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run performs a complete calibration. The sensor must be started. On return
// the sensor is disabled, its integration time is the one it had before the
// run and the enlarger is off, whatever the outcome. Gain and AGC are left as
// calibration set them. Failures carry a Code, see CodeOf.
func (e *Engine) Run(ctx context.Context) (Profile, error) {
	defer e.shutdown()

	log.Printf("Starting enlarger calibration")

	switch st := e.sensor.State(); {
	case st == sensor.StateRunning:
		if err := e.sensor.Disable(); err != nil {
			return Profile{}, fail(CodeSensorFault, err)
		}
	case st < sensor.StateStarted:
		return Profile{}, fail(CodeSensorFault, ErrNotStarted)
	}
	sampleTime, sampleCount, err := e.sensor.Integration()
	if err != nil {
		return Profile{}, fail(CodeSensorFault, err)
	}
	defer e.restoreIntegration(sampleTime, sampleCount)

	if err := e.enlarger.SetEnabled(false); err != nil {
		return Profile{}, fail(CodeFail, err)
	}

	ref, err := e.collectReference(ctx)
	if err != nil {
		log.Printf("Could not collect reference stats: %v", err)
		return Profile{}, err
	}
	log.Printf("Enlarger on: %v", ref.On)
	log.Printf("Enlarger off: %v", ref.Off)
	log.Printf("Reading interval (ms): %v", ref.Cycle)

	if err := e.validate(ref); err != nil {
		log.Printf("Reference stats are not usable for calibration: %v", err)
		return Profile{}, err
	}

	if err := e.wait(ctx, e.cfg.SettleDelay); err != nil {
		return Profile{}, err
	}

	runs := make([]Profile, 0, e.cfg.Iterations)
	for i := 0; i < e.cfg.Iterations; i++ {
		log.Printf("Profile run %d...", i+1)
		p, err := e.buildProfile(ctx, ref)
		if err != nil {
			log.Printf("Could not build profile: %v", err)
			return Profile{}, err
		}
		log.Printf("Run %d: %v", i+1, p)
		runs = append(runs, p)
	}

	p := Aggregate(runs)
	log.Printf("Calibrated enlarger: %v", p)
	return p, nil
}

// shutdown leaves the sensor disabled and the enlarger off.
func (e *Engine) shutdown() {
	if err := e.sensor.Disable(); err != nil && !errors.Is(err, sensor.ErrInvalidState) {
		log.Printf("Failed to disable sensor: %v", err)
	}
	if err := e.enlarger.SetEnabled(false); err != nil {
		log.Printf("Failed to turn enlarger off: %v", err)
	}
}

func (e *Engine) restoreIntegration(sampleTime, sampleCount uint16) {
	if err := e.sensor.SetIntegration(sampleTime, sampleCount); err != nil {
		log.Printf("Failed to restore integration time: %v", err)
	}
}

// cancelled polls ctx without blocking.
func cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fail(CodeUserCancel, ctx.Err())
	default:
		return nil
	}
}

// wait sleeps for d, polling for cancellation every PollInterval.
func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	deadline := e.now().Add(d)
	for {
		if err := cancelled(ctx); err != nil {
			return err
		}
		left := deadline.Sub(e.now())
		if left <= 0 {
			return nil
		}
		e.sleep(min(left, e.cfg.PollInterval))
	}
}

// next returns the next reading, classifying failures.
func (e *Engine) next(ctx context.Context) (sensor.Reading, error) {
	if err := cancelled(ctx); err != nil {
		return sensor.Reading{}, err
	}
	r, err := e.sensor.NextReading(ctx, e.cfg.ReadingTimeout)
	switch {
	case err == nil:
		return r, nil
	case ctx.Err() != nil:
		return r, fail(CodeUserCancel, ctx.Err())
	default:
		return r, fail(CodeSensorFault, err)
	}
}

func (e *Engine) enable(mode sensor.Mode) error {
	if err := e.sensor.Enable(mode); err != nil {
		return fail(CodeSensorFault, err)
	}
	return nil
}

func (e *Engine) disable() error {
	if err := e.sensor.Disable(); err != nil {
		return fail(CodeSensorFault, err)
	}
	return nil
}

func (e *Engine) switchEnlarger(on bool) error {
	if err := e.enlarger.SetEnabled(on); err != nil {
		return fail(CodeFail, err)
	}
	return nil
}
