// Package sensor controls one light sensor peripheral.
//
// Every peripheral is owned by a single goroutine. Callers reach it through
// synchronous commands; interrupt and attach notifications are pushed without
// blocking. Readings are published through a single-slot mailbox that only
// ever holds the most recent one.
package sensor

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/itohio/golightmeter/pkg/latest"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/transport"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultQueueSize is the command queue depth.
	DefaultQueueSize = 16
	// DefaultFastBatch is the number of results per interrupt in fast mode.
	DefaultFastBatch = 8

	DefaultGain        = tsl2585.Gain256X
	DefaultSampleTime  = 719 // 1 ms
	DefaultSampleCount = 99  // 100 ms integration
	DefaultAGCSamples  = 19
)

// Options configures a controller.
type Options struct {
	Kind   settings.Kind
	Driver Driver
	Store  settings.Store
	// Bus is used for bus speed changes only and may be nil.
	Bus transport.Transport

	QueueSize   int
	FastBatch   int
	IdleSpeed   physic.Frequency
	FastSpeed   physic.Frequency
	Gain        tsl2585.Gain
	SampleTime  uint16
	SampleCount uint16
}

func (o *Options) ensureDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.FastBatch <= 0 {
		o.FastBatch = DefaultFastBatch
	}
	if o.IdleSpeed == 0 {
		o.IdleSpeed = transport.FastSpeed
	}
	if o.FastSpeed == 0 {
		o.FastSpeed = transport.FastPlusSpeed
	}
	if !o.Gain.Valid() || o.Gain == 0 {
		o.Gain = DefaultGain
	}
	if o.SampleTime == 0 {
		o.SampleTime = DefaultSampleTime
	}
	if o.SampleCount == 0 {
		o.SampleCount = DefaultSampleCount
	}
	if o.Kind == settings.KindUnknown {
		o.Kind = settings.KindProbe
	}
}

type eventKind uint8

const (
	evInterrupt eventKind = iota
	evAttach
	evDetach
	evStart
	evStop
	evState
	evDeviceInfo
	evSettings
	evSetSettings
	evEnable
	evDisable
	evSetGain
	evSetIntegration
	evIntegration
	evSetModCalibration
	evEnableAGC
	evDisableAGC
	evTriggerNext
	evLightEnable
	evLightBrightness
	evGetLightBrightness
)

type event struct {
	kind        eventKind
	at          time.Time
	mode        Mode
	gain        tsl2585.Gain
	mod         tsl2585.Modulator
	sampleTime  uint16
	sampleCount uint16
	iteration   uint8
	on          bool
	level       uint8
	settings    *settings.Settings
	reply       chan reply
}

type reply struct {
	err         error
	state       State
	info        DeviceInfo
	settings    settings.Settings
	has         bool
	level       uint8
	sampleTime  uint16
	sampleCount uint16
}

// Controller owns one sensor peripheral.
type Controller struct {
	opts    Options
	drv     Driver
	store   settings.Store
	bus     transport.Transport
	light   Light
	events  chan event
	mailbox *latest.Mailbox[Reading]
	drops   atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the event loop.
	state         State
	mode          Mode
	info          DeviceInfo
	settings      settings.Settings
	hasSettings   bool
	gain          [3]field[tsl2585.Gain]
	integration   field[integration]
	calibration   field[uint8]
	agc           field[agcConfig]
	discardNext   bool
	sleeping      bool
	lastInterrupt time.Time
	lightOn       bool
	brightness    uint8
	fifo          []byte
}

// New creates a controller and starts its event loop.
func New(opts Options) *Controller {
	return newController(opts, nil)
}

func newController(opts Options, light Light) *Controller {
	opts.ensureDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		opts:    opts,
		drv:     opts.Driver,
		store:   opts.Store,
		bus:     opts.Bus,
		light:   light,
		events:  make(chan event, opts.QueueSize),
		mailbox: latest.New[Reading](),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		fifo:    make([]byte, opts.FastBatch*tsl2585.EntrySize),
	}

	go c.run()
	return c
}

// Close stops the event loop, disabling the sensor if it is running.
func (c *Controller) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func (c *Controller) run() {
	defer close(c.done)

	c.state = StateInit
	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return
		case ev := <-c.events:
			r := c.handle(ev)
			if ev.reply != nil {
				ev.reply <- r
			}
		}
	}
}

func (c *Controller) shutdown() {
	if c.state == StateRunning {
		c.disableSensor()
	}
	if c.state == StateStarted {
		if err := c.drv.Disable(); err != nil {
			log.Printf("Failed to disable sensor on shutdown: %v", err)
		}
	}
}

func (c *Controller) handle(ev event) reply {
	switch ev.kind {
	case evInterrupt:
		c.handleInterrupt(ev.at)
		return reply{}
	case evAttach:
		c.handleAttach()
		return reply{}
	case evDetach:
		c.handleDetach()
		return reply{}
	case evStart:
		return reply{err: c.handleStart()}
	case evStop:
		return reply{err: c.handleStop()}
	case evState:
		return reply{state: c.state}
	case evDeviceInfo:
		if c.state < StateStarted {
			return reply{err: ErrInvalidState}
		}
		return reply{info: c.info}
	case evSettings:
		return c.handleSettings()
	case evSetSettings:
		return reply{err: c.handleSetSettings(*ev.settings)}
	case evEnable:
		return reply{err: c.handleEnable(ev.mode)}
	case evDisable:
		return reply{err: c.handleDisable()}
	case evSetGain:
		return reply{err: c.handleSetGain(ev.gain, ev.mod)}
	case evSetIntegration:
		return reply{err: c.handleSetIntegration(ev.sampleTime, ev.sampleCount)}
	case evIntegration:
		if c.state < StateStarted {
			return reply{err: ErrInvalidState}
		}
		v := c.integration.value
		return reply{sampleTime: v.sampleTime, sampleCount: v.sampleCount}
	case evSetModCalibration:
		return reply{err: c.handleSetModCalibration(ev.iteration)}
	case evEnableAGC:
		return reply{err: c.handleSetAGC(agcConfig{enabled: true, samples: ev.sampleCount})}
	case evDisableAGC:
		return reply{err: c.handleSetAGC(agcConfig{enabled: false, samples: c.agc.value.samples})}
	case evTriggerNext:
		return reply{err: c.handleTriggerNext()}
	case evLightEnable:
		return reply{err: c.handleLightEnable(ev.on)}
	case evLightBrightness:
		return reply{err: c.handleLightBrightness(ev.level)}
	case evGetLightBrightness:
		if c.light == nil {
			return reply{err: ErrUnsupported}
		}
		return reply{level: c.brightness}
	}
	return reply{err: ErrUnsupported}
}

// call sends ev and waits for the event loop to complete it.
func (c *Controller) call(ev event) reply {
	ev.reply = make(chan reply, 1)

	select {
	case c.events <- ev:
	case <-c.ctx.Done():
		return reply{err: ErrClosed}
	}

	select {
	case r := <-ev.reply:
		return r
	case <-c.done:
		return reply{err: ErrClosed}
	}
}

// notify pushes ev without blocking. It reports false when the queue is full.
func (c *Controller) notify(ev event) bool {
	select {
	case c.events <- ev:
		return true
	default:
		c.drops.Add(1)
		return false
	}
}

// NotifyInterrupt queues an interrupt observed at at. It never blocks.
// Interrupt handlers on a microcontroller push into an InterruptQueue instead.
func (c *Controller) NotifyInterrupt(at time.Time) bool {
	return c.notify(event{kind: evInterrupt, at: at})
}

// NotifyAttach reports that the peripheral has been connected.
func (c *Controller) NotifyAttach() bool {
	return c.notify(event{kind: evAttach})
}

// NotifyDetach reports that the peripheral has been disconnected.
func (c *Controller) NotifyDetach() bool {
	return c.notify(event{kind: evDetach})
}

// Drops returns the number of notifications lost to a full queue.
func (c *Controller) Drops() uint32 {
	return c.drops.Load()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	return c.call(event{kind: evState}).state
}

// Start reads the peripheral identity and calibration and probes the sensor.
func (c *Controller) Start() error {
	return c.call(event{kind: evStart}).err
}

// Stop powers the sensor down, disabling it first if needed.
func (c *Controller) Stop() error {
	return c.call(event{kind: evStop}).err
}

// DeviceInfo returns the identity read by Start.
func (c *Controller) DeviceInfo() (DeviceInfo, error) {
	r := c.call(event{kind: evDeviceInfo})
	return r.info, r.err
}

// HasSettings reports whether valid calibration data was loaded.
func (c *Controller) HasSettings() bool {
	return c.call(event{kind: evSettings}).has
}

// Settings returns the calibration data loaded by Start.
func (c *Controller) Settings() (settings.Settings, error) {
	r := c.call(event{kind: evSettings})
	return r.settings, r.err
}

// SetSettings writes new calibration data to the peripheral.
func (c *Controller) SetSettings(s settings.Settings) error {
	return c.call(event{kind: evSetSettings, settings: &s}).err
}

// Enable starts measurements in the given mode.
func (c *Controller) Enable(mode Mode) error {
	return c.call(event{kind: evEnable, mode: mode}).err
}

// Disable stops measurements.
func (c *Controller) Disable() error {
	return c.call(event{kind: evDisable}).err
}

// SetGain sets the gain of one modulator.
func (c *Controller) SetGain(gain tsl2585.Gain, mod tsl2585.Modulator) error {
	return c.call(event{kind: evSetGain, gain: gain, mod: mod}).err
}

// SetIntegration sets the sample time and the number of samples per
// integration cycle.
func (c *Controller) SetIntegration(sampleTime, sampleCount uint16) error {
	return c.call(event{kind: evSetIntegration, sampleTime: sampleTime, sampleCount: sampleCount}).err
}

// Integration returns the configured sample time and sample count, whether
// already written to the sensor or pending for the next enable.
func (c *Controller) Integration() (sampleTime, sampleCount uint16, err error) {
	r := c.call(event{kind: evIntegration})
	return r.sampleTime, r.sampleCount, r.err
}

// SetModCalibration sets how often the modulators recalibrate.
func (c *Controller) SetModCalibration(iteration uint8) error {
	return c.call(event{kind: evSetModCalibration, iteration: iteration}).err
}

// EnableAGC turns automatic gain control on.
func (c *Controller) EnableAGC(sampleCount uint16) error {
	return c.call(event{kind: evEnableAGC, sampleCount: sampleCount}).err
}

// DisableAGC turns automatic gain control off, keeping the last gain.
func (c *Controller) DisableAGC() error {
	return c.call(event{kind: evDisableAGC}).err
}

// TriggerNextReading resumes a single-shot sensor.
func (c *Controller) TriggerNextReading() error {
	return c.call(event{kind: evTriggerNext}).err
}

// ClearLastReading drops any reading nobody has taken yet.
func (c *Controller) ClearLastReading() {
	c.mailbox.Clear()
}

// NextReading waits up to timeout for the next reading.
func (c *Controller) NextReading(ctx context.Context, timeout time.Duration) (Reading, error) {
	r, err := c.mailbox.Get(ctx, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return Reading{}, ctx.Err()
		}
		return Reading{}, ErrTimeout
	}
	return r, nil
}
