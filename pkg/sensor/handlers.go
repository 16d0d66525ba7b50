package sensor

import (
	"fmt"
	"log"
	"time"

	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"periph.io/x/conn/v3/physic"
)

var modulators = [3]tsl2585.Modulator{tsl2585.Mod0, tsl2585.Mod1, tsl2585.Mod2}

// bandRouting sends the photopic photodiodes to modulator 0.
var bandRouting = tsl2585.Routing{
	tsl2585.ModNone, tsl2585.Mod0, tsl2585.ModNone,
	tsl2585.Mod0, tsl2585.ModNone, tsl2585.ModNone,
}

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

type step struct {
	name string
	fn   func() error
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

func (c *Controller) reset() {
	c.info = DeviceInfo{}
	c.settings = settings.Settings{}
	c.hasSettings = false
	c.gain = [3]field[tsl2585.Gain]{}
	c.integration = field[integration]{}
	c.calibration = field[uint8]{}
	c.agc = field[agcConfig]{}
	c.discardNext = false
	c.sleeping = false
	c.lastInterrupt = time.Time{}
	c.lightOn = false
	c.mailbox.Clear()
}

func (c *Controller) handleAttach() {
	switch c.state {
	case StateInit:
		c.state = StateAttached
	case StateStarted, StateRunning:
		log.Printf("Unexpected attach while %s, resetting sensor", c.state)
		if c.state == StateRunning {
			c.disableSensor()
		}
		c.reset()
		c.state = StateAttached
	}
}

func (c *Controller) handleDetach() {
	if c.state < StateAttached {
		return
	}
	if c.state == StateRunning {
		c.disableSensor()
	}
	if c.state == StateStarted {
		if err := c.drv.Disable(); err != nil {
			log.Printf("Failed to stop detached sensor: %v", err)
		}
	}
	c.reset()
	c.state = StateInit
}

func (c *Controller) handleStart() error {
	if c.state != StateAttached {
		return ErrInvalidState
	}

	id, err := c.store.ReadID()
	if err != nil {
		return ioError("read device id", err)
	}
	if id.Kind != c.opts.Kind {
		return ioError("read device id", fmt.Errorf("%w: %s", settings.ErrKind, id.Kind))
	}

	s, err := c.store.Read()
	switch {
	case err != nil:
		log.Printf("Peripheral %s has no calibration: %v", id.SerialString(), err)
	case s.Kind != c.opts.Kind:
		log.Printf("Peripheral %s calibration is for a %s", id.SerialString(), s.Kind)
	default:
		c.settings = s
		c.hasSettings = true
	}

	chip, err := c.drv.Init()
	if err != nil {
		c.settings = settings.Settings{}
		c.hasSettings = false
		return ioError("init sensor", err)
	}

	c.info = DeviceInfo{Kind: c.opts.Kind, ID: id, Chip: chip}
	for i := range c.gain {
		c.gain[i] = pendingField(c.opts.Gain)
	}
	c.integration = pendingField(integration{sampleTime: c.opts.SampleTime, sampleCount: c.opts.SampleCount})
	c.calibration = pendingField(uint8(0))
	c.agc = pendingField(agcConfig{samples: DefaultAGCSamples})
	c.state = StateStarted

	log.Printf("Started %s %s rev %s, sensor rev 0x%02X", c.opts.Kind, id.SerialString(), id.Revision(), chip.Revision)
	return nil
}

func (c *Controller) handleStop() error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	if c.state == StateRunning {
		c.disableSensor()
	}
	c.state = StateAttached
	if c.light != nil && c.lightOn {
		if err := c.light.SetEnabled(false); err != nil {
			log.Printf("Failed to turn light off: %v", err)
		}
		c.lightOn = false
	}
	if err := c.drv.Disable(); err != nil {
		return ioError("stop sensor", err)
	}
	return nil
}

func (c *Controller) handleSettings() reply {
	if c.state < StateStarted {
		return reply{err: ErrInvalidState}
	}
	if !c.hasSettings {
		return reply{err: ErrNoSettings}
	}
	return reply{settings: c.settings, has: true}
}

func (c *Controller) handleSetSettings(s settings.Settings) error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	s.Kind = c.opts.Kind
	if err := c.store.Write(s); err != nil {
		return ioError("write settings", err)
	}
	stored, err := c.store.Read()
	if err != nil {
		c.hasSettings = false
		return ioError("verify settings", err)
	}
	c.settings = stored
	c.hasSettings = true
	return nil
}

func (c *Controller) setSpeed(f physic.Frequency) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.SetSpeed(f)
}

func (c *Controller) reconcile() error {
	for i, mod := range modulators {
		err := c.gain[i].reconcile(func(g tsl2585.Gain) error {
			return c.drv.SetModGain(mod, tsl2585.Step0, g)
		})
		if err != nil {
			return err
		}
	}
	return do(
		func() error { return c.integration.reconcile(c.writeIntegration) },
		func() error { return c.calibration.reconcile(c.drv.SetCalibrationNthIteration) },
		func() error { return c.agc.reconcile(c.writeAGC) },
	)
}

func (c *Controller) writeIntegration(v integration) error {
	return do(
		func() error { return c.drv.SetSampleTime(v.sampleTime) },
		func() error { return c.drv.SetALSNumSamples(v.sampleCount) },
	)
}

func (c *Controller) writeAGC(v agcConfig) error {
	if !v.enabled {
		return c.drv.SetAGCEnabled(false)
	}
	return do(
		func() error { return c.drv.SetAGCNumSamples(v.samples) },
		func() error { return c.drv.SetAGCMaxGain(tsl2585.Gain(settings.GainCount - 1)) },
		func() error { return c.drv.SetAGCEnabled(true) },
	)
}

func (c *Controller) writeBaseline() error {
	d := c.drv
	return do(
		func() error { return d.SetFIFOALSDataFormat(tsl2585.Mod0, tsl2585.Format32Bit) },
		func() error { return d.SetFIFODataWriteEnable(tsl2585.Mod0, true) },
		func() error { return d.SetFIFODataWriteEnable(tsl2585.Mod1, false) },
		func() error { return d.SetFIFODataWriteEnable(tsl2585.Mod2, false) },
		func() error { return d.SetFIFOALSStatusWriteEnable(true) },
		func() error { return d.SetModResidualEnable(tsl2585.Mod0, tsl2585.StepAll) },
		func() error { return d.SetModResidualEnable(tsl2585.Mod1, tsl2585.StepAll) },
		func() error { return d.SetModResidualEnable(tsl2585.Mod2, tsl2585.StepAll) },
		func() error { return d.SetModGainTableSelect(true) },
		func() error { return d.SetModPhotodiodeSMUX(tsl2585.Step0, bandRouting) },
		func() error { return d.SetModChannelEnabled(tsl2585.Mod0) },
	)
}

func (c *Controller) clearStatus() error {
	st, err := c.drv.Status()
	if err != nil || st == 0 {
		return err
	}
	return c.drv.SetStatus(st)
}

func (c *Controller) handleEnable(mode Mode) error {
	if c.state != StateStarted {
		return ErrInvalidState
	}
	if mode > ModeSingleShot {
		return ErrInvalidArgument
	}

	entries := 1
	if mode == ModeFast {
		entries = c.opts.FastBatch
	}

	// Pending values stay pending until the sensor is actually enabled.
	gain, itime, cal, agc := c.gain, c.integration, c.calibration, c.agc
	restore := func() {
		c.gain, c.integration, c.calibration, c.agc = gain, itime, cal, agc
	}

	err := do(
		c.reconcile,
		c.writeBaseline,
		func() error { return c.drv.SetFIFOThreshold(uint16(entries * tsl2585.EntrySize)) },
		func() error { return c.drv.SetSleepAfterInterrupt(mode == ModeSingleShot) },
		c.drv.ClearFIFO,
		c.clearStatus,
		func() error { return c.drv.SetInterruptEnable(tsl2585.IntFIFO) },
	)
	if err == nil && mode == ModeFast {
		err = c.setSpeed(c.opts.FastSpeed)
	}
	if err != nil {
		restore()
		return ioError("configure sensor", err)
	}

	c.mailbox.Clear()
	c.discardNext = false
	c.sleeping = false
	c.lastInterrupt = time.Time{}

	if err := c.drv.Enable(); err != nil {
		if mode == ModeFast {
			if serr := c.setSpeed(c.opts.IdleSpeed); serr != nil {
				log.Printf("Failed to restore bus speed: %v", serr)
			}
		}
		restore()
		return ioError("enable sensor", err)
	}

	c.mode = mode
	c.state = StateRunning
	return nil
}

// disableSensor stops a running sensor. Failures are logged and the sensor is
// considered stopped regardless.
func (c *Controller) disableSensor() {
	steps := []step{
		{"disable interrupts", func() error { return c.drv.SetInterruptEnable(0) }},
		{"disable sensor", c.drv.Disable},
		{"clear FIFO", c.drv.ClearFIFO},
		{"clear status", c.clearStatus},
	}
	if c.mode == ModeSingleShot {
		steps = append(steps, step{"clear sleep after interrupt", func() error { return c.drv.SetSleepAfterInterrupt(false) }})
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			log.Printf("Failed to %s: %v", s.name, err)
		}
	}
	if c.mode == ModeFast {
		if err := c.setSpeed(c.opts.IdleSpeed); err != nil {
			log.Printf("Failed to restore bus speed: %v", err)
		}
	}

	c.state = StateStarted
	c.discardNext = false
	c.sleeping = false
	c.mailbox.Clear()
}

func (c *Controller) handleDisable() error {
	if c.state != StateRunning {
		return ErrInvalidState
	}
	c.disableSensor()
	return nil
}

// applyNow writes a setting to a running sensor and makes sure the reading in
// flight is not delivered.
func (c *Controller) applyNow(write func() error) error {
	if err := write(); err != nil {
		return ioError("apply setting", err)
	}
	c.discardNext = true
	c.mailbox.Clear()
	return nil
}

func (c *Controller) handleSetGain(gain tsl2585.Gain, mod tsl2585.Modulator) error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	if !gain.Valid() {
		return ErrInvalidArgument
	}
	idx := -1
	for i, m := range modulators {
		if m == mod {
			idx = i
		}
	}
	if idx < 0 {
		return ErrInvalidArgument
	}

	if c.state != StateRunning {
		c.gain[idx].setPending(gain)
		return nil
	}
	err := c.applyNow(func() error { return c.drv.SetModGain(mod, tsl2585.Step0, gain) })
	if err != nil {
		return err
	}
	c.gain[idx].setApplied(gain)
	return nil
}

func (c *Controller) handleSetIntegration(sampleTime, sampleCount uint16) error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	if sampleTime > 0x7FF || sampleCount > 0x7FF {
		return ErrInvalidArgument
	}

	v := integration{sampleTime: sampleTime, sampleCount: sampleCount}
	if c.state != StateRunning {
		c.integration.setPending(v)
		return nil
	}
	if err := c.applyNow(func() error { return c.writeIntegration(v) }); err != nil {
		return err
	}
	c.integration.setApplied(v)
	return nil
}

func (c *Controller) handleSetModCalibration(iteration uint8) error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	if c.state != StateRunning {
		c.calibration.setPending(iteration)
		return nil
	}
	if err := c.applyNow(func() error { return c.drv.SetCalibrationNthIteration(iteration) }); err != nil {
		return err
	}
	c.calibration.setApplied(iteration)
	return nil
}

func (c *Controller) handleSetAGC(v agcConfig) error {
	if c.state < StateStarted {
		return ErrInvalidState
	}
	if v.samples > 0x7FF {
		return ErrInvalidArgument
	}
	if c.state != StateRunning {
		c.agc.setPending(v)
		return nil
	}
	if err := c.applyNow(func() error { return c.writeAGC(v) }); err != nil {
		return err
	}
	c.agc.setApplied(v)
	return nil
}

func (c *Controller) handleTriggerNext() error {
	if c.state != StateRunning || c.mode != ModeSingleShot {
		return ErrInvalidState
	}
	if err := c.drv.ClearSleepAfterInterrupt(); err != nil {
		return ioError("trigger reading", err)
	}
	c.sleeping = false
	return nil
}

func (c *Controller) handleLightEnable(on bool) error {
	if c.light == nil {
		return ErrUnsupported
	}
	if c.state < StateAttached {
		return ErrInvalidState
	}
	if err := c.light.SetEnabled(on); err != nil {
		return ioError("set light enable", err)
	}
	c.lightOn = on
	return nil
}

func (c *Controller) handleLightBrightness(level uint8) error {
	if c.light == nil {
		return ErrUnsupported
	}
	if c.state < StateAttached {
		return ErrInvalidState
	}
	if level > MaxBrightness {
		return ErrInvalidArgument
	}
	if err := c.light.SetBrightness(level); err != nil {
		return ioError("set light brightness", err)
	}
	c.brightness = level
	return nil
}
