package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/itohio/golightmeter/pkg/config"
	"github.com/itohio/golightmeter/pkg/enlarger"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/transport"
	"github.com/itohio/golightmeter/pkg/tsl2585"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// rig is an attached sensor controller plus the enlarger it calibrates.
type rig struct {
	ctrl     *sensor.Controller
	stick    *sensor.Stick
	enlarger enlarger.Enlarger
	closers  []func() error
}

func (r *rig) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func options(cfg *config.Config, kind settings.Kind) sensor.Options {
	return sensor.Options{
		Kind:        kind,
		IdleSpeed:   physic.Frequency(cfg.Device.IdleSpeedKHz) * physic.KiloHertz,
		FastSpeed:   physic.Frequency(cfg.Device.FastSpeedKHz) * physic.KiloHertz,
		Gain:        cfg.Sensor.Gain,
		SampleTime:  cfg.Sensor.SampleTime,
		SampleCount: cfg.Sensor.SampleCount,
	}
}

// newController creates the controller matching kind.
func (r *rig) newController(opts sensor.Options, light sensor.Light) {
	if opts.Kind == settings.KindStick {
		r.stick = sensor.NewStick(opts, light)
		r.ctrl = r.stick.Controller
	} else {
		r.ctrl = sensor.New(opts)
	}
	r.closers = append(r.closers, r.ctrl.Close)
}

// openHardware attaches to a peripheral on a host I²C bus. Sensor interrupts
// arrive on a GPIO pin.
func openHardware(ctx context.Context, cfg *config.Config) (*rig, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.Device.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.Device.Bus, err)
	}
	r := &rig{closers: []func() error{bus.Close}}

	pin := gpioreg.ByName(cfg.Device.Interrupt)
	if pin == nil {
		r.Close()
		return nil, fmt.Errorf("no GPIO pin named %q", cfg.Device.Interrupt)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		r.Close()
		return nil, fmt.Errorf("configure interrupt pin: %w", err)
	}

	tr := transport.NewPeriph(bus)
	opts := options(cfg, kind)
	opts.Driver = tsl2585.New(tr)
	opts.Store = settings.NewEEPROM(tr)
	opts.Bus = tr
	r.newController(opts, sensor.NewPotentiometer(tr))

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go watchInterrupt(watchCtx, pin, r.ctrl, done)
	r.closers = append(r.closers, func() error {
		cancel()
		<-done
		return pin.Halt()
	})

	r.ctrl.NotifyAttach()

	enl, err := openEnlarger(cfg, nil)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.enlarger = enl
	r.closers = append(r.closers, enl.Close)

	return r, nil
}

// watchInterrupt forwards falling edges of the sensor interrupt line.
func watchInterrupt(ctx context.Context, pin gpio.PinIO, ctrl *sensor.Controller, done chan<- struct{}) {
	defer close(done)
	for ctx.Err() == nil {
		if !pin.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		if !ctrl.NotifyInterrupt(time.Now()) {
			log.Printf("Sensor interrupt dropped (%d total)", ctrl.Drops())
		}
	}
}

// openMock builds a simulated peripheral lit by a simulated enlarger lamp.
func openMock(cfg *config.Config) (*rig, error) {
	kind, err := cfg.Kind()
	if err != nil {
		return nil, err
	}

	lamp := enlarger.NewMock(cfg.Mock.Lamp, cfg.Mock.Level, cfg.Mock.Dark)
	dev := tsl2585.NewMock(lamp.Intensity, tsl2585.MockOptions{
		Noise: cfg.Mock.Noise,
		Seed:  cfg.Mock.Seed,
	})

	cal := settings.Nominal(kind)
	store := settings.NewMemory(settings.ID{Kind: kind, RevMajor: 1, Serial: 1}, &cal)

	r := &rig{closers: []func() error{dev.Close}}
	opts := options(cfg, kind)
	opts.Driver = dev
	opts.Store = store
	r.newController(opts, &simulatedLight{})
	dev.SetNotify(func(at time.Time) { r.ctrl.NotifyInterrupt(at) })
	r.ctrl.NotifyAttach()

	enl, err := openEnlarger(cfg, lamp)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.enlarger = enl
	r.closers = append(r.closers, enl.Close)

	return r, nil
}

// openEnlarger connects the configured relay. The mock backend uses lamp,
// or a standalone simulated lamp when lamp is nil.
func openEnlarger(cfg *config.Config, lamp *enlarger.Mock) (enlarger.Enlarger, error) {
	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}

	switch backend {
	case enlarger.BackendSerial:
		s := enlarger.NewSerial(cfg.Enlarger.Serial.Port, cfg.Enlarger.Serial.Baud)
		if err := s.Connect(); err != nil {
			return nil, err
		}
		return s, nil
	case enlarger.BackendModbus:
		m, err := enlarger.NewModbus(cfg.Enlarger.Modbus)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	if lamp == nil {
		lamp = enlarger.NewMock(cfg.Mock.Lamp, cfg.Mock.Level, cfg.Mock.Dark)
	}
	return lamp, nil
}

// simulatedLight stands in for the stick light of a simulated peripheral.
type simulatedLight struct {
	on    bool
	level uint8
}

func (l *simulatedLight) SetEnabled(on bool) error {
	l.on = on
	log.Printf("Stick light on=%v level=%d", l.on, l.level)
	return nil
}

func (l *simulatedLight) SetBrightness(level uint8) error {
	l.level = level
	return nil
}
