package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/itohio/golightmeter/pkg/calc"
	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/config"
	"github.com/itohio/golightmeter/pkg/enlarger"
	"github.com/itohio/golightmeter/pkg/meter"
	"github.com/itohio/golightmeter/pkg/output"
	"github.com/itohio/golightmeter/pkg/output/console"
	"github.com/itohio/golightmeter/pkg/output/mqtt"
	"github.com/itohio/golightmeter/pkg/sample"
	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/settings"
)

type app struct {
	cfg  *config.Config
	mock bool
}

// open attaches to the peripheral and starts the controller.
func (a *app) open(ctx context.Context) (*rig, error) {
	var (
		r   *rig
		err error
	)
	if a.mock {
		r, err = openMock(a.cfg)
	} else {
		r, err = openHardware(ctx, a.cfg)
	}
	if err != nil {
		return nil, err
	}

	if err := r.ctrl.Start(); err != nil {
		r.Close()
		return nil, fmt.Errorf("start sensor: %w", err)
	}
	return r, nil
}

func (a *app) output() (output.Output, error) {
	switch a.cfg.Output.Kind {
	case "console":
		return console.NewConsole(os.Stdout), nil
	case "mqtt":
		return mqtt.NewMQTT(a.cfg.Output.MQTT)
	}
	return nil, fmt.Errorf("unknown output %q", a.cfg.Output.Kind)
}

func (a *app) ports() error {
	ports, err := enlarger.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%s\t%s\n", p.Name, p.Description)
	}
	return nil
}

func (a *app) info() error {
	r, err := a.open(context.Background())
	if err != nil {
		return err
	}
	defer r.Close()

	info, err := r.ctrl.DeviceInfo()
	if err != nil {
		return err
	}
	fmt.Printf("kind:     %s\n", info.Kind)
	fmt.Printf("revision: %s\n", info.ID.Revision())
	fmt.Printf("serial:   %s\n", info.ID.SerialString())
	fmt.Printf("chip:     0x%02X rev 0x%02X\n", info.Chip.ID, info.Chip.Revision)
	fmt.Printf("settings: %v\n", r.ctrl.HasSettings())
	if r.stick != nil {
		level, err := r.stick.LightBrightness()
		if err != nil {
			return err
		}
		fmt.Printf("light:    %d/%d\n", level, sensor.MaxBrightness)
	}
	return nil
}

// read streams converted samples until ctx is done or count readings arrived.
func (a *app) read(ctx context.Context, count int) error {
	mode, err := a.cfg.SensorMode()
	if err != nil {
		return err
	}

	out, err := a.output()
	if err != nil {
		return err
	}
	defer out.Close()

	r, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	cal, err := r.ctrl.Settings()
	if errors.Is(err, sensor.ErrNoSettings) {
		log.Printf("Using nominal calibration, readings are approximate")
		kind, _ := a.cfg.Kind()
		cal, err = settings.Nominal(kind), nil
	}
	if err != nil {
		return err
	}

	if a.cfg.Sensor.AGC {
		if err := r.ctrl.EnableAGC(a.cfg.Sensor.AGCSamples); err != nil {
			return err
		}
	}
	if err := r.ctrl.Enable(mode); err != nil {
		return err
	}
	defer r.ctrl.Disable()

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readings := sensor.Stream(readCtx, r.ctrl, a.cfg.Sensor.ReadingTimeout, 0)
	if count > 0 {
		readings = limit(readings, count, cancel)
	}
	if mode == sensor.ModeSingleShot {
		readings = trigger(readCtx, r.ctrl, readings)
	}

	samples := sample.NewConverter(calc.New(cal), 0)(readings)
	if n := a.cfg.Sensor.AverageSamples; n > 0 {
		samples = sample.NewAveragingConverter(n, 0)(samples)
	}

	exposures := meter.New(a.cfg.Exposure)
	exposures.OnExposure(func(e meter.Exposure) {
		log.Printf("Exposure %v, peak %.3f, integral %.4f", e.Duration(), e.Peak, e.Integral)
	})
	meterIn := make(chan sample.Sample, 100)
	meterDone := make(chan struct{})
	go func() {
		defer close(meterDone)
		exposures.ProcessSamples(meterIn)
	}()
	defer func() {
		close(meterIn)
		<-meterDone
	}()

	for s := range samples {
		if err := out.Publish([]sample.Sample{s}); err != nil {
			return err
		}
		select {
		case meterIn <- s:
		default:
			log.Printf("Exposure meter busy, dropping sample")
		}
	}
	return nil
}

// limit forwards the first n readings and then cancels the stream.
func limit(in <-chan sensor.Reading, n int, cancel context.CancelFunc) <-chan sensor.Reading {
	out := make(chan sensor.Reading)
	go func() {
		defer close(out)
		for r := range in {
			if n == 0 {
				continue
			}
			out <- r
			n--
			if n == 0 {
				cancel()
			}
		}
	}()
	return out
}

// trigger re-arms a single-shot sensor after every reading.
func trigger(ctx context.Context, ctrl *sensor.Controller, in <-chan sensor.Reading) <-chan sensor.Reading {
	out := make(chan sensor.Reading)
	go func() {
		defer close(out)
		for r := range in {
			select {
			case out <- r:
			case <-ctx.Done():
				continue
			}
			if err := ctrl.TriggerNextReading(); err != nil {
				log.Printf("Failed to trigger next reading: %v", err)
			}
		}
	}()
	return out
}

func (a *app) calibrate(ctx context.Context) error {
	out, err := a.output()
	if err != nil {
		return err
	}
	defer out.Close()

	r, err := a.open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	log.Printf("Calibrating, keep the meter under the enlarger lens")
	profile, err := calibration.New(r.ctrl, r.enlarger, a.cfg.Calibration).Run(ctx)
	if err != nil {
		code := calibration.CodeOf(err)
		if errors.Is(err, context.Canceled) {
			code = calibration.CodeUserCancel
		}
		log.Printf("%s", code.Guidance())
		return err
	}

	return out.PublishProfile(profile)
}
