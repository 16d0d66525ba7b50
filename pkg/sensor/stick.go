package sensor

import (
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/transport"
)

// MaxBrightness is the highest stick light level.
const MaxBrightness = 127

// Stick is the handheld peripheral: a sensor controller with an auxiliary
// light source driven through the same command queue.
type Stick struct {
	*Controller
}

// NewStick creates a stick controller and starts its event loop.
func NewStick(opts Options, light Light) *Stick {
	opts.Kind = settings.KindStick
	return &Stick{Controller: newController(opts, light)}
}

// SetLightEnable switches the light on or off.
func (s *Stick) SetLightEnable(on bool) error {
	return s.call(event{kind: evLightEnable, on: on}).err
}

// SetLightBrightness sets the light level, 0 to MaxBrightness.
func (s *Stick) SetLightBrightness(level uint8) error {
	return s.call(event{kind: evLightBrightness, level: level}).err
}

// LightBrightness returns the light level.
func (s *Stick) LightBrightness() (uint8, error) {
	r := s.call(event{kind: evGetLightBrightness})
	return r.level, r.err
}

// PotentiometerAddress is the bus address of the light's digital potentiometer.
const PotentiometerAddress = 0x2F

// Potentiometer drives the stick light through a 7-bit digital
// potentiometer. The wiper is written as a single byte.
type Potentiometer struct {
	bus   transport.Transport
	addr  uint16
	level uint8
	on    bool
}

// NewPotentiometer returns a light driver on bus.
func NewPotentiometer(bus transport.Transport) *Potentiometer {
	return &Potentiometer{bus: bus, addr: PotentiometerAddress}
}

func (p *Potentiometer) write() error {
	var wiper uint8
	if p.on {
		wiper = p.level
	}
	return p.bus.WriteMem(p.addr, wiper, nil, transport.DefaultTimeout)
}

// SetEnabled switches the light on at the current level, or off.
func (p *Potentiometer) SetEnabled(on bool) error {
	p.on = on
	return p.write()
}

// SetBrightness sets the level used while the light is on.
func (p *Potentiometer) SetBrightness(level uint8) error {
	if level > MaxBrightness {
		level = MaxBrightness
	}
	p.level = level
	if !p.on {
		return nil
	}
	return p.write()
}
