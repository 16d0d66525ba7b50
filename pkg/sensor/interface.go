package sensor

import (
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

// Driver is the register-level capability set of the light sensor.
type Driver interface {
	Init() (tsl2585.ChipID, error)
	Enable() error
	Disable() error
	SoftReset() error

	ModGain(mod tsl2585.Modulator, step tsl2585.Step) (tsl2585.Gain, error)
	SetModGain(mod tsl2585.Modulator, step tsl2585.Step, gain tsl2585.Gain) error
	SampleTime() (uint16, error)
	SetSampleTime(v uint16) error
	ALSNumSamples() (uint16, error)
	SetALSNumSamples(v uint16) error
	AGCNumSamples() (uint16, error)
	SetAGCNumSamples(v uint16) error
	AGCEnabled() (bool, error)
	SetAGCEnabled(on bool) error
	SetAGCMaxGain(gain tsl2585.Gain) error
	CalibrationNthIteration() (uint8, error)
	SetCalibrationNthIteration(v uint8) error

	SetModPhotodiodeSMUX(step tsl2585.Step, routing tsl2585.Routing) error
	SetModChannelEnabled(mods tsl2585.Modulator) error
	SetModResidualEnable(mod tsl2585.Modulator, steps tsl2585.Step) error
	SetModGainTableSelect(alternate bool) error

	SetFIFOALSStatusWriteEnable(on bool) error
	SetFIFODataWriteEnable(mod tsl2585.Modulator, on bool) error
	SetFIFOALSDataFormat(mod tsl2585.Modulator, format tsl2585.DataFormat) error
	SetFIFOThreshold(level uint16) error
	FIFOStatus() (tsl2585.FIFOStatus, error)
	ReadFIFO(buf []byte) error
	ReadFIFOCombo(buf []byte) (tsl2585.FIFOStatus, error)
	ClearFIFO() error

	InterruptEnable() (uint8, error)
	SetInterruptEnable(mask uint8) error
	Status() (uint8, error)
	SetStatus(v uint8) error
	Status2() (uint8, error)
	Status4() (uint8, error)
	SetSleepAfterInterrupt(on bool) error
	ClearSleepAfterInterrupt() error
}

// Ensure the register driver implements Driver.
var _ Driver = (*tsl2585.Device)(nil)

// Ensure the simulated sensor implements Driver.
var _ Driver = (*tsl2585.Mock)(nil)

// Light is the auxiliary light source of the stick.
type Light interface {
	SetEnabled(on bool) error
	SetBrightness(level uint8) error
}

// Ensure Potentiometer implements Light.
var _ Light = (*Potentiometer)(nil)
