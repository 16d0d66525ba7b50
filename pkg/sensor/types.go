package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current lifecycle state.
	ErrInvalidState = errors.New("sensor: invalid state")
	// ErrInvalidArgument is returned for out-of-range parameters.
	ErrInvalidArgument = errors.New("sensor: invalid argument")
	// ErrIO wraps every register or storage failure.
	ErrIO = errors.New("sensor: i/o failure")
	// ErrNoSettings is returned when the peripheral has no usable calibration.
	ErrNoSettings = errors.New("sensor: no calibration settings")
	// ErrUnsupported is returned for operations the peripheral lacks.
	ErrUnsupported = errors.New("sensor: unsupported operation")
	// ErrTimeout is returned when no reading arrives in time.
	ErrTimeout = errors.New("sensor: reading timeout")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("sensor: controller closed")
)

// State is the lifecycle state of a controller.
type State uint8

const (
	StateNone State = iota
	StateInit
	StateAttached
	StateStarted
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateInit:
		return "init"
	case StateAttached:
		return "attached"
	case StateStarted:
		return "started"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Mode selects how the sensor delivers results.
type Mode uint8

const (
	// ModeNormal raises one interrupt per integration cycle.
	ModeNormal Mode = iota
	// ModeFast batches results and drains them on a faster bus clock.
	ModeFast
	// ModeSingleShot halts after every result until TriggerNextReading.
	ModeSingleShot
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeFast:
		return "fast"
	case ModeSingleShot:
		return "single-shot"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// ParseMode converts a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "normal", "":
		return ModeNormal, nil
	case "fast":
		return ModeFast, nil
	case "single", "single-shot":
		return ModeSingleShot, nil
	}
	return ModeNormal, fmt.Errorf("unknown sensor mode %q", s)
}

// ResultStatus qualifies one result.
type ResultStatus uint8

const (
	StatusValid ResultStatus = iota
	StatusSaturatedAnalog
	StatusSaturatedDigital
	StatusInvalid
)

func (s ResultStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSaturatedAnalog:
		return "analog saturation"
	case StatusSaturatedDigital:
		return "digital saturation"
	}
	return "invalid"
}

// Result is one modulator-0 measurement.
type Result struct {
	Count  uint32
	Gain   tsl2585.Gain
	Status ResultStatus
}

// Reading is the batch of results delivered by one interrupt.
type Reading struct {
	Results     []Result
	Mode        Mode
	SampleTime  uint16
	SampleCount uint16
	At          time.Time     // interrupt timestamp
	Elapsed     time.Duration // since the previous interrupt
}

// Valid reports whether every result of the batch is valid.
func (r Reading) Valid() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if res.Status != StatusValid {
			return false
		}
	}
	return true
}

// Last returns the most recent result of the batch.
func (r Reading) Last() Result {
	if len(r.Results) == 0 {
		return Result{Status: StatusInvalid}
	}
	return r.Results[len(r.Results)-1]
}

// IntegrationTime returns the nominal integration cycle of the batch.
func (r Reading) IntegrationTime() time.Duration {
	return tsl2585.IntegrationTime(r.SampleTime, r.SampleCount)
}

// DeviceInfo describes an attached peripheral.
type DeviceInfo struct {
	Kind settings.Kind
	ID   settings.ID
	Chip tsl2585.ChipID
}
