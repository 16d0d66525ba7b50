package calibration

import (
	"errors"
	"fmt"
)

// Code classifies a calibration failure.
type Code string

func (c Code) Error() string { return "calibration: " + string(c) }

const (
	CodeSensorFault           Code = "sensor fault"
	CodeZeroReading           Code = "zero reading"
	CodeSaturated             Code = "sensor saturated"
	CodeInvalidReferenceStats Code = "invalid reference stats"
	CodeTimeout               Code = "timeout"
	CodeUserCancel            Code = "cancelled"
	CodeFail                  Code = "failed"
)

// Guidance returns a message telling the operator what to do about a failure.
func (c Code) Guidance() string {
	switch c {
	case CodeSensorFault:
		return "The meter probe is either disconnected or not working correctly."
	case CodeZeroReading:
		return "The meter probe is incorrectly positioned or the enlarger is not turning on."
	case CodeSaturated:
		return "The enlarger is too bright for calibration."
	case CodeInvalidReferenceStats:
		return "Could not detect a large enough brightness difference between the enlarger being on and off."
	case CodeTimeout:
		return "The enlarger did not change brightness in time."
	case CodeUserCancel:
		return "Calibration was cancelled."
	}
	return "Unable to complete enlarger calibration."
}

// Failure is a classified calibration error with its cause.
type Failure struct {
	Code Code
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Code.Error()
	}
	return fmt.Sprintf("%s: %v", f.Code.Error(), f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is matches the failure's code, so errors.Is(err, CodeTimeout) works.
func (f *Failure) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == f.Code
}

func fail(code Code, err error) error {
	return &Failure{Code: code, Err: err}
}

// Reasons for rejecting reference statistics.
var (
	ErrRangesOverlap  = errors.New("on and off ranges overlap")
	ErrRangeGap       = errors.New("insufficient separation between on and off ranges")
	ErrMeanGap        = errors.New("insufficient separation between on and off mean values")
	ErrCycleTooShort  = errors.New("reading interval shorter than integration time")
	ErrNotStarted     = errors.New("sensor not started")
	ErrNoTransition   = errors.New("no transition detected")
	ErrNoValidReading = errors.New("no valid reading")
)

// CodeOf extracts the failure code from err. It returns "" for nil and
// CodeFail for unclassified errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Code
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return CodeFail
}
