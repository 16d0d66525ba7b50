// Package output publishes converted samples and calibration results.
package output

import (
	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/sample"
)

type Output interface {
	Publish([]sample.Sample) error
	PublishProfile(calibration.Profile) error
	Close() error
}

// helper constructors are in subpackages
