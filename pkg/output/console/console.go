package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/itohio/golightmeter/pkg/calibration"
	"github.com/itohio/golightmeter/pkg/output"
	"github.com/itohio/golightmeter/pkg/sample"
)

type ConsoleOutput struct {
	w io.Writer
}

// NewConsole writes to w, or to stdout when w is nil.
func NewConsole(w io.Writer) output.Output {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleOutput{w: w}
}

func (c *ConsoleOutput) Publish(samples []sample.Sample) error {
	for _, s := range samples {
		if !s.Valid() {
			if _, err := fmt.Fprintf(c.w, "%s raw=%d gain=%s status=%s\n", s.At.Format(time.RFC3339Nano), s.Raw, s.Gain, s.Status); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(c.w, "%s raw=%d gain=%s basic=%.6f lux=%.3f\n", s.At.Format(time.RFC3339Nano), s.Raw, s.Gain, s.Basic, s.Lux); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) PublishProfile(p calibration.Profile) error {
	_, err := fmt.Fprintf(c.w, "profile: %s; min exposure %v\n", p, p.MinExposure())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
