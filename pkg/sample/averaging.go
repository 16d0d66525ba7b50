package sample

import (
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/golightmeter/pkg/sensor"
)

// averagingInterval is the output rate of the averaging converter.
var averagingInterval = 100 * time.Millisecond

// NewAveragingConverter creates a converter that averages the last windowSize
// valid samples and emits the average periodically. Invalid samples are
// passed through unchanged so saturation stays visible.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			var buffer []Sample
			fresh := false
			ticker := time.NewTicker(averagingInterval)
			defer ticker.Stop()

			emit := func(s Sample) {
				select {
				case out <- s:
				default:
					log.Printf("Averaging converter output channel full")
				}
			}

			for {
				select {
				case s, ok := <-in:
					if !ok {
						if fresh {
							emit(Average(buffer))
						}
						return
					}

					if !s.Valid() {
						emit(s)
						continue
					}

					buffer = append(buffer, s)
					if len(buffer) > windowSize {
						buffer = buffer[1:]
					}
					fresh = true

				case <-ticker.C:
					if fresh {
						emit(Average(buffer))
						fresh = false
					}
				}
			}
		}()

		return out
	}
}

// Average returns the mean of samples. Timestamp and gain come from the most
// recent sample.
func Average(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{Status: sensor.StatusInvalid, Basic: math32.NaN(), Lux: math32.NaN()}
	}

	var sumRaw uint64
	var sumBasic, sumLux float32
	last := samples[len(samples)-1]

	for _, s := range samples {
		sumRaw += uint64(s.Raw)
		sumBasic += s.Basic
		sumLux += s.Lux
	}

	n := float32(len(samples))
	return Sample{
		At:     last.At,
		Raw:    uint32((sumRaw + uint64(len(samples))/2) / uint64(len(samples))),
		Gain:   last.Gain,
		Status: sensor.StatusValid,
		Basic:  sumBasic / n,
		Lux:    sumLux / n,
	}
}
