package sensor

import (
	"context"
	"errors"
	"log"
	"time"
)

// ReadingSource is anything that delivers sensor readings.
type ReadingSource interface {
	NextReading(ctx context.Context, timeout time.Duration) (Reading, error)
}

// Ensure Controller implements ReadingSource.
var _ ReadingSource = (*Controller)(nil)

// Stream delivers readings from src until ctx is done or src fails.
// Timeouts are logged and skipped.
func Stream(ctx context.Context, src ReadingSource, timeout time.Duration, bufSize int) <-chan Reading {
	if bufSize <= 0 {
		bufSize = 16
	}
	out := make(chan Reading, bufSize)

	go func() {
		defer close(out)

		for {
			r, err := src.NextReading(ctx, timeout)
			switch {
			case errors.Is(err, ErrTimeout):
				log.Printf("No sensor reading within %v", timeout)
				continue
			case err != nil:
				return
			}

			select {
			case out <- r:
			case <-ctx.Done():
				return
			default:
				log.Printf("Reading stream full, dropping reading")
			}
		}
	}()

	return out
}
