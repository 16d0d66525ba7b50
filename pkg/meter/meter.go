// Package meter watches the sample stream for enlarger exposures.
package meter

import (
	"sync"
	"time"

	"github.com/itohio/golightmeter/pkg/config"
	"github.com/itohio/golightmeter/pkg/sample"
)

var _ ExposureMeter = (*Meter)(nil)

// Exposure is a period during which the basic reading stayed above the
// threshold.
type Exposure struct {
	Start    time.Time // first lit sample
	End      time.Time // last lit sample
	Peak     float32   // highest basic reading
	Integral float32   // basic reading integrated over seconds
	Open     bool      // still lit at the newest sample
}

// Duration returns the lit time of the exposure.
func (e Exposure) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// ExposureMeter processes samples, keeps a time window of them and detects
// exposures.
type ExposureMeter interface {
	ProcessSamples(input <-chan sample.Sample)
	Samples() []sample.Sample           // samples within the window, oldest first
	Exposures() []Exposure              // exposures ending within the window
	OnExposure(func(exposure Exposure)) // register callback for finished exposures
}

// Meter implements ExposureMeter.
// Removal is based on timestamp (time window), not number of samples.
type Meter struct {
	mu        sync.RWMutex
	samples   []sample.Sample
	exposures []Exposure

	callbacks []func(Exposure)
	cbMu      sync.RWMutex

	window      time.Duration
	threshold   float32
	minDuration time.Duration

	// Set when the input channel closes, prevents further callbacks
	shutdown bool
}

// DefaultWindow is used when the configured window is not positive.
const DefaultWindow = 10 * time.Second

// New creates a meter.
func New(cfg config.ExposureConfig) *Meter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	return &Meter{
		window:      cfg.Window,
		threshold:   cfg.Threshold,
		minDuration: cfg.MinDuration,
	}
}

// ProcessSamples consumes samples until the input channel closes.
func (m *Meter) ProcessSamples(input <-chan sample.Sample) {
	for s := range input {
		m.processSample(s)
	}
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()
}

// processSample adds a sample to the window and updates exposures. Invalid
// samples are ignored.
func (m *Meter) processSample(s sample.Sample) {
	if !s.Valid() {
		return
	}

	m.mu.Lock()
	var prev *sample.Sample
	if n := len(m.samples); n > 0 {
		p := m.samples[n-1]
		prev = &p
	}
	m.samples = append(m.samples, s)
	m.trim(s.At.Add(-m.window))

	finished, ok := m.update(prev, s)
	notify := ok && !m.shutdown
	m.mu.Unlock()

	if notify {
		m.notifyCallbacks(finished)
	}
}

// trim drops samples and closed exposures older than cutoff.
func (m *Meter) trim(cutoff time.Time) {
	i := 0
	for i < len(m.samples) && !m.samples[i].At.After(cutoff) {
		i++
	}
	m.samples = m.samples[i:]

	j := 0
	for j < len(m.exposures) && !m.exposures[j].Open && !m.exposures[j].End.After(cutoff) {
		j++
	}
	m.exposures = m.exposures[j:]
}

// update extends, closes or starts an exposure. It returns the exposure that
// just finished, if any.
func (m *Meter) update(prev *sample.Sample, s sample.Sample) (Exposure, bool) {
	lit := s.Basic > m.threshold

	var active *Exposure
	if n := len(m.exposures); n > 0 && m.exposures[n-1].Open {
		active = &m.exposures[n-1]
	}

	switch {
	case active != nil && lit:
		active.End = s.At
		if s.Basic > active.Peak {
			active.Peak = s.Basic
		}
		if prev != nil {
			dt := float32(s.At.Sub(prev.At).Seconds())
			active.Integral += (prev.Basic + s.Basic) / 2 * dt
		}

	case active != nil:
		active.Open = false
		finished := *active
		if finished.Duration() < m.minDuration {
			// Too short, treat as noise
			m.exposures = m.exposures[:len(m.exposures)-1]
			return Exposure{}, false
		}
		return finished, true

	case lit:
		m.exposures = append(m.exposures, Exposure{Start: s.At, End: s.At, Peak: s.Basic, Open: true})
	}

	return Exposure{}, false
}

// Samples returns a copy of the current samples buffer.
func (m *Meter) Samples() []sample.Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]sample.Sample, len(m.samples))
	copy(result, m.samples)
	return result
}

// Exposures returns a copy of the current exposures list.
func (m *Meter) Exposures() []Exposure {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Exposure, len(m.exposures))
	copy(result, m.exposures)
	return result
}

// OnExposure registers a callback invoked with every finished exposure.
// The callback runs on the goroutine calling ProcessSamples.
func (m *Meter) OnExposure(callback func(exposure Exposure)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *Meter) notifyCallbacks(e Exposure) {
	m.cbMu.RLock()
	callbacks := make([]func(Exposure), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		if cb != nil {
			cb(e)
		}
	}
}
