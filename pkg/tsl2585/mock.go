package tsl2585

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Light returns the light reaching the sensor at a moment, in counts per
// millisecond at 1x gain.
type Light func(at time.Time) float64

// Dark is a Light that never emits.
func Dark(time.Time) float64 { return 0 }

const (
	// DefaultMockFIFOSize is the simulated FIFO capacity in bytes.
	DefaultMockFIFOSize = 1024
	// mockAnalogLimit is the per-millisecond count above which a modulator
	// reports analog saturation.
	mockAnalogLimit = 1 << 20
)

// MockOptions configures a simulated sensor.
type MockOptions struct {
	Noise    float64 // relative standard deviation of every result
	Manual   bool    // results are only produced by Sample
	Seed     int64
	FIFOSize int
}

// Mock simulates a TSL2585 for testing and development. Results are produced
// once per integration cycle from a Light function and raise the interrupt
// callback the same way the hardware raises its interrupt line.
type Mock struct {
	mu     sync.Mutex
	light  Light
	opts   MockOptions
	rng    *rand.Rand
	notify func(time.Time)

	enabled     bool
	gain        [3][4]Gain
	sampleTime  uint16
	alsSamples  uint16
	agcSamples  uint16
	agc         bool
	agcMax      Gain
	nth         uint8
	routing     [4]Routing
	channels    Modulator
	residual    [3]Step
	altGain     bool
	statusWrite bool
	fifoEnable  [3]bool
	format      [3]DataFormat
	threshold   uint16
	intenab     uint8
	status      uint8
	status2     uint8
	sai         bool
	saiActive   bool
	fifo        []byte
	overflow    bool
	underflow   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMock creates a simulated sensor lit by light.
func NewMock(light Light, opts MockOptions) *Mock {
	if light == nil {
		light = Dark
	}
	if opts.FIFOSize <= 0 {
		opts.FIFOSize = DefaultMockFIFOSize
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	m := &Mock{
		light: light,
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
	}
	m.reset()
	return m
}

func (m *Mock) reset() {
	for i := range m.gain {
		for j := range m.gain[i] {
			m.gain[i][j] = Gain128X
		}
	}
	m.sampleTime = 999
	m.alsSamples = 0
	m.agcSamples = 0
	m.agc = false
	m.agcMax = GainMax
	m.nth = 0
	m.routing = [4]Routing{}
	m.channels = ModAll
	m.residual = [3]Step{}
	m.altGain = false
	m.statusWrite = false
	m.fifoEnable = [3]bool{}
	m.format = [3]DataFormat{}
	m.threshold = 0
	m.intenab = 0
	m.status = 0
	m.status2 = 0
	m.sai = false
	m.saiActive = false
	m.fifo = m.fifo[:0]
	m.overflow = false
	m.underflow = false
}

// SetNotify sets the interrupt callback.
func (m *Mock) SetNotify(notify func(time.Time)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = notify
}

// SetLight replaces the light source.
func (m *Mock) SetLight(light Light) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if light == nil {
		light = Dark
	}
	m.light = light
}

// Init returns the simulated chip identity.
func (m *Mock) Init() (ChipID, error) {
	return ChipID{ID: ChipIDValue, Revision: 0x11}, nil
}

// Enable starts producing results.
func (m *Mock) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enabled {
		return nil
	}
	m.enabled = true
	if m.opts.Manual {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
	return nil
}

// Disable stops producing results.
func (m *Mock) Disable() error {
	m.mu.Lock()
	m.enabled = false
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// Close stops the simulation.
func (m *Mock) Close() error {
	return m.Disable()
}

func (m *Mock) cycle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := IntegrationTime(m.sampleTime, m.alsSamples)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (m *Mock) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(m.cycle())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-timer.C:
			m.Sample(at)
			timer.Reset(m.cycle())
		}
	}
}

// Sample completes one integration cycle ending at at.
func (m *Mock) Sample(at time.Time) {
	m.mu.Lock()
	if !m.enabled || m.saiActive {
		m.mu.Unlock()
		return
	}

	m.produce(at)

	fire := m.intenab&IntFIFO != 0 && m.threshold > 0 && len(m.fifo) >= int(m.threshold)
	if fire {
		m.status |= StatusFINT
		if m.sai {
			m.saiActive = true
		}
	}
	notify := m.notify
	m.mu.Unlock()

	if fire && notify != nil {
		notify(at)
	}
}

func (m *Mock) produce(at time.Time) {
	itime := float64(IntegrationTime(m.sampleTime, m.alsSamples)) / float64(time.Millisecond)

	level := m.light(at)
	if m.opts.Noise > 0 {
		level *= 1 + m.rng.NormFloat64()*m.opts.Noise
	}
	if level < 0 {
		level = 0
	}

	gain := m.gain[0][0]
	if m.agc {
		for gain > Gain0_5X && level*float64(gain.Value()) > mockAnalogLimit {
			gain--
		}
		for gain < m.agcMax && level*float64((gain+1).Value()) <= mockAnalogLimit/4 {
			gain++
		}
		m.gain[0][0] = gain
	}

	var als uint8
	v := level * float64(gain.Value())
	if v > mockAnalogLimit {
		als |= ALSData0AnalogSaturation
		v = mockAnalogLimit
	}
	raw := v * itime * 16
	if raw > math.MaxUint32 {
		raw = math.MaxUint32
		m.status2 |= Status2ALSDigitalSaturation
	}
	m.status2 |= Status2ALSDataValid

	if !m.fifoEnable[0] {
		return
	}

	var entry [4 + StatusSize]byte
	binary.LittleEndian.PutUint32(entry[:4], uint32(raw))
	n := m.format[0].Size()
	if m.statusWrite {
		copy(entry[n:], []byte{als, uint8(gain) | uint8(m.gain[1][0])<<4, uint8(m.gain[2][0])})
		n += StatusSize
	}

	if len(m.fifo)+n > m.opts.FIFOSize {
		m.overflow = true
		return
	}
	m.fifo = append(m.fifo, entry[:n]...)
}

// SoftReset restores power-on defaults.
func (m *Mock) SoftReset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

// ModGain returns the gain of one modulator in one step.
func (m *Mock) ModGain(mod Modulator, step Step) (Gain, error) {
	mi, err := mod.index()
	if err != nil {
		return 0, err
	}
	si, err := step.index()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gain[mi][si], nil
}

// SetModGain sets the gain of one modulator in one step.
func (m *Mock) SetModGain(mod Modulator, step Step, gain Gain) error {
	if !gain.Valid() {
		return ErrInvalidGain
	}
	mi, err := mod.index()
	if err != nil {
		return err
	}
	si, err := step.index()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gain[mi][si] = gain
	return nil
}

func (m *Mock) get16(p *uint16) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *p, nil
}

func (m *Mock) set16(p *uint16, v uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	*p = v & 0x7FF
	return nil
}

func (m *Mock) SampleTime() (uint16, error) { return m.get16(&m.sampleTime) }
func (m *Mock) SetSampleTime(v uint16) error { return m.set16(&m.sampleTime, v) }
func (m *Mock) ALSNumSamples() (uint16, error) { return m.get16(&m.alsSamples) }
func (m *Mock) SetALSNumSamples(v uint16) error { return m.set16(&m.alsSamples, v) }
func (m *Mock) AGCNumSamples() (uint16, error) { return m.get16(&m.agcSamples) }
func (m *Mock) SetAGCNumSamples(v uint16) error { return m.set16(&m.agcSamples, v) }

func (m *Mock) CalibrationNthIteration() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nth, nil
}

func (m *Mock) SetCalibrationNthIteration(v uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nth = v
	return nil
}

func (m *Mock) AGCEnabled() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.agc, nil
}

func (m *Mock) SetAGCEnabled(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agc = on
	return nil
}

func (m *Mock) SetAGCMaxGain(gain Gain) error {
	if !gain.Valid() {
		return ErrInvalidGain
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agcMax = gain
	return nil
}

func (m *Mock) SetModPhotodiodeSMUX(step Step, routing Routing) error {
	si, err := step.index()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routing[si] = routing
	return nil
}

func (m *Mock) SetModChannelEnabled(mods Modulator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = mods & ModAll
	return nil
}

func (m *Mock) SetModResidualEnable(mod Modulator, steps Step) error {
	mi, err := mod.index()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.residual[mi] = steps & StepAll
	return nil
}

func (m *Mock) SetModGainTableSelect(alternate bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.altGain = alternate
	return nil
}

func (m *Mock) SetFIFOALSStatusWriteEnable(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusWrite = on
	return nil
}

func (m *Mock) SetFIFODataWriteEnable(mod Modulator, on bool) error {
	mi, err := mod.index()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fifoEnable[mi] = on
	return nil
}

func (m *Mock) SetFIFOALSDataFormat(mod Modulator, format DataFormat) error {
	mi, err := mod.index()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.format[mi] = format
	return nil
}

func (m *Mock) SetFIFOThreshold(level uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	words := level / 4
	if words > 0xFF {
		words = 0xFF
	}
	m.threshold = words * 4
	return nil
}

func (m *Mock) fifoStatus() FIFOStatus {
	return FIFOStatus{
		Level:     uint16(len(m.fifo)),
		Overflow:  m.overflow,
		Underflow: m.underflow,
	}
}

func (m *Mock) FIFOStatus() (FIFOStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fifoStatus(), nil
}

func (m *Mock) readFIFO(buf []byte) {
	n := copy(buf, m.fifo)
	if n < len(buf) {
		m.underflow = true
		clear(buf[n:])
	}
	m.fifo = append(m.fifo[:0], m.fifo[n:]...)
}

func (m *Mock) ReadFIFO(buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFIFO(buf)
	return nil
}

func (m *Mock) ReadFIFOCombo(buf []byte) (FIFOStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.fifoStatus()
	m.readFIFO(buf)
	return st, nil
}

func (m *Mock) ClearFIFO() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fifo = m.fifo[:0]
	m.overflow = false
	m.underflow = false
	return nil
}

func (m *Mock) InterruptEnable() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intenab, nil
}

func (m *Mock) SetInterruptEnable(mask uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intenab = mask & intMask
	return nil
}

func (m *Mock) Status() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, nil
}

func (m *Mock) SetStatus(v uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status &^= v
	return nil
}

// Status2 returns and clears the ALS status register.
func (m *Mock) Status2() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.status2
	m.status2 = 0
	return v, nil
}

func (m *Mock) Status4() (uint8, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saiActive {
		return Status4SleepActive, nil
	}
	return 0, nil
}

func (m *Mock) SetSleepAfterInterrupt(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sai = on
	if !on {
		m.saiActive = false
	}
	return nil
}

func (m *Mock) ClearSleepAfterInterrupt() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saiActive = false
	return nil
}

// Overflow forces the FIFO overflow flag.
func (m *Mock) Overflow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overflow = true
}
