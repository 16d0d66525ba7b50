package sensor

import (
	"encoding/binary"
	"log"
	"time"

	"github.com/itohio/golightmeter/pkg/tsl2585"
)

// handleInterrupt drains the sensor FIFO after an interrupt at at and
// publishes the resulting reading.
func (c *Controller) handleInterrupt(at time.Time) {
	var elapsed time.Duration
	if !c.lastInterrupt.IsZero() {
		elapsed = at.Sub(c.lastInterrupt)
	}
	c.lastInterrupt = at

	if c.state != StateRunning {
		return
	}

	n := 1
	if c.mode == ModeFast {
		n = c.opts.FastBatch
	}
	reading := Reading{
		Results:     make([]Result, n),
		Mode:        c.mode,
		SampleTime:  c.integration.value.sampleTime,
		SampleCount: c.integration.value.sampleCount,
		At:          at,
		Elapsed:     elapsed,
	}

	buf := c.fifo[:n*tsl2585.EntrySize]
	st, err := c.readFIFO(buf)
	if err != nil {
		log.Printf("Failed to read sensor FIFO: %v", err)
		c.finishInterrupt()
		return
	}

	switch {
	case st.Overflow:
		log.Printf("Sensor FIFO overflow, dropping %d results", n)
		if err := c.drv.ClearFIFO(); err != nil {
			log.Printf("Failed to clear sensor FIFO: %v", err)
		}
		markInvalid(reading.Results)
	case int(st.Level) < len(buf):
		if c.mode != ModeFast {
			// Spurious interrupt, nothing to read yet.
			c.finishInterrupt()
			return
		}
		markInvalid(reading.Results)
	default:
		c.decode(buf, reading.Results)
		if c.mode != ModeFast {
			c.checkDigitalSaturation(reading.Results)
		}
	}

	c.finishInterrupt()

	if c.discardNext {
		c.discardNext = false
		return
	}
	c.mailbox.Put(reading)
}

// readFIFO reads one batch. Fast mode reads status and data in one
// transaction; the other modes only read data once enough is buffered.
func (c *Controller) readFIFO(buf []byte) (tsl2585.FIFOStatus, error) {
	if c.mode == ModeFast {
		return c.drv.ReadFIFOCombo(buf)
	}

	st, err := c.drv.FIFOStatus()
	if err != nil || st.Overflow || int(st.Level) < len(buf) {
		return st, err
	}
	return st, c.drv.ReadFIFO(buf)
}

func (c *Controller) decode(buf []byte, results []Result) {
	for i := range results {
		e := buf[i*tsl2585.EntrySize : (i+1)*tsl2585.EntrySize]
		count := binary.LittleEndian.Uint32(e[0:4])
		als, gains := e[4], e[5]

		if als&tsl2585.ALSData0AnalogSaturation != 0 {
			results[i] = Result{Count: count, Gain: c.gain[0].value, Status: StatusSaturatedAnalog}
			continue
		}

		gain := tsl2585.Gain(gains & 0x0F)
		results[i] = Result{Count: count, Gain: gain, Status: StatusValid}
		if c.agc.value.enabled {
			c.gain[0].setApplied(gain)
		}
	}
}

func (c *Controller) checkDigitalSaturation(results []Result) {
	s2, err := c.drv.Status2()
	if err != nil {
		log.Printf("Failed to read sensor status: %v", err)
		return
	}
	if s2&tsl2585.Status2ALSDigitalSaturation == 0 {
		return
	}
	for i := range results {
		if results[i].Status == StatusValid {
			results[i].Status = StatusSaturatedDigital
		}
	}
}

// finishInterrupt acknowledges the interrupt and, in single-shot mode,
// records whether the sensor went to sleep.
func (c *Controller) finishInterrupt() {
	if err := c.clearStatus(); err != nil {
		log.Printf("Failed to clear sensor interrupt: %v", err)
	}
	if c.mode != ModeSingleShot {
		return
	}
	s4, err := c.drv.Status4()
	if err != nil {
		log.Printf("Failed to read sensor sleep status: %v", err)
		return
	}
	c.sleeping = s4&tsl2585.Status4SleepActive != 0
}

func markInvalid(results []Result) {
	for i := range results {
		results[i] = Result{Status: StatusInvalid}
	}
}
