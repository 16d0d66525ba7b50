package tsl2585

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/itohio/golightmeter/pkg/transport"
)

// Register map.
const (
	regModChannelCtrl uint8 = 0x40
	regEnable         uint8 = 0x80
	regMeasMode0      uint8 = 0x81
	regSampleTime0    uint8 = 0x83
	regALSNrSamples0  uint8 = 0x85
	regAuxID          uint8 = 0x90
	regRevID          uint8 = 0x91
	regID             uint8 = 0x92
	regStatus         uint8 = 0x93
	regStatus2        uint8 = 0x94
	regStatus4        uint8 = 0x96
	regCfg0           uint8 = 0xA1
	regCfg3           uint8 = 0xA4
	regCfg8           uint8 = 0xA9
	regAGCNrSamples0  uint8 = 0xAC
	regControl        uint8 = 0xB1
	regIntEnab        uint8 = 0xBA
	regResidual0      uint8 = 0xD2
	regResidual1      uint8 = 0xD3
	regGainStep0L     uint8 = 0xD4
	regSMUXStep0      uint8 = 0xDC
	regModCalibCfg0   uint8 = 0xE4
	regModCalibCfg2   uint8 = 0xE6
	regFIFODataCfg0   uint8 = 0xF9
	regFIFOThr        uint8 = 0xFC
	regFIFOStatus0    uint8 = 0xFD
	regFIFOData       uint8 = 0xFF
)

// Register bits.
const (
	enablePON  uint8 = 0x01
	enableAEN  uint8 = 0x02
	enableFDEN uint8 = 0x40

	measModeALSStatusWrite uint8 = 0x10

	cfg0SAI             uint8 = 0x40
	cfg3AltGainTable    uint8 = 0x10
	controlClearSAI     uint8 = 0x01
	controlFIFOClear    uint8 = 0x02
	controlSoftReset    uint8 = 0x08
	modCalibAGCEnable   uint8 = 0x20
	fifoDataCfgEnable   uint8 = 0x80
	fifoDataCfgFormat   uint8 = 0x03
	fifoStatusOverflow  uint8 = 0x80
	fifoStatusUnderflow uint8 = 0x40
)

// Device is a TSL2585 on a register bus.
type Device struct {
	bus     transport.Transport
	addr    uint16
	timeout time.Duration

	combo []byte
}

// New returns a driver for the sensor at its fixed address.
func New(bus transport.Transport) *Device {
	return &Device{
		bus:     bus,
		addr:    Address,
		timeout: transport.DefaultTimeout,
	}
}

func (d *Device) read(reg uint8) (uint8, error) {
	var b [1]byte
	if err := d.bus.ReadMem(d.addr, reg, b[:], d.timeout); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) write(reg, v uint8) error {
	return d.bus.WriteMem(d.addr, reg, []byte{v}, d.timeout)
}

func (d *Device) update(reg, mask, v uint8) error {
	cur, err := d.read(reg)
	if err != nil {
		return err
	}
	return d.write(reg, (cur&^mask)|(v&mask))
}

func (d *Device) setBit(reg, bit uint8, on bool) error {
	var v uint8
	if on {
		v = bit
	}
	return d.update(reg, bit, v)
}

// read11 reads an 11-bit little-endian register pair.
func (d *Device) read11(reg uint8) (uint16, error) {
	var b [2]byte
	if err := d.bus.ReadMem(d.addr, reg, b[:], d.timeout); err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1]&0x07)<<8, nil
}

func (d *Device) write11(reg uint8, v uint16) error {
	if v > 0x7FF {
		return fmt.Errorf("tsl2585: value %d exceeds 11 bits", v)
	}
	return d.bus.WriteMem(d.addr, reg, []byte{uint8(v), uint8(v>>8) & 0x07}, d.timeout)
}

// Init powers the sensor on and verifies its identity.
func (d *Device) Init() (ChipID, error) {
	var id ChipID
	var b [3]byte
	if err := d.bus.ReadMem(d.addr, regAuxID, b[:], d.timeout); err != nil {
		return id, err
	}
	id = ChipID{Aux: b[0] & 0x0F, Revision: b[1], ID: b[2]}
	if id.ID != ChipIDValue {
		return id, fmt.Errorf("%w: 0x%02X", ErrUnknownChip, id.ID)
	}
	if err := d.write(regEnable, enablePON); err != nil {
		return id, err
	}
	return id, nil
}

// Enable starts ALS measurements with the FIFO enabled.
func (d *Device) Enable() error {
	return d.write(regEnable, enablePON|enableAEN|enableFDEN)
}

// Disable stops measurements and leaves the sensor powered.
func (d *Device) Disable() error {
	return d.write(regEnable, enablePON)
}

// SoftReset resets every register to its power-on value.
func (d *Device) SoftReset() error {
	return d.write(regControl, controlSoftReset)
}

func gainRegister(mod Modulator, step Step) (reg uint8, shift uint, err error) {
	m, err := mod.index()
	if err != nil {
		return 0, 0, err
	}
	s, err := step.index()
	if err != nil {
		return 0, 0, err
	}
	reg = regGainStep0L + uint8(s*2)
	switch m {
	case 1:
		shift = 4
	case 2:
		reg++
	}
	return reg, shift, nil
}

// ModGain returns the gain of one modulator in one sequencer step.
func (d *Device) ModGain(mod Modulator, step Step) (Gain, error) {
	reg, shift, err := gainRegister(mod, step)
	if err != nil {
		return 0, err
	}
	v, err := d.read(reg)
	if err != nil {
		return 0, err
	}
	return Gain((v >> shift) & 0x0F), nil
}

// SetModGain sets the gain of one modulator in one sequencer step.
func (d *Device) SetModGain(mod Modulator, step Step, gain Gain) error {
	if !gain.Valid() {
		return ErrInvalidGain
	}
	reg, shift, err := gainRegister(mod, step)
	if err != nil {
		return err
	}
	return d.update(reg, 0x0F<<shift, uint8(gain)<<shift)
}

// SampleTime returns the sample_time register.
func (d *Device) SampleTime() (uint16, error) { return d.read11(regSampleTime0) }

// SetSampleTime sets the sample_time register.
func (d *Device) SetSampleTime(v uint16) error { return d.write11(regSampleTime0, v) }

// ALSNumSamples returns the number of samples per integration cycle.
func (d *Device) ALSNumSamples() (uint16, error) { return d.read11(regALSNrSamples0) }

// SetALSNumSamples sets the number of samples per integration cycle.
func (d *Device) SetALSNumSamples(v uint16) error { return d.write11(regALSNrSamples0, v) }

// AGCNumSamples returns the AGC sample count.
func (d *Device) AGCNumSamples() (uint16, error) { return d.read11(regAGCNrSamples0) }

// SetAGCNumSamples sets the AGC sample count.
func (d *Device) SetAGCNumSamples(v uint16) error { return d.write11(regAGCNrSamples0, v) }

// AGCEnabled reports whether automatic gain control is on.
func (d *Device) AGCEnabled() (bool, error) {
	v, err := d.read(regModCalibCfg2)
	return v&modCalibAGCEnable != 0, err
}

// SetAGCEnabled turns automatic gain control on or off.
func (d *Device) SetAGCEnabled(on bool) error {
	return d.setBit(regModCalibCfg2, modCalibAGCEnable, on)
}

// SetAGCMaxGain limits the gain AGC may select.
func (d *Device) SetAGCMaxGain(gain Gain) error {
	if !gain.Valid() {
		return ErrInvalidGain
	}
	return d.update(regCfg8, 0xF0, uint8(gain)<<4)
}

// CalibrationNthIteration returns how often modulator calibration runs.
func (d *Device) CalibrationNthIteration() (uint8, error) {
	return d.read(regModCalibCfg0)
}

// SetCalibrationNthIteration sets how often modulator calibration runs.
func (d *Device) SetCalibrationNthIteration(v uint8) error {
	return d.write(regModCalibCfg0, v)
}

// SetModPhotodiodeSMUX routes photodiodes to modulators for one step.
func (d *Device) SetModPhotodiodeSMUX(step Step, routing Routing) error {
	s, err := step.index()
	if err != nil {
		return err
	}
	var packed uint16
	for i, mod := range routing {
		var v uint16
		if mod != ModNone {
			m, err := mod.index()
			if err != nil {
				return err
			}
			v = uint16(m + 1)
		}
		packed |= v << (2 * uint(i))
	}
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], packed)
	return d.bus.WriteMem(d.addr, regSMUXStep0+uint8(s*2), b[:], d.timeout)
}

// SetModChannelEnabled enables the given modulators and disables the rest.
func (d *Device) SetModChannelEnabled(mods Modulator) error {
	return d.write(regModChannelCtrl, uint8(^mods&ModAll))
}

// SetModResidualEnable enables saturation residual measurement of a
// modulator in the given steps.
func (d *Device) SetModResidualEnable(mod Modulator, steps Step) error {
	m, err := mod.index()
	if err != nil {
		return err
	}
	steps &= StepAll
	switch m {
	case 0:
		return d.update(regResidual0, 0x0F, uint8(steps))
	case 1:
		return d.update(regResidual0, 0xF0, uint8(steps)<<4)
	}
	return d.update(regResidual1, 0x0F, uint8(steps))
}

// SetModGainTableSelect selects the alternate gain table.
func (d *Device) SetModGainTableSelect(alternate bool) error {
	return d.setBit(regCfg3, cfg3AltGainTable, alternate)
}

// SetFIFOALSStatusWriteEnable appends ALS status bytes to every FIFO result.
func (d *Device) SetFIFOALSStatusWriteEnable(on bool) error {
	return d.setBit(regMeasMode0, measModeALSStatusWrite, on)
}

// SetFIFODataWriteEnable enables FIFO results for one modulator.
func (d *Device) SetFIFODataWriteEnable(mod Modulator, on bool) error {
	m, err := mod.index()
	if err != nil {
		return err
	}
	return d.setBit(regFIFODataCfg0+uint8(m), fifoDataCfgEnable, on)
}

// SetFIFOALSDataFormat selects the result width of one modulator.
func (d *Device) SetFIFOALSDataFormat(mod Modulator, format DataFormat) error {
	m, err := mod.index()
	if err != nil {
		return err
	}
	return d.update(regFIFODataCfg0+uint8(m), fifoDataCfgFormat, uint8(format))
}

// SetFIFOThreshold sets the FIFO level in bytes that raises the FIFO interrupt.
func (d *Device) SetFIFOThreshold(level uint16) error {
	words := level / 4
	if words > 0xFF {
		words = 0xFF
	}
	return d.write(regFIFOThr, uint8(words))
}

func decodeFIFOStatus(b0, b1 uint8) FIFOStatus {
	return FIFOStatus{
		Level:     uint16(b0)<<2 | uint16(b1&0x03),
		Overflow:  b1&fifoStatusOverflow != 0,
		Underflow: b1&fifoStatusUnderflow != 0,
	}
}

// FIFOStatus returns the FIFO level and error flags.
func (d *Device) FIFOStatus() (FIFOStatus, error) {
	var b [2]byte
	if err := d.bus.ReadMem(d.addr, regFIFOStatus0, b[:], d.timeout); err != nil {
		return FIFOStatus{}, err
	}
	return decodeFIFOStatus(b[0], b[1]), nil
}

// ReadFIFO drains len(buf) bytes from the FIFO.
func (d *Device) ReadFIFO(buf []byte) error {
	return d.bus.ReadMem(d.addr, regFIFOData, buf, d.timeout)
}

// ReadFIFOCombo reads the FIFO status and len(buf) data bytes in a single
// transaction.
func (d *Device) ReadFIFOCombo(buf []byte) (FIFOStatus, error) {
	n := len(buf) + 2
	if cap(d.combo) < n {
		d.combo = make([]byte, n)
	}
	tmp := d.combo[:n]
	if err := d.bus.ReadMem(d.addr, regFIFOStatus0, tmp, d.timeout); err != nil {
		return FIFOStatus{}, err
	}
	copy(buf, tmp[2:])
	return decodeFIFOStatus(tmp[0], tmp[1]), nil
}

// ClearFIFO discards every buffered result and the overflow flag.
func (d *Device) ClearFIFO() error {
	return d.write(regControl, controlFIFOClear)
}

// InterruptEnable returns the interrupt enable mask.
func (d *Device) InterruptEnable() (uint8, error) {
	v, err := d.read(regIntEnab)
	return v & intMask, err
}

// SetInterruptEnable sets the interrupt enable mask.
func (d *Device) SetInterruptEnable(mask uint8) error {
	return d.write(regIntEnab, mask&intMask)
}

// Status returns the main interrupt status register.
func (d *Device) Status() (uint8, error) { return d.read(regStatus) }

// SetStatus clears the status bits set in v.
func (d *Device) SetStatus(v uint8) error { return d.write(regStatus, v) }

// Status2 returns the ALS status register.
func (d *Device) Status2() (uint8, error) { return d.read(regStatus2) }

// Status4 returns the sleep and calibration status register.
func (d *Device) Status4() (uint8, error) { return d.read(regStatus4) }

// SetSleepAfterInterrupt makes the sensor halt after each interrupt.
func (d *Device) SetSleepAfterInterrupt(on bool) error {
	return d.setBit(regCfg0, cfg0SAI, on)
}

// ClearSleepAfterInterrupt resumes a sensor halted by sleep-after-interrupt.
func (d *Device) ClearSleepAfterInterrupt() error {
	return d.write(regControl, controlClearSAI)
}
