package settings

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/chewxy/math32"
)

// Identification page layout.
const (
	IDPageSize = 16

	idMemoryID = 0
	idKind     = 3
	idRevMajor = 4
	idRevMinor = 5
	idSerial   = 12
)

// MemoryID is the manufacturer/family/density signature of the supported EEPROM.
var MemoryID = [3]byte{0x20, 0xE0, 0x08}

// Calibration page layout. The header checksum covers bytes 0..63 with the
// checksum field zeroed; the slope and target blocks carry their own
// checksums so they can be rewritten independently.
const (
	PageSize = 128
	Version  = 1

	offVersion   = 0
	offChecksum  = 4
	offKind      = 8
	offGain      = 16
	headerEnd    = 64
	offSlope     = 64
	offSlopeCRC  = 76
	offTarget    = 80
	offTargetCRC = 104
)

// DecodeID parses an identification page.
func DecodeID(b []byte) (ID, error) {
	if len(b) < IDPageSize {
		return ID{}, fmt.Errorf("settings: short id page (%d bytes)", len(b))
	}
	if [3]byte(b[idMemoryID:idMemoryID+3]) != MemoryID {
		return ID{}, fmt.Errorf("%w: % X", ErrUnknownMemory, b[idMemoryID:idMemoryID+3])
	}
	return ID{
		Kind:     Kind(b[idKind]),
		RevMajor: b[idRevMajor],
		RevMinor: b[idRevMinor],
		Serial:   binary.LittleEndian.Uint32(b[idSerial:]),
	}, nil
}

// EncodeID builds an identification page.
func EncodeID(id ID) []byte {
	b := make([]byte, IDPageSize)
	copy(b[idMemoryID:], MemoryID[:])
	b[idKind] = uint8(id.Kind)
	b[idRevMajor] = id.RevMajor
	b[idRevMinor] = id.RevMinor
	binary.LittleEndian.PutUint32(b[idSerial:], id.Serial)
	return b
}

func putFloats(b []byte, vs ...float32) {
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], math32.Float32bits(v))
	}
}

func getFloat(b []byte) float32 {
	return math32.Float32frombits(binary.LittleEndian.Uint32(b))
}

func checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Encode builds a calibration page.
func Encode(s Settings) []byte {
	b := make([]byte, PageSize)
	binary.LittleEndian.PutUint32(b[offVersion:], Version)
	b[offKind] = uint8(s.Kind)
	putFloats(b[offGain:], s.Gain[:]...)

	putFloats(b[offSlope:], s.Slope.B0, s.Slope.B1, s.Slope.B2)
	binary.LittleEndian.PutUint32(b[offSlopeCRC:], checksum(b[offSlope:offSlopeCRC]))

	putFloats(b[offTarget:],
		s.Target.Slope, s.Target.Intercept,
		s.Density.LoDensity, s.Density.LoReading, s.Density.HiDensity, s.Density.HiReading)
	binary.LittleEndian.PutUint32(b[offTargetCRC:], checksum(b[offTarget:offTargetCRC]))

	binary.LittleEndian.PutUint32(b[offChecksum:], checksum(b[:headerEnd]))
	return b
}

// Decode parses a calibration page. A damaged slope or target block decodes
// to NaN coefficients rather than an error.
func Decode(b []byte) (Settings, error) {
	var s Settings
	if len(b) < PageSize {
		return s, fmt.Errorf("settings: short calibration page (%d bytes)", len(b))
	}

	if v := binary.LittleEndian.Uint32(b[offVersion:]); v != Version {
		return s, fmt.Errorf("%w: %d", ErrVersion, v)
	}

	header := make([]byte, headerEnd)
	copy(header, b[:headerEnd])
	want := binary.LittleEndian.Uint32(header[offChecksum:])
	binary.LittleEndian.PutUint32(header[offChecksum:], 0)
	if got := checksum(header); got != want {
		return s, fmt.Errorf("%w: header 0x%08X != 0x%08X", ErrChecksum, got, want)
	}

	s.Kind = Kind(b[offKind])
	for i := range s.Gain {
		s.Gain[i] = getFloat(b[offGain+i*4:])
	}

	nan := math32.NaN()
	if checksum(b[offSlope:offSlopeCRC]) == binary.LittleEndian.Uint32(b[offSlopeCRC:]) {
		s.Slope = Slope{
			B0: getFloat(b[offSlope:]),
			B1: getFloat(b[offSlope+4:]),
			B2: getFloat(b[offSlope+8:]),
		}
	} else {
		s.Slope = Slope{B0: nan, B1: nan, B2: nan}
	}

	if checksum(b[offTarget:offTargetCRC]) == binary.LittleEndian.Uint32(b[offTargetCRC:]) {
		s.Target = LinearTarget{
			Slope:     getFloat(b[offTarget:]),
			Intercept: getFloat(b[offTarget+4:]),
		}
		s.Density = DensityTarget{
			LoDensity: getFloat(b[offTarget+8:]),
			LoReading: getFloat(b[offTarget+12:]),
			HiDensity: getFloat(b[offTarget+16:]),
			HiReading: getFloat(b[offTarget+20:]),
		}
	} else {
		s.Target = LinearTarget{Slope: nan, Intercept: nan}
		s.Density = DensityTarget{LoDensity: nan, LoReading: nan, HiDensity: nan, HiReading: nan}
	}

	return s, nil
}
