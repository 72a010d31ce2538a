package cbor

import (
	"math"
	"strconv"

	"github.com/x448/float16"
)

// Float16 is an IEEE 754 binary16 value kept as its raw bits, so that a
// decoded half-precision float encodes back to the same two bytes.
type Float16 uint16

// Float16From rounds f to the nearest binary16 value.
func Float16From(f float32) Float16 { return Float16(float16.Fromfloat32(f).Bits()) }

// Float32 widens the value without loss.
func (f Float16) Float32() float32 { return float16.Frombits(uint16(f)).Float32() }

// Float64 widens the value without loss.
func (f Float16) Float64() float64 { return float64(f.Float32()) }

func (f Float16) String() string {
	return strconv.FormatFloat(f.Float64(), 'g', -1, 32)
}

// Float32 is a single precision float that encodes as binary32.
type Float32 float32

// float32IsFloat16 reports whether f survives a round trip through
// binary16, NaN payloads included.
func float32IsFloat16(f float32) bool {
	h := float16.Fromfloat32(f)
	return math.Float32bits(h.Float32()) == math.Float32bits(f)
}

// float64IsFloat32 reports whether f survives a round trip through
// binary32.
func float64IsFloat32(f float64) bool {
	if math.IsNaN(f) {
		// only the payload bits binary32 can carry
		return math.Float64bits(f)&(1<<29-1) == 0
	}
	return float64(float32(f)) == f
}

func float64FromHalfBits(h uint16) float64 { return Float16(h).Float64() }
