package cbor

import (
	"encoding/binary"
	"math"
)

// appendUintCore appends an item head: the initial byte for majorType and
// u in the shortest argument form.
func appendUintCore(b []byte, majorType uint8, u uint64) []byte {
	switch {
	case u <= addInfoDirect:
		return append(b, makeByte(majorType, uint8(u)))
	case u <= math.MaxUint8:
		return append(b, makeByte(majorType, addInfoUint8), uint8(u))
	case u <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(b, makeByte(majorType, addInfoUint16)), uint16(u))
	case u <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(b, makeByte(majorType, addInfoUint32)), uint32(u))
	default:
		return binary.BigEndian.AppendUint64(append(b, makeByte(majorType, addInfoUint64)), u)
	}
}

// AppendMapHeader appends a definite map head for sz pairs.
func AppendMapHeader(b []byte, sz uint32) []byte {
	return appendUintCore(b, majorTypeMap, uint64(sz))
}

// AppendArrayHeader appends a definite array head for sz items.
func AppendArrayHeader(b []byte, sz uint32) []byte {
	return appendUintCore(b, majorTypeArray, uint64(sz))
}

func AppendNil(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleNull))
}

func AppendUndefined(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleUndefined))
}

// AppendBreak appends the stop code closing an indefinite item.
func AppendBreak(b []byte) []byte {
	return append(b, makeByte(majorTypeSimple, simpleBreak))
}

func AppendFloat64(b []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(append(b, makeByte(majorTypeSimple, simpleFloat64)), math.Float64bits(f))
}

func AppendFloat32(b []byte, f float32) []byte {
	return binary.BigEndian.AppendUint32(append(b, makeByte(majorTypeSimple, simpleFloat32)), math.Float32bits(f))
}

// AppendFloat16 appends a half precision float from its raw bits.
func AppendFloat16(b []byte, h Float16) []byte {
	return binary.BigEndian.AppendUint16(append(b, makeByte(majorTypeSimple, simpleFloat16)), uint16(h))
}

// AppendFloatCompact appends f in the narrowest of the three widths that
// holds it exactly, NaN payload included.
func AppendFloatCompact(b []byte, f float64) []byte {
	if !float64IsFloat32(f) {
		return AppendFloat64(b, f)
	}
	f32 := float32(f)
	if float32IsFloat16(f32) {
		return AppendFloat16(b, Float16From(f32))
	}
	return AppendFloat32(b, f32)
}

// AppendInt64 appends i as major type 0 when non-negative and as major
// type 1 with argument -1-i otherwise.
func AppendInt64(b []byte, i int64) []byte {
	if i < 0 {
		return appendUintCore(b, majorTypeNegInt, uint64(-1-i))
	}
	return appendUintCore(b, majorTypeUint, uint64(i))
}

func AppendUint64(b []byte, u uint64) []byte {
	return appendUintCore(b, majorTypeUint, u)
}

// AppendBytes appends data as a definite byte string.
func AppendBytes(b []byte, data []byte) []byte {
	return append(appendUintCore(b, majorTypeBytes, uint64(len(data))), data...)
}

// AppendByteString appends s as a definite byte string.
func AppendByteString(b []byte, s string) []byte {
	return append(appendUintCore(b, majorTypeBytes, uint64(len(s))), s...)
}

// AppendString appends s as a definite text string. s is not checked for
// valid UTF-8.
func AppendString(b []byte, s string) []byte {
	return append(appendUintCore(b, majorTypeText, uint64(len(s))), s...)
}

func AppendBool(b []byte, val bool) []byte {
	if val {
		return append(b, makeByte(majorTypeSimple, simpleTrue))
	}
	return append(b, makeByte(majorTypeSimple, simpleFalse))
}

// AppendTag appends the head of tag number tag; the content follows.
func AppendTag(b []byte, tag uint64) []byte {
	return appendUintCore(b, majorTypeTag, tag)
}

// AppendSelfDescribeCBOR appends the self-describe tag 55799 (d9 d9 f7).
func AppendSelfDescribeCBOR(b []byte) []byte {
	return append(b, selfDescribePrefix...)
}
