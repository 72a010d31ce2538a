package cbor

import (
	"encoding/binary"
	"math"
)

var be = binary.BigEndian

// itemKind classifies one data item independently of its major type.
type itemKind uint8

const (
	kindUint itemKind = iota
	kindNegInt
	kindBytes
	kindText
	kindArray
	kindMap
	kindTag
	kindFalse
	kindTrue
	kindNull
	kindUndefined
	kindSimple
	kindFloat16
	kindFloat32
	kindFloat64
	kindBreak
)

// item is one parsed data item header.
//
// arg holds the integer magnitude, string length, container count, tag
// number, simple value or raw float bits. For definite strings data is a
// view into the input; it is never copied.
type item struct {
	kind  itemKind
	arg   uint64
	indef bool
	data  []byte
	// size is the number of input bytes the item occupies, including the
	// payload of a definite string.
	size int
}

// readItem parses the data item at the start of b. It reports
// ErrTruncatedData when b ends inside the item and ErrMalformedData for
// encodings RFC 8949 does not allow.
func readItem(b []byte) (it item, err error) {
	if len(b) < 1 {
		return it, ErrTruncatedData
	}
	major := getMajorType(b[0])
	addInfo := getAddInfo(b[0])

	var arg uint64
	size := 1
	switch {
	case addInfo <= addInfoDirect:
		arg = uint64(addInfo)
	case addInfo == addInfoUint8:
		if len(b) < 2 {
			return it, ErrTruncatedData
		}
		arg, size = uint64(b[1]), 2
	case addInfo == addInfoUint16:
		if len(b) < 3 {
			return it, ErrTruncatedData
		}
		arg, size = uint64(be.Uint16(b[1:])), 3
	case addInfo == addInfoUint32:
		if len(b) < 5 {
			return it, ErrTruncatedData
		}
		arg, size = uint64(be.Uint32(b[1:])), 5
	case addInfo == addInfoUint64:
		if len(b) < 9 {
			return it, ErrTruncatedData
		}
		arg, size = be.Uint64(b[1:]), 9
	case addInfo == addInfoIndefinite:
		it.indef = true
	default:
		// 28-30 are reserved
		return it, ErrMalformedData
	}
	it.arg, it.size = arg, size

	switch major {
	case majorTypeUint, majorTypeNegInt, majorTypeTag:
		if it.indef {
			return it, ErrMalformedData
		}
		switch major {
		case majorTypeUint:
			it.kind = kindUint
		case majorTypeNegInt:
			it.kind = kindNegInt
		default:
			it.kind = kindTag
		}
	case majorTypeBytes, majorTypeText:
		it.kind = kindBytes
		if major == majorTypeText {
			it.kind = kindText
		}
		if it.indef {
			return it, nil
		}
		if arg > math.MaxUint32 {
			return it, ErrUnsupportedSize
		}
		if arg > uint64(len(b)-size) {
			return it, ErrTruncatedData
		}
		it.data = b[size : size+int(arg)]
		it.size += int(arg)
	case majorTypeArray:
		it.kind = kindArray
	case majorTypeMap:
		it.kind = kindMap
	default:
		return readSimple(b, it)
	}
	return it, nil
}

func readSimple(b []byte, it item) (item, error) {
	addInfo := getAddInfo(b[0])
	switch {
	case addInfo < simpleFalse:
		it.kind = kindSimple
	case addInfo == simpleFalse:
		it.kind = kindFalse
	case addInfo == simpleTrue:
		it.kind = kindTrue
	case addInfo == simpleNull:
		it.kind = kindNull
	case addInfo == simpleUndefined:
		it.kind = kindUndefined
	case addInfo == simpleExtended:
		// RFC 8949 3.3: values below 32 must use the one-byte form
		if it.arg < 32 {
			return it, ErrMalformedData
		}
		it.kind = kindSimple
	case addInfo == simpleFloat16:
		it.kind = kindFloat16
	case addInfo == simpleFloat32:
		it.kind = kindFloat32
	case addInfo == simpleFloat64:
		it.kind = kindFloat64
	default:
		it.kind = kindBreak
		it.indef = false
	}
	return it, nil
}

func (it *item) isString() bool { return it.kind == kindBytes || it.kind == kindText }
