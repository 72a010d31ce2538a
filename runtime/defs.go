// Package cbor is a CBOR (RFC 8949) codec.
//
// It converts between Go value trees and CBOR bytes, and renders CBOR as
// Extended Diagnostic Notation (EDN). The decoder is an explicit stack
// machine, so it never recurses on the input and can be resumed when more
// bytes arrive (see Decoder). Both directions understand the string
// reference (tags 256/25) and shared reference (tags 28/29) extensions.
//
// The package exposes these families of functions:
//   - Encode / NewWriter turn a value tree into CBOR.
//   - Decode / DecodeEDN / NewDecoder / NewReader turn CBOR into values or EDN text.
//   - ToJSON / FromJSON bridge decoded values to and from JSON.
package cbor

// CBOR major types (3 bits)
const (
	majorTypeUint   = 0 // unsigned integer
	majorTypeNegInt = 1 // negative integer
	majorTypeBytes  = 2 // byte string
	majorTypeText   = 3 // text string (UTF-8)
	majorTypeArray  = 4 // array
	majorTypeMap    = 5 // map
	majorTypeTag    = 6 // semantic tag
	majorTypeSimple = 7 // float, simple values, break
)

// Additional info values (5 bits)
const (
	// 0-23: literal value
	addInfoDirect     = 23 // max direct value
	addInfoUint8      = 24 // 1-byte uint8 follows
	addInfoUint16     = 25 // 2-byte uint16 follows
	addInfoUint32     = 26 // 4-byte uint32 follows
	addInfoUint64     = 27 // 8-byte uint64 follows
	addInfoIndefinite = 31 // indefinite length (for bytes, text, array, map)
)

// Simple values in major type 7
const (
	simpleFalse     = 20
	simpleTrue      = 21
	simpleNull      = 22
	simpleUndefined = 23
	simpleExtended  = 24
	simpleFloat16   = 25
	simpleFloat32   = 26
	simpleFloat64   = 27
	simpleBreak     = 31
)

// Registered tag numbers.
const (
	TagDateTime        = 0     // RFC 3339 date/time string
	TagEpochDateTime   = 1     // epoch-based date/time
	TagPosBignum       = 2     // positive bignum
	TagNegBignum       = 3     // negative bignum
	TagDecimalFraction = 4     // decimal fraction [exponent, mantissa]
	TagBigfloat        = 5     // bigfloat [exponent, mantissa]
	TagBase64URLHint   = 21    // expected conversion to base64url
	TagBase64Hint      = 22    // expected conversion to base64
	TagBase16Hint      = 23    // expected conversion to base16
	TagEmbeddedCBOR    = 24    // embedded CBOR data item
	TagStringRef       = 25    // reference into the string-ref namespace
	TagShareable       = 28    // value that may be referenced
	TagSharedRef       = 29    // reference to a shareable value
	TagURI             = 32    // URI
	TagBase64URL       = 33    // base64url text
	TagBase64          = 34    // base64 text
	TagRegexp          = 35    // regular expression
	TagMIME            = 36    // MIME message
	TagStringRefNS     = 256   // string-ref namespace
	TagSelfDescribe    = 55799 // self-describe CBOR (0xd9d9f7)
)

// selfDescribePrefix is the wire form of TagSelfDescribe.
const selfDescribePrefix = "\xd9\xd9\xf7"

const (
	// sizeInitLimit caps the capacity preallocated for a declared
	// array or map count; larger containers grow on append.
	sizeInitLimit = 4096

	defaultMaxDepth = 64
	defaultMaxSize  = 65536
	maxDepthLimit   = 10000
)

// makeByte creates a CBOR initial byte from major type and additional info
func makeByte(majorType, addInfo uint8) byte {
	return byte((majorType << 5) | addInfo)
}

// getMajorType extracts the major type from a CBOR initial byte
func getMajorType(b byte) uint8 {
	return (b >> 5) & 0x07
}

// getAddInfo extracts the additional info from a CBOR initial byte
func getAddInfo(b byte) uint8 {
	return b & 0x1f
}

// Marshaler is implemented by types that can describe themselves as a
// value the encoder already understands. The returned value is encoded in
// place of the receiver.
type Marshaler interface {
	MarshalCBORValue() (any, error)
}
