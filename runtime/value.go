package cbor

import "strconv"

// Byte is a CBOR byte string. Decode produces it unless FlagByte is set.
type Byte string

// Text is a CBOR text string. Decode produces it unless FlagText is set.
type Text string

// Undefined is the CBOR undefined simple value.
type Undefined struct{}

func (Undefined) String() string { return "undefined" }

// Tag is a tagged data item the codec has no special meaning for.
type Tag struct {
	Number  uint64
	Content any
}

// NewTag returns a Tag wrapping content.
func NewTag(number uint64, content any) *Tag { return &Tag{Number: number, Content: content} }

// Shareable marks a value as referenceable (tag 28). Back-references
// (tag 29) decode to the same *Shareable pointer.
type Shareable struct {
	Value any
}

// EncodeParams overrides flags and semantic type options for the
// subtree in Value.
type EncodeParams struct {
	Value any
	// Flags are added. Setting one side of a byte/text pair clears
	// the other side.
	Flags Flags
	// FlagsClear are removed. FlagCDE cannot be cleared.
	FlagsClear Flags
	// Options may override "datetime", "bignum", "decimal" and "uri".
	Options map[string]any
}

// extInt is an integer outside int64. It is legal only until it lands
// in a map key, where it becomes its decimal string.
type extInt struct {
	neg bool
	// mag is the CBOR argument: the value for unsigned, -1-value for
	// negative.
	mag uint64
}

func (x extInt) String() string {
	if !x.neg {
		return strconv.FormatUint(x.mag, 10)
	}
	if x.mag == ^uint64(0) {
		return "-18446744073709551616"
	}
	return "-" + strconv.FormatUint(x.mag+1, 10)
}

func intValue(neg bool, mag uint64) any {
	if mag > 1<<63-1 {
		return extInt{neg: neg, mag: mag}
	}
	if neg {
		return -int64(mag) - 1
	}
	return int64(mag)
}
