package cbor

import "math"

// Flags tune how values map to CBOR. Encode and decode share the namespace.
type Flags uint32

const (
	// FlagSelfDescribe emits the self-describe tag on encode and keeps it
	// as a Tag on decode (instead of stripping it).
	FlagSelfDescribe Flags = 1 << iota
	// FlagByte maps Go string <-> CBOR byte string.
	FlagByte
	// FlagText maps Go string <-> CBOR text string.
	FlagText
	// FlagIntKey allows integer map keys.
	FlagIntKey
	// FlagKeyByte maps string map keys <-> CBOR byte strings.
	FlagKeyByte
	// FlagKeyText maps string map keys <-> CBOR text strings.
	FlagKeyText
	// FlagNativeMap decodes maps into map[any]any instead of *Map.
	FlagNativeMap
	// FlagUnsafeText skips UTF-8 validation.
	FlagUnsafeText
	FlagFloat16
	FlagFloat32
	// FlagNoDupKey rejects duplicate map keys on decode.
	FlagNoDupKey
	// FlagCDE selects core deterministic encoding.
	FlagCDE
	// FlagEDN makes Decode return Extended Diagnostic Notation text.
	FlagEDN
)

// DefaultFlags is used when no options are given.
const DefaultFlags = FlagText | FlagKeyText

const (
	stringFlags    = FlagByte | FlagText
	keyStringFlags = FlagKeyByte | FlagKeyText
	floatFlags     = FlagFloat16 | FlagFloat32
)

// StringRefMode controls string reference handling on encode.
type StringRefMode uint8

const (
	StringRefOff StringRefMode = iota
	// StringRefOn opens a namespace at the root.
	StringRefOn
	// StringRefExplicit honors only namespaces placed with Tag{256, ...}.
	StringRefExplicit
)

// SharedRefMode controls shared reference handling.
type SharedRefMode uint8

const (
	SharedRefOff SharedRefMode = iota
	// SharedRefOn shares reference values (*Map, *Tag, *Shareable).
	SharedRefOn
	// SharedRefUnsafe also shares slices and Go maps by identity (encode).
	SharedRefUnsafe
	// SharedRefWrap wraps shared values that have no reference identity in
	// *Shareable (decode).
	SharedRefWrap
)

// EncodeOptions configures Encode and Writer.
type EncodeOptions struct {
	Flags     Flags
	MaxDepth  int
	StringRef StringRefMode
	SharedRef SharedRefMode

	// semantic types
	Datetime bool
	Bignum   bool
	Decimal  bool
	URI      bool
}

// DefaultEncodeOptions returns the options used when nil is passed.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Flags:    DefaultFlags,
		MaxDepth: defaultMaxDepth,
		Datetime: true,
		Bignum:   true,
		Decimal:  true,
		URI:      true,
	}
}

// Validate checks flags and option ranges.
func (o *EncodeOptions) Validate() error {
	if o.Flags&stringFlags == stringFlags {
		return newError(CodeInvalidFlags, DetailBothStringFlag)
	}
	if o.Flags&keyStringFlags == keyStringFlags {
		return newError(CodeInvalidFlags, DetailBothKeyStringFlag)
	}
	if o.Flags&FlagEDN != 0 {
		return ErrInvalidFlags
	}
	if o.MaxDepth < 0 || o.MaxDepth > maxDepthLimit {
		return ErrInvalidOptions
	}
	if o.StringRef > StringRefExplicit {
		return ErrInvalidOptions
	}
	switch o.SharedRef {
	case SharedRefOff:
	case SharedRefOn, SharedRefUnsafe:
		if o.Flags&FlagCDE != 0 {
			return ErrInvalidOptions
		}
	default:
		return ErrInvalidOptions
	}
	return nil
}

// EDNOptions controls EDN layout.
type EDNOptions struct {
	// Indent is the number of spaces (0..16) per level; 0 keeps one line.
	Indent int
	// IndentTab indents with one tab per level. It overrides Indent.
	IndentTab bool
	// Space puts a space after ':' and ','.
	Space bool
	// ByteSpace is a bitmask (0..63) of byte group sizes separated by a
	// space inside h'...'.
	ByteSpace int
	// ByteWrap is the number of bytes (1..1024) per h'...' line, or 0.
	ByteWrap int
}

// DecodeOptions configures Decode, Decoder and Reader.
type DecodeOptions struct {
	Flags     Flags
	MaxDepth  int
	MaxSize   int64
	StringRef bool
	SharedRef SharedRefMode
	EDN       EDNOptions
}

// DefaultDecodeOptions returns the options used when nil is passed.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		Flags:     DefaultFlags,
		MaxDepth:  defaultMaxDepth,
		MaxSize:   defaultMaxSize,
		StringRef: true,
		EDN:       EDNOptions{Space: true},
	}
}

// Validate checks flags and option ranges.
func (o *DecodeOptions) Validate() error {
	if o.Flags&floatFlags == floatFlags {
		return ErrInvalidFlags
	}
	if o.MaxDepth < 0 || o.MaxDepth > maxDepthLimit {
		return ErrInvalidOptions
	}
	if o.MaxSize < 0 || o.MaxSize > math.MaxUint32 {
		return ErrInvalidOptions
	}
	switch o.SharedRef {
	case SharedRefOff, SharedRefOn, SharedRefWrap:
	default:
		return ErrInvalidOptions
	}
	e := &o.EDN
	if e.Indent < 0 || e.Indent > 16 || e.ByteSpace < 0 || e.ByteSpace > 63 ||
		e.ByteWrap < 0 || e.ByteWrap > 1024 {
		return ErrInvalidOptions
	}
	return nil
}

// ParseEncodeOptions builds EncodeOptions from loosely typed values, as read
// from YAML or JSON. Unknown keys are ignored.
func ParseEncodeOptions(flags Flags, m map[string]any) (EncodeOptions, error) {
	o := DefaultEncodeOptions()
	o.Flags = flags
	var err error
	if o.MaxDepth, err = intOption(m, "max_depth", 0, maxDepthLimit, o.MaxDepth); err != nil {
		return o, err
	}
	if v, ok := m["string_ref"]; ok {
		switch v {
		case true:
			o.StringRef = StringRefOn
		case false:
			o.StringRef = StringRefOff
		case "explicit":
			o.StringRef = StringRefExplicit
		default:
			return o, ErrInvalidOptions
		}
	}
	if v, ok := m["shared_ref"]; ok {
		switch v {
		case true:
			o.SharedRef = SharedRefOn
		case false:
			o.SharedRef = SharedRefOff
		case "unsafe_ref":
			o.SharedRef = SharedRefUnsafe
		default:
			return o, ErrInvalidOptions
		}
	}
	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"datetime", &o.Datetime},
		{"bignum", &o.Bignum},
		{"decimal", &o.Decimal},
		{"uri", &o.URI},
	} {
		if *b.dst, err = boolOption(m, b.name, *b.dst); err != nil {
			return o, err
		}
	}
	return o, o.Validate()
}

// ParseDecodeOptions builds DecodeOptions from loosely typed values. The
// shared_ref values "shareable", "shareable_only" and "unsafe_ref" all
// select SharedRefWrap.
func ParseDecodeOptions(flags Flags, m map[string]any) (DecodeOptions, error) {
	o := DefaultDecodeOptions()
	o.Flags = flags
	var err error
	if o.MaxDepth, err = intOption(m, "max_depth", 0, maxDepthLimit, o.MaxDepth); err != nil {
		return o, err
	}
	size, err := intOption(m, "max_size", 0, math.MaxUint32, int(o.MaxSize))
	if err != nil {
		return o, err
	}
	o.MaxSize = int64(size)
	if o.StringRef, err = boolOption(m, "string_ref", o.StringRef); err != nil {
		return o, err
	}
	if v, ok := m["shared_ref"]; ok {
		switch v {
		case true:
			o.SharedRef = SharedRefOn
		case false:
			o.SharedRef = SharedRefOff
		case "shareable", "shareable_only", "unsafe_ref":
			o.SharedRef = SharedRefWrap
		default:
			return o, ErrInvalidOptions
		}
	}
	if v, ok := m["indent"]; ok {
		switch v {
		case false:
			o.EDN.Indent, o.EDN.IndentTab = 0, false
		case "\t":
			o.EDN.Indent, o.EDN.IndentTab = 1, true
		default:
			if o.EDN.Indent, err = intOption(m, "indent", 0, 16, 0); err != nil {
				return o, err
			}
		}
	}
	if o.EDN.Space, err = boolOption(m, "space", o.EDN.Space); err != nil {
		return o, err
	}
	if o.EDN.ByteSpace, err = intOption(m, "byte_space", 0, 63, o.EDN.ByteSpace); err != nil {
		return o, err
	}
	if v, ok := m["byte_wrap"]; ok && v == false {
		o.EDN.ByteWrap = 0
	} else if o.EDN.ByteWrap, err = intOption(m, "byte_wrap", 1, 1024, o.EDN.ByteWrap); err != nil {
		return o, err
	}
	return o, o.Validate()
}

func boolOption(m map[string]any, name string, def bool) (bool, error) {
	v, ok := m[name]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return def, ErrInvalidOptions
	}
	return b, nil
}

func intOption(m map[string]any, name string, lo, hi int64, def int) (int, error) {
	v, ok := m[name]
	if !ok {
		return def, nil
	}
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > math.MaxInt64 {
			return def, ErrInvalidOptions
		}
		n = int64(x)
	case float64:
		// JSON numbers
		if x != math.Trunc(x) {
			return def, ErrInvalidOptions
		}
		n = int64(x)
	default:
		return def, ErrInvalidOptions
	}
	if n < lo || n > hi {
		return def, ErrInvalidOptions
	}
	return int(n), nil
}

func encodeOptionsOrDefault(opts *EncodeOptions) (EncodeOptions, error) {
	if opts == nil {
		return DefaultEncodeOptions(), nil
	}
	o := *opts
	return o, o.Validate()
}

func decodeOptionsOrDefault(opts *DecodeOptions) (DecodeOptions, error) {
	if opts == nil {
		return DefaultDecodeOptions(), nil
	}
	o := *opts
	return o, o.Validate()
}
