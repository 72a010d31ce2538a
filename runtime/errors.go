package cbor

import (
	"errors"
	"strconv"
)

const resumableDefault = false

// Code classifies a codec failure. The numeric values are stable.
type Code uint8

// Error codes
const (
	CodeInvalidFlags       Code = 1
	CodeInvalidOptions     Code = 2
	CodeDepth              Code = 3
	CodeRecursion          Code = 4
	CodeSyntax             Code = 5
	CodeUTF8               Code = 6
	CodeUnsupportedType    Code = 17
	CodeUnsupportedValue   Code = 18
	CodeUnsupportedSize    Code = 19
	CodeUnsupportedKeyType Code = 25
	CodeUnsupportedKeyVal  Code = 26
	CodeUnsupportedKeySize Code = 27
	CodeDuplicateKey       Code = 28
	CodeTruncatedData      Code = 33
	CodeMalformedData      Code = 34
	CodeExtraneousData     Code = 35
	CodeTagSyntax          Code = 41
	CodeTagType            Code = 42
	CodeTagValue           Code = 43
	CodeInternal           Code = 241
)

var codeNames = map[Code]string{
	CodeInvalidFlags:       "invalid flags",
	CodeInvalidOptions:     "invalid options",
	CodeDepth:              "depth",
	CodeRecursion:          "recursion",
	CodeSyntax:             "syntax",
	CodeUTF8:               "utf8",
	CodeUnsupportedType:    "unsupported type",
	CodeUnsupportedValue:   "unsupported value",
	CodeUnsupportedSize:    "unsupported size",
	CodeUnsupportedKeyType: "unsupported key type",
	CodeUnsupportedKeyVal:  "unsupported key value",
	CodeUnsupportedKeySize: "unsupported key size",
	CodeDuplicateKey:       "duplicate key",
	CodeTruncatedData:      "truncated data",
	CodeMalformedData:      "malformed data",
	CodeExtraneousData:     "extraneous data",
	CodeTagSyntax:          "tag syntax",
	CodeTagType:            "tag type",
	CodeTagValue:           "tag value",
	CodeInternal:           "internal",
}

// String implements fmt.Stringer
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "code " + strconv.Itoa(int(c))
}

// Detail narrows a Code down to the rule that was violated.
type Detail uint8

// Error details
const (
	DetailNone Detail = iota
	DetailBothStringFlag
	DetailBothKeyStringFlag
	DetailNoStringFlag
	DetailNoKeyStringFlag
	DetailClearCDE
	DetailBreakUnderflow
	DetailBreakUnexpected
	DetailInconsistentStringType
	DetailIndefStringChunkType
	DetailSimple
	DetailIntRange
	DetailIntKey
	DetailKeyByte
	DetailKeyText
	DetailKeyNull
	DetailKeyBool
	DetailKeyFloat
	DetailKeyArray
	DetailKeyObject
	DetailKeyUndefined
	DetailKeyTag
	DetailReservedPropName
	DetailStrRefNoNS
	DetailShareNested
	DetailStrRefNotInt
	DetailShareIncompatible
	DetailShareNotInt
	DetailStrRefRange
	DetailShareRange
)

var detailNames = [...]string{
	DetailBothStringFlag:         "both byte and text flags",
	DetailBothKeyStringFlag:      "both key byte and key text flags",
	DetailNoStringFlag:           "no string flag",
	DetailNoKeyStringFlag:        "no key string flag",
	DetailClearCDE:               "cannot clear CDE",
	DetailBreakUnderflow:         "break outside container",
	DetailBreakUnexpected:        "unexpected break",
	DetailInconsistentStringType: "inconsistent string chunk type",
	DetailIndefStringChunkType:   "non-string chunk in indefinite string",
	DetailSimple:                 "simple value",
	DetailIntRange:               "integer out of range",
	DetailIntKey:                 "integer key",
	DetailKeyByte:                "byte string key",
	DetailKeyText:                "text string key",
	DetailKeyNull:                "null key",
	DetailKeyBool:                "bool key",
	DetailKeyFloat:               "float key",
	DetailKeyArray:               "array key",
	DetailKeyObject:              "map key",
	DetailKeyUndefined:           "undefined key",
	DetailKeyTag:                 "tag key",
	DetailReservedPropName:       "reserved key name",
	DetailStrRefNoNS:             "string ref outside namespace",
	DetailShareNested:            "nested shareable",
	DetailStrRefNotInt:           "string ref is not an integer",
	DetailShareIncompatible:      "value cannot be shared",
	DetailShareNotInt:            "shared ref is not an integer",
	DetailStrRefRange:            "string ref out of range",
	DetailShareRange:             "shared ref out of range",
}

// String implements fmt.Stringer
func (d Detail) String() string {
	if int(d) < len(detailNames) {
		return detailNames[d]
	}
	return ""
}

// Error is the interface satisfied
// by all of the errors that originate
// from this package.
type Error interface {
	error

	// Resumable returns whether
	// or not the error means that
	// the input ended early and
	// decoding may continue once
	// more bytes are supplied.
	Resumable() bool
}

// CodeError is the concrete error returned by Encode, Decode and the
// incremental Decoder.
type CodeError struct {
	Code   Code
	Detail Detail
	// Offset is the byte offset into the input, or -1 when it does
	// not apply (encode side, option validation).
	Offset int64
}

func newError(code Code, detail Detail) *CodeError {
	return &CodeError{Code: code, Detail: detail, Offset: -1}
}

func (e *CodeError) at(offset int64) *CodeError {
	o := *e
	o.Offset = offset
	return &o
}

// Error implements the error interface
func (e *CodeError) Error() string {
	out := "cbor: " + e.Code.String()
	if s := e.Detail.String(); s != "" {
		out += " (" + s + ")"
	}
	if e.Offset >= 0 {
		out += " at offset " + strconv.FormatInt(e.Offset, 10)
	}
	return out
}

// Resumable is true only for truncated input.
func (e *CodeError) Resumable() bool { return e.Code == CodeTruncatedData }

// Is matches sentinel errors by code; a sentinel with a detail also
// requires the detail to match.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Detail == DetailNone || t.Detail == e.Detail)
}

// Name returns the short EDN name of the error code, or "" when the code
// has none.
func (e *CodeError) Name() string { return ednErrorName(e.Code) }

var (
	ErrInvalidFlags       = newError(CodeInvalidFlags, DetailNone)
	ErrInvalidOptions     = newError(CodeInvalidOptions, DetailNone)
	ErrDepth              = newError(CodeDepth, DetailNone)
	ErrRecursion          = newError(CodeRecursion, DetailNone)
	ErrSyntax             = newError(CodeSyntax, DetailNone)
	ErrUTF8               = newError(CodeUTF8, DetailNone)
	ErrUnsupportedType    = newError(CodeUnsupportedType, DetailNone)
	ErrUnsupportedValue   = newError(CodeUnsupportedValue, DetailNone)
	ErrUnsupportedSize    = newError(CodeUnsupportedSize, DetailNone)
	ErrUnsupportedKeyType = newError(CodeUnsupportedKeyType, DetailNone)
	ErrUnsupportedKeyVal  = newError(CodeUnsupportedKeyVal, DetailNone)
	ErrDuplicateKey       = newError(CodeDuplicateKey, DetailNone)
	ErrTruncatedData      = newError(CodeTruncatedData, DetailNone)
	ErrMalformedData      = newError(CodeMalformedData, DetailNone)
	ErrExtraneousData     = newError(CodeExtraneousData, DetailNone)
	ErrTagSyntax          = newError(CodeTagSyntax, DetailNone)
	ErrTagType            = newError(CodeTagType, DetailNone)
	ErrTagValue           = newError(CodeTagValue, DetailNone)
	ErrInternal           = newError(CodeInternal, DetailNone)

	// ErrNotReady is returned by Decoder.Value when no value is decoded.
	ErrNotReady = errors.New("cbor: decoded value is not ready")

	// ErrBusy is returned when a Decoder is used while Process is running.
	ErrBusy = errors.New("cbor: decoder is processing")
)

// Resumable returns whether or not the error means that more input may let
// decoding succeed.
func Resumable(e error) bool {
	var ce Error
	if errors.As(e, &ce) {
		return ce.Resumable()
	}
	return resumableDefault
}

// Cause returns the underlying cause of an error that has been wrapped
// with additional context.
func Cause(e error) error {
	out := e
	if e, ok := e.(errWrapped); ok && e.cause != nil {
		out = e.cause
	}
	return out
}

// WrapError wraps an error with additional context, such as the Go type
// that a Marshaler failed on. Underlying errors can be retrieved using
// Cause() or errors.Unwrap.
func WrapError(err error, ctx string) error {
	if err == nil {
		return nil
	}
	return errWrapped{cause: err, ctx: ctx}
}

// errWrapped allows arbitrary errors passed to WrapError to be enhanced with
// context and unwrapped with Cause()
type errWrapped struct {
	cause error
	ctx   string
}

func (e errWrapped) Error() string {
	if e.ctx != "" {
		return e.cause.Error() + " at " + e.ctx
	}
	return e.cause.Error()
}

func (e errWrapped) Resumable() bool { return Resumable(e.cause) }

// Unwrap returns the cause.
func (e errWrapped) Unwrap() error { return e.cause }
