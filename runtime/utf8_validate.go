package cbor

import "unicode/utf8"

// isUTF8Valid validates UTF-8 for a byte slice. It can be overridden by
// architecture-specific, SIMD-accelerated implementations via build tags.
var isUTF8Valid = func(b []byte) bool { return utf8.Valid(b) }

// isUTF8StringValid is the string form used on encode.
var isUTF8StringValid = func(s string) bool { return utf8.ValidString(s) }

// decodeRune returns the code point at the start of b and its width, or
// utf8.RuneError with width 1 for an invalid sequence.
func decodeRune(b []byte) (rune, int) { return utf8.DecodeRune(b) }
