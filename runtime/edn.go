package cbor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DecodeEDN renders one CBOR data item as Extended Diagnostic Notation.
// When decoding fails the text rendered so far is returned with an
// inline /ERROR:code (name)/ comment, together with the error.
func DecodeEDN(data []byte, opts *DecodeOptions) (string, error) {
	o, err := decodeOptionsOrDefault(opts)
	if err != nil {
		return "", err
	}
	return decodeEDN(data, o)
}

func decodeEDN(data []byte, o DecodeOptions) (string, error) {
	e := newEDNSink(o.EDN)
	defer e.release()
	d := &decodeState{opts: o, sink: e, data: data, single: true}
	d.off = skipSelfDescribe(data, o.Flags)
	err := d.run()
	if err == nil && d.off != len(data) {
		err = ErrExtraneousData.at(int64(d.off))
	}
	if err != nil {
		e.appendError(err)
	}
	return string(e.buf.Bytes()), err
}

func ednErrorName(c Code) string {
	switch c {
	case CodeDepth, CodeRecursion, CodeSyntax, CodeUTF8, CodeTruncatedData,
		CodeMalformedData, CodeExtraneousData, CodeInternal:
		return c.String()
	}
	return ""
}

type ednSink struct {
	buf         *ByteBuffer
	opts        EDNOptions
	indentChar  byte
	indentWidth int
	level       int
}

func newEDNSink(o EDNOptions) *ednSink {
	e := &ednSink{buf: GetByteBuffer(), opts: o}
	if o.IndentTab {
		e.indentChar, e.indentWidth = '\t', 1
	} else if o.Indent > 0 {
		e.indentChar, e.indentWidth = ' ', o.Indent
	}
	return e
}

func (e *ednSink) release() {
	if e.buf != nil {
		PutByteBuffer(e.buf)
		e.buf = nil
	}
}

func (e *ednSink) appendError(err error) {
	ce, ok := err.(*CodeError)
	if !ok {
		ce = ErrInternal
	}
	if name := ednErrorName(ce.Code); name != "" {
		fmt.Fprintf(e.buf, " /ERROR:%d (%s)/", ce.Code, name)
		return
	}
	fmt.Fprintf(e.buf, " /ERROR:%d/", ce.Code)
}

func (e *ednSink) space() {
	if e.opts.Space {
		e.buf.WriteByte(' ')
	}
}

// newline breaks the line when indenting, otherwise it is a space (if
// sp is set).
func (e *ednSink) newline(sp bool) {
	if e.indentChar == 0 {
		if sp {
			e.space()
		}
		return
	}
	e.buf.WriteByte('\n')
	if e.level > 0 {
		p := e.buf.Extend(e.level)
		for i := range p {
			p[i] = e.indentChar
		}
	}
}

func (e *ednSink) indent(in bool, sp bool) {
	if e.indentChar != 0 {
		if in {
			e.level += e.indentWidth
		} else {
			e.level -= e.indentWidth
		}
	}
	e.newline(sp)
}

func (e *ednSink) pop(d *decodeState) {
	if f := d.pop(); f.ednIndent == 2 {
		e.indent(false, false)
	}
}

// append writes s and then the separator or closer its parent needs.
func (e *ednSink) append(d *decodeState, s string) error {
	e.buf.WriteString(s)
	for {
		f := d.top()
		if f == nil {
			return nil
		}
		switch f.kind {
		case frameArray:
			if f.count != 0 {
				if f.count--; f.count == 0 {
					e.indent(false, false)
					e.pop(d)
					e.buf.WriteByte(']')
					continue
				}
			}
			f.appended = true
			e.buf.WriteByte(',')
			e.newline(true)
			return nil
		case frameMap:
			if !f.awaitingValue {
				f.awaitingValue = true
				e.buf.WriteByte(':')
				e.space()
				return nil
			}
			if f.count != 0 {
				if f.count--; f.count == 0 {
					e.indent(false, false)
					e.pop(d)
					e.buf.WriteByte('}')
					continue
				}
			}
			f.appended = true
			f.awaitingValue = false
			e.buf.WriteByte(',')
			e.newline(true)
			return nil
		case frameTag:
			e.pop(d)
			e.buf.WriteByte(')')
		default:
			return nil
		}
	}
}

func (e *ednSink) leaf(d *decodeState, it *item) error {
	switch it.kind {
	case kindUint:
		return e.append(d, strconv.FormatUint(it.arg, 10))
	case kindNegInt:
		return e.append(d, extInt{neg: true, mag: it.arg}.String())
	case kindBytes, kindText:
		e.writeString(d.top(), it)
		return e.append(d, "")
	case kindFalse:
		return e.append(d, "false")
	case kindTrue:
		return e.append(d, "true")
	case kindNull:
		return e.append(d, "null")
	case kindUndefined:
		return e.append(d, "undefined")
	case kindSimple:
		return e.append(d, "simple("+strconv.FormatUint(it.arg, 10)+")")
	case kindFloat16:
		return e.append(d, formatEDNFloat(float64FromHalfBits(uint16(it.arg)), '1'))
	case kindFloat32:
		return e.append(d, formatEDNFloat(float64(math.Float32frombits(uint32(it.arg))), '2'))
	case kindFloat64:
		return e.append(d, formatEDNFloat(math.Float64frombits(it.arg), '3'))
	}
	return ErrInternal
}

func (e *ednSink) openContainer(d *decodeState, it *item) error {
	f := containerFrame(it)
	open := "["
	if it.kind == kindMap {
		open = "{"
	}
	if it.indef {
		e.buf.WriteString(open + "_")
		e.indent(true, true)
	} else {
		e.buf.WriteString(open)
		e.indent(true, false)
	}
	return d.push(f)
}

func (e *ednSink) emptyContainer(d *decodeState, it *item) error {
	if it.kind == kindMap {
		return e.append(d, "{}")
	}
	return e.append(d, "[]")
}

func (e *ednSink) openTag(d *decodeState, number uint64) error {
	e.buf.WriteString(strconv.FormatUint(number, 10))
	e.buf.WriteByte('(')
	return d.push(frame{kind: frameTag, count: 1, tag: number, ednIndent: 1})
}

func (e *ednSink) openString(d *decodeState, it *item) error {
	f := frame{kind: frameBytes}
	if it.kind == kindText {
		f.kind = frameText
	}
	return d.push(f)
}

func (e *ednSink) chunk(d *decodeState, f *frame, it *item) error {
	if !f.appended {
		f.appended = true
		e.buf.WriteString("(_")
		e.indent(true, true)
	} else {
		e.buf.WriteByte(',')
		e.newline(true)
	}
	e.writeString(f, it)
	return nil
}

func (e *ednSink) child(*decodeState, *frame, *frame) error { return nil }

func (e *ednSink) closeFrame(d *decodeState, f *frame) error {
	switch f.kind {
	case frameBytes, frameText:
		if !f.appended {
			if f.kind == frameText {
				return e.append(d, `""_`)
			}
			return e.append(d, "''_")
		}
		e.indent(false, false)
		return e.append(d, ")")
	}
	if f.appended {
		// drop the separator written after the last element
		b := e.buf.Bytes()
		n := len(b)
		for n > 0 && strings.IndexByte(" \t\n,", b[n-1]) >= 0 {
			n--
		}
		e.buf.Truncate(n)
	}
	e.indent(false, false)
	if f.kind == frameArray {
		return e.append(d, "]")
	}
	return e.append(d, "}")
}

const hexDigits = "0123456789abcdef"

func (e *ednSink) hex(c byte) {
	e.buf.WriteByte(hexDigits[c>>4])
	e.buf.WriteByte(hexDigits[c&0x0f])
}

func isASCIIControl(c byte) bool { return c < 0x20 || c == 0x7f }

// needsUnicodeEscape lists the code points written as \uXXXX: C1
// controls, bidi controls and the line/paragraph separators.
func needsUnicodeEscape(r rune) bool {
	return (r >= 0x80 && r <= 0x9f) ||
		r == 0x200e || r == 0x200f ||
		(r >= 0x202a && r <= 0x202e) ||
		(r >= 0x2066 && r <= 0x2069) ||
		r == 0x2028 || r == 0x2029 ||
		r == 0x061c
}

// writeString renders a definite string. parent is the frame the string
// belongs to, or nil at the root.
func (e *ednSink) writeString(parent *frame, it *item) {
	if it.kind == kindText {
		e.writeText(it.data)
		return
	}
	e.writeBytes(parent, it.data)
}

// writeText writes a quoted string, switching to h'..' for runs of
// control characters and invalid UTF-8 (juxtaposed strings concatenate
// in EDN).
func (e *ednSink) writeText(s []byte) {
	inText := true
	toBytes := func() {
		if inText {
			inText = false
			e.buf.WriteByte('"')
			e.space()
			e.buf.WriteString("h'")
		}
	}
	toText := func() {
		if !inText {
			inText = true
			e.buf.WriteByte('\'')
			e.space()
			e.buf.WriteByte('"')
		}
	}
	e.buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if !inText && isASCIIControl(c) {
			e.hex(c)
			i++
			continue
		}
		if esc := textEscape(c); esc != 0 {
			toText()
			e.buf.WriteByte('\\')
			e.buf.WriteByte(esc)
			i++
			continue
		}
		if isASCIIControl(c) {
			if !inText || (i+1 < len(s) && isASCIIControl(s[i+1])) {
				toBytes()
				continue
			}
			toText()
			fmt.Fprintf(e.buf, "\\u%04x", c)
			i++
			continue
		}
		r, n := decodeRune(s[i:])
		if r == 0xfffd && n == 1 {
			toBytes()
			e.hex(s[i])
			for i++; i < len(s) && s[i]&0xc0 == 0x80; i++ {
				e.hex(s[i])
			}
			continue
		}
		toText()
		if needsUnicodeEscape(r) {
			fmt.Fprintf(e.buf, "\\u%04x", r)
		} else {
			e.buf.Write(s[i : i+n])
		}
		i += n
	}
	if inText {
		e.buf.WriteByte('"')
	} else {
		e.buf.WriteByte('\'')
	}
}

func textEscape(c byte) byte {
	switch c {
	case '\\':
		return '\\'
	case '"':
		return '"'
	case '\t':
		return 't'
	case '\r':
		return 'r'
	case '\f':
		return 'f'
	case '\n':
		return 'n'
	case '\b':
		return 'b'
	}
	return 0
}

func (e *ednSink) writeBytes(parent *frame, b []byte) {
	wrap := e.opts.ByteWrap
	if parent != nil && wrap > 0 && len(b) > wrap && parent.ednIndent == 1 {
		parent.ednIndent = 2
		e.indent(true, false)
	}
	e.buf.WriteString("h'")
	offset := 0
	for _, c := range b {
		if wrap > 0 && offset == wrap {
			e.buf.WriteByte('\'')
			e.newline(true)
			e.buf.WriteString("h'")
			offset = 0
		} else if e.opts.ByteSpace != 0 && offset > 0 {
			for bm := 1; bm <= 32; bm <<= 1 {
				if e.opts.ByteSpace&bm != 0 && offset%bm == 0 {
					e.buf.WriteByte(' ')
				}
			}
		}
		e.hex(c)
		offset++
	}
	e.buf.WriteByte('\'')
}

// formatEDNFloat renders f with the encoding width indicator (_1, _2 or
// _3). Half and single precision use 5 and 9 significant digits.
func formatEDNFloat(f float64, width byte) string {
	var s string
	switch {
	case math.IsInf(f, 1):
		s = "Infinity"
	case math.IsInf(f, -1):
		s = "-Infinity"
	case math.IsNaN(f):
		s = "NaN"
	default:
		switch width {
		case '1':
			s = strconv.FormatFloat(f, 'g', 5, 64)
		case '2':
			s = strconv.FormatFloat(f, 'g', 9, 64)
		default:
			if af := math.Abs(f); af == 0 || (af >= 1e-4 && af < 1e15) {
				s = strconv.FormatFloat(f, 'f', -1, 64)
			} else {
				s = strconv.FormatFloat(f, 'g', -1, 64)
			}
		}
		if !strings.ContainsRune(s, '.') {
			if i := strings.IndexByte(s, 'e'); i >= 0 {
				s = s[:i] + ".0" + s[i:]
			} else {
				s += ".0"
			}
		}
	}
	return s + "_" + string(width)
}
