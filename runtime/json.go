package cbor

import (
	"bytes"
	"encoding/base64"
	"io"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	j "github.com/goccy/go-json"
)

// ToJSON renders a decoded value tree as JSON.
//
//   - Byte and []byte become base64url strings without padding
//   - Undefined becomes null
//   - tags and *Shareable are replaced by their content
//   - *Map keeps insertion order; map[any]any keys are stringified and
//     sorted
//
// NaN and infinities have no JSON form and fail with ErrUnsupportedValue;
// cyclic trees (possible with shared references) fail with ErrRecursion.
// Values outside the decode model are marshaled with go-json.
func ToJSON(v any) ([]byte, error) {
	bb := GetByteBuffer()
	defer PutByteBuffer(bb)
	w := jsonWriter{buf: bb, visiting: make(map[any]struct{})}
	if err := w.value(v); err != nil {
		return nil, err
	}
	return bb.Clone(), nil
}

type jsonWriter struct {
	buf      *ByteBuffer
	visiting map[any]struct{}
}

func (w *jsonWriter) enter(id any) error {
	if _, ok := w.visiting[id]; ok {
		return ErrRecursion
	}
	w.visiting[id] = struct{}{}
	return nil
}

func (w *jsonWriter) value(v any) error {
	switch x := v.(type) {
	case nil, Undefined:
		w.buf.WriteString("null")
	case bool:
		if x {
			w.buf.WriteString("true")
		} else {
			w.buf.WriteString("false")
		}
	case int64:
		w.buf.b = strconv.AppendInt(w.buf.b, x, 10)
	case int:
		w.buf.b = strconv.AppendInt(w.buf.b, int64(x), 10)
	case uint64:
		w.buf.b = strconv.AppendUint(w.buf.b, x, 10)
	case extInt:
		w.buf.WriteString(x.String())
	case float64:
		return w.float(x, 64)
	case Float32:
		return w.float(float64(x), 32)
	case Float16:
		return w.float(x.Float64(), 32)
	case string:
		w.text(x)
	case Text:
		w.text(string(x))
	case Byte:
		w.bytes([]byte(x))
	case []byte:
		w.bytes(x)
	case []any:
		w.buf.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			if err := w.value(e); err != nil {
				return err
			}
		}
		w.buf.WriteByte(']')
	case *Map:
		if x == nil {
			w.buf.WriteString("null")
			return nil
		}
		if err := w.enter(x); err != nil {
			return err
		}
		defer delete(w.visiting, x)
		w.buf.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				w.buf.WriteByte(',')
			}
			w.text(k)
			w.buf.WriteByte(':')
			if err := w.value(x.vals[i]); err != nil {
				return err
			}
		}
		w.buf.WriteByte('}')
	case map[any]any:
		return w.nativeMap(x)
	case *Tag:
		if x == nil {
			w.buf.WriteString("null")
			return nil
		}
		if err := w.enter(x); err != nil {
			return err
		}
		defer delete(w.visiting, x)
		return w.value(x.Content)
	case Tag:
		return w.value(x.Content)
	case *Shareable:
		if x == nil {
			w.buf.WriteString("null")
			return nil
		}
		if err := w.enter(x); err != nil {
			return err
		}
		defer delete(w.visiting, x)
		return w.value(x.Value)
	default:
		b, err := j.Marshal(v)
		if err != nil {
			return err
		}
		w.buf.Write(b)
	}
	return nil
}

func (w *jsonWriter) float(f float64, bits int) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrUnsupportedValue
	}
	var b []byte
	var err error
	if bits == 32 {
		b, err = j.Marshal(float32(f))
	} else {
		b, err = j.Marshal(f)
	}
	if err != nil {
		return err
	}
	w.buf.Write(b)
	return nil
}

func (w *jsonWriter) text(s string) {
	// strings always marshal
	b, _ := j.Marshal(s)
	w.buf.Write(b)
}

func (w *jsonWriter) bytes(b []byte) {
	w.buf.WriteByte('"')
	p := w.buf.Extend(base64.RawURLEncoding.EncodedLen(len(b)))
	base64.RawURLEncoding.Encode(p, b)
	w.buf.WriteByte('"')
}

func (w *jsonWriter) nativeMap(m map[any]any) error {
	if m == nil {
		w.buf.WriteString("null")
		return nil
	}
	id := refKey{typ: reflect.TypeOf(m), ptr: reflect.ValueOf(m).Pointer()}
	if err := w.enter(id); err != nil {
		return err
	}
	defer delete(w.visiting, id)

	type entry struct {
		key string
		val any
	}
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		var s string
		switch x := k.(type) {
		case string:
			s = x
		case int64:
			s = strconv.FormatInt(x, 10)
		case extInt:
			s = x.String()
		case Text:
			s = string(x)
		case Byte:
			s = base64.RawURLEncoding.EncodeToString([]byte(x))
		default:
			return ErrUnsupportedKeyType
		}
		entries = append(entries, entry{key: s, val: v})
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key, b.key) })
	w.buf.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		w.text(e.key)
		w.buf.WriteByte(':')
		if err := w.value(e.val); err != nil {
			return err
		}
	}
	w.buf.WriteByte('}')
	return nil
}

// FromJSON parses one JSON document into the value model: objects become
// *Map (member order kept, a repeated member replaces the earlier one),
// arrays []any, strings string, and numbers int64 or uint64 when they
// are integers in range, float64 otherwise.
func FromJSON(data []byte) (any, error) {
	dec := j.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	p := jsonParser{dec: dec}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	v, err := p.value(tok)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, err
		}
		return nil, ErrExtraneousData
	}
	return v, nil
}

type jsonParser struct {
	dec   *j.Decoder
	depth int
}

func (p *jsonParser) value(tok j.Token) (any, error) {
	switch x := tok.(type) {
	case j.Delim:
		if x != '[' && x != '{' {
			return nil, ErrSyntax
		}
		if p.depth++; p.depth > maxDepthLimit {
			return nil, ErrDepth
		}
		defer func() { p.depth-- }()
		if x == '[' {
			return p.array()
		}
		return p.object()
	case j.Number:
		return jsonNumber(string(x))
	case float64:
		return x, nil
	case string, bool, nil:
		return x, nil
	}
	return nil, ErrSyntax
}

func (p *jsonParser) array() (any, error) {
	out := []any{}
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		if tok == j.Delim(']') {
			return out, nil
		}
		v, err := p.value(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func (p *jsonParser) object() (any, error) {
	m := NewMap(0)
	for {
		tok, err := p.dec.Token()
		if err != nil {
			return nil, err
		}
		if tok == j.Delim('}') {
			return m, nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil, ErrSyntax
		}
		if tok, err = p.dec.Token(); err != nil {
			return nil, err
		}
		v, err := p.value(tok)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
}

// jsonNumber prefers integers; only numbers written with a fraction or
// exponent, or too large for 64 bits, become float64.
func jsonNumber(s string) (any, error) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return u, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !isRangeErr(err) {
		return nil, ErrSyntax
	}
	return f, nil
}

func isRangeErr(err error) bool {
	ne, ok := err.(*strconv.NumError)
	return ok && ne.Err == strconv.ErrRange
}
