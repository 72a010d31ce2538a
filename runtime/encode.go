package cbor

import (
	"bytes"
	"iter"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Encode returns the CBOR encoding of v.
//
// Nil opts means DefaultEncodeOptions. See Append for the value mapping.
func Encode(v any, opts *EncodeOptions) ([]byte, error) {
	bb := GetByteBuffer()
	defer PutByteBuffer(bb)
	out, err := Append(bb.b[:0], v, opts)
	bb.b = out[:0]
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), out...), nil
}

// Append appends the CBOR encoding of v to dst and returns the extended
// buffer. On error dst is returned unchanged.
//
// Go values map to CBOR as follows:
//   - integers of any kind, bool, nil and Undefined map to their CBOR
//     counterparts; float64 follows FlagFloat16/FlagFloat32, float32 and
//     Float32 are single precision, Float16 is half precision
//   - string follows FlagByte/FlagText; Text, Byte and []byte are always
//     text or byte strings
//   - slices and arrays are arrays; *Map, Go maps and structs are maps;
//     iter.Seq and iter.Seq2 are indefinite-length arrays and maps
//   - *Tag and Tag are tags, *Shareable is tag 28
//   - time.Time, *big.Int, decimal.Decimal and *url.URL are tags 0, 2/3, 4
//     and 32 when enabled in the options
//   - Marshaler and *EncodeParams substitute another value
func Append(dst []byte, v any, opts *EncodeOptions) ([]byte, error) {
	o, err := encodeOptionsOrDefault(opts)
	if err != nil {
		return dst, err
	}
	e := &encoder{opts: o, buf: dst, visiting: make(map[any]struct{})}
	if err := e.encodeRoot(v); err != nil {
		return dst, err
	}
	return e.buf, nil
}

type encoder struct {
	opts  EncodeOptions
	buf   []byte
	depth int

	// ns is the innermost string-ref namespace, nil outside any.
	ns *encodeNS

	// counts holds how often each reference value occurs in the tree;
	// nil when sharing is off.
	counts map[any]int
	// refs maps values emitted as tag 28 to their index.
	refs map[any]int
	// inline is a value already registered by an enclosing *Shareable
	// that must be written in place once.
	inline any

	visiting map[any]struct{}
	// plain is non-zero while map keys are encoded for sorting; no
	// string or shared references are written then.
	plain int
}

type encodeNS struct {
	next   int
	tables [2]map[string]int
}

func newEncodeNS() *encodeNS {
	return &encodeNS{tables: [2]map[string]int{make(map[string]int), make(map[string]int)}}
}

func (ns *encodeNS) table(text bool) map[string]int {
	if text {
		return ns.tables[1]
	}
	return ns.tables[0]
}

// refKey identifies slices and Go maps, which are not comparable.
type refKey struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

var (
	textType = reflect.TypeFor[Text]()
	byteType = reflect.TypeFor[Byte]()
)

func (e *encoder) encodeRoot(v any) error {
	if e.opts.Flags&FlagSelfDescribe != 0 {
		e.buf = AppendSelfDescribeCBOR(e.buf)
	}
	if e.opts.SharedRef != SharedRefOff {
		e.counts = make(map[any]int)
		e.countRefs(v, make(map[any]struct{}))
	}
	if e.opts.StringRef == StringRefOn {
		return e.nest(1, func() error {
			e.buf = AppendTag(e.buf, TagStringRefNS)
			e.ns = newEncodeNS()
			return e.encode(v)
		})
	}
	return e.encode(v)
}

// nest runs body levels deeper.
func (e *encoder) nest(levels int, body func() error) error {
	if e.depth+levels > e.opts.MaxDepth {
		return ErrDepth
	}
	e.depth += levels
	err := body()
	e.depth -= levels
	return err
}

func (e *encoder) encode(v any) error {
	flags := e.opts.Flags
	switch x := v.(type) {
	case nil:
		e.buf = AppendNil(e.buf)
	case bool:
		e.buf = AppendBool(e.buf, x)
	case int:
		e.buf = AppendInt64(e.buf, int64(x))
	case int64:
		e.buf = AppendInt64(e.buf, x)
	case int32:
		e.buf = AppendInt64(e.buf, int64(x))
	case uint64:
		e.buf = AppendUint64(e.buf, x)
	case uint32:
		e.buf = AppendUint64(e.buf, uint64(x))
	case float64:
		e.writeFloat64(x)
	case float32:
		e.writeFloat32(x)
	case Float32:
		e.writeFloat32(float32(x))
	case Float16:
		e.buf = AppendFloat16(e.buf, x)
	case string:
		if flags&stringFlags == 0 {
			return newError(CodeInvalidFlags, DetailNoStringFlag)
		}
		return e.writeString(x, flags&FlagText != 0)
	case Text:
		return e.writeString(string(x), true)
	case Byte:
		return e.writeString(string(x), false)
	case []byte:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeString(string(x), false)
	case Undefined:
		e.buf = AppendUndefined(e.buf)
	case []any:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeList(e.containerID(x), len(x), func(i int) any { return x[i] })
	case *Map:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeOrderedMap(x)
	case *Tag:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeTag(x, x)
	case Tag:
		return e.writeTag(&x, nil)
	case *Shareable:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeShareable(x)
	case *EncodeParams:
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.withParams(x)
	case EncodeParams:
		return e.withParams(&x)
	case time.Time:
		if !e.opts.Datetime {
			return ErrUnsupportedType
		}
		return e.writeDatetime(x)
	case *big.Int:
		if !e.opts.Bignum {
			return ErrUnsupportedType
		}
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeBigInt(x)
	case decimal.Decimal:
		if !e.opts.Decimal {
			return ErrUnsupportedType
		}
		return e.writeDecimal(x)
	case *url.URL:
		if !e.opts.URI {
			return ErrUnsupportedType
		}
		if x == nil {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.nest(1, func() error {
			e.buf = AppendTag(e.buf, TagURI)
			return e.writeString(x.String(), true)
		})
	case iter.Seq[any]:
		return e.writeSeq(x)
	case iter.Seq2[any, any]:
		return e.writeSeq2(x)
	case iter.Seq2[string, any]:
		return e.writeSeq2(func(yield func(any, any) bool) {
			for k, v := range x {
				if !yield(k, v) {
					return
				}
			}
		})
	case Marshaler:
		return e.marshal(x)
	default:
		return e.encodeReflect(reflect.ValueOf(v))
	}
	return nil
}

func (e *encoder) encodeReflect(rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Bool:
		e.buf = AppendBool(e.buf, rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf = AppendInt64(e.buf, rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf = AppendUint64(e.buf, rv.Uint())
	case reflect.Float32:
		e.writeFloat32(float32(rv.Float()))
	case reflect.Float64:
		e.writeFloat64(rv.Float())
	case reflect.String:
		return e.encode(rv.String())
	case reflect.Slice:
		if rv.IsNil() {
			e.buf = AppendNil(e.buf)
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.writeString(string(rv.Bytes()), false)
		}
		return e.writeList(e.containerID(rv.Interface()), rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			for i := range b {
				b[i] = byte(rv.Index(i).Uint())
			}
			return e.writeString(string(b), false)
		}
		return e.writeList(nil, rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	case reflect.Map:
		if rv.IsNil() {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.writeGoMap(rv)
	case reflect.Struct:
		return e.writeStruct(rv)
	case reflect.Pointer:
		if rv.IsNil() {
			e.buf = AppendNil(e.buf)
			return nil
		}
		id := refKey{typ: rv.Type(), ptr: rv.Pointer()}
		if _, ok := e.visiting[id]; ok {
			return ErrRecursion
		}
		e.visiting[id] = struct{}{}
		defer delete(e.visiting, id)
		return e.encode(rv.Elem().Interface())
	case reflect.Interface:
		if rv.IsNil() {
			e.buf = AppendNil(e.buf)
			return nil
		}
		return e.encode(rv.Elem().Interface())
	default:
		return ErrUnsupportedType
	}
	return nil
}

func (e *encoder) writeFloat64(f float64) {
	switch e.opts.Flags & floatFlags {
	case floatFlags:
		e.buf = AppendFloatCompact(e.buf, f)
	case FlagFloat16:
		e.buf = AppendFloat16(e.buf, Float16From(float32(f)))
	case FlagFloat32:
		e.buf = AppendFloat32(e.buf, float32(f))
	default:
		e.buf = AppendFloat64(e.buf, f)
	}
}

func (e *encoder) writeFloat32(f float32) {
	if e.opts.Flags&FlagCDE != 0 && float32IsFloat16(f) {
		e.buf = AppendFloat16(e.buf, Float16From(f))
		return
	}
	e.buf = AppendFloat32(e.buf, f)
}

// writeString writes s, or a string reference to an earlier copy of it
// when a namespace is active.
func (e *encoder) writeString(s string, text bool) error {
	if ns := e.ns; ns != nil && e.plain == 0 {
		t := ns.table(text)
		if i, ok := t[s]; ok {
			if e.depth >= e.opts.MaxDepth {
				return ErrDepth
			}
			e.buf = AppendTag(e.buf, TagStringRef)
			e.buf = AppendUint64(e.buf, uint64(i))
			return nil
		}
		if isLenStringRef(len(s), ns.next) {
			t[s] = ns.next
			ns.next++
		}
	}
	if !text {
		e.buf = AppendByteString(e.buf, s)
		return nil
	}
	if e.opts.Flags&FlagUnsafeText == 0 && !isUTF8StringValid(s) {
		return ErrUTF8
	}
	e.buf = AppendString(e.buf, s)
	return nil
}

// containerID returns the identity that the recursion guard and shared
// references track v under, or nil.
func (e *encoder) containerID(v any) any {
	switch v.(type) {
	case *Map, *Tag:
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Len() == 0 || rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		return refKey{typ: rv.Type(), ptr: rv.Pointer(), n: rv.Len()}
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return refKey{typ: rv.Type(), ptr: rv.Pointer()}
	}
	return nil
}

// shares reports whether values with this identity take part in shared
// references.
func (e *encoder) shares(id any) bool {
	if _, ok := id.(refKey); ok {
		return e.opts.SharedRef == SharedRefUnsafe
	}
	return e.opts.SharedRef != SharedRefOff
}

// container writes one array, map or tag level. id may be nil for values
// without identity.
func (e *encoder) container(id any, body func() error) error {
	levels := 1
	if id != nil {
		if id == e.inline {
			e.inline = nil
		} else if e.plain == 0 && e.counts[id] > 1 {
			done, err := e.shareRef(id)
			if done || err != nil {
				return err
			}
			levels++
		}
		if _, ok := e.visiting[id]; ok {
			return ErrRecursion
		}
		e.visiting[id] = struct{}{}
		defer delete(e.visiting, id)
	}
	return e.nest(levels, body)
}

// shareRef writes a back-reference when id was emitted before and reports
// done. Otherwise it registers id and writes tag 28.
func (e *encoder) shareRef(id any) (done bool, err error) {
	if i, ok := e.refs[id]; ok {
		if e.depth >= e.opts.MaxDepth {
			return true, ErrDepth
		}
		e.buf = AppendTag(e.buf, TagSharedRef)
		e.buf = AppendUint64(e.buf, uint64(i))
		return true, nil
	}
	if e.refs == nil {
		e.refs = make(map[any]int)
	}
	e.refs[id] = len(e.refs)
	e.buf = AppendTag(e.buf, TagShareable)
	return false, nil
}

func (e *encoder) writeShareable(s *Shareable) error {
	if e.opts.Flags&FlagCDE != 0 {
		return ErrUnsupportedValue
	}
	if _, nested := s.Value.(*Shareable); nested {
		return ErrTagValue
	}
	if e.plain > 0 {
		return e.nest(1, func() error {
			e.buf = AppendTag(e.buf, TagShareable)
			return e.encode(s.Value)
		})
	}
	done, err := e.shareRef(s)
	if done || err != nil {
		return err
	}
	if id := e.containerID(s.Value); id != nil {
		if _, ok := e.refs[id]; !ok {
			// the content resolves to the same index on decode
			e.refs[id] = e.refs[s]
			e.inline = id
		}
	}
	return e.nest(1, func() error { return e.encode(s.Value) })
}

// countRefs counts the reference values reachable from v. Iterators and
// Marshaler results are not visited.
func (e *encoder) countRefs(v any, stack map[any]struct{}) {
	switch x := v.(type) {
	case nil:
		return
	case *Shareable:
		if x != nil && e.countOnce(x) {
			e.countRefs(x.Value, stack)
		}
		return
	case *Map:
		if x != nil && e.countOnce(x) {
			for _, val := range x.vals {
				e.countRefs(val, stack)
			}
		}
		return
	case *Tag:
		if x != nil && e.countOnce(x) {
			e.countRefs(x.Content, stack)
		}
		return
	case Tag:
		e.countRefs(x.Content, stack)
		return
	case *EncodeParams:
		if x != nil {
			e.countRefs(x.Value, stack)
		}
		return
	case EncodeParams:
		e.countRefs(x.Value, stack)
		return
	case Marshaler, iter.Seq[any], iter.Seq2[any, any], iter.Seq2[string, any],
		string, []byte, Text, Byte, time.Time, *big.Int, decimal.Decimal, *url.URL:
		return
	}

	rv := reflect.ValueOf(v)
	var id any
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		id = e.containerID(v)
		if id == nil {
			return
		}
		if e.shares(id) {
			if !e.countOnce(id) {
				return
			}
		} else {
			if _, ok := stack[id]; ok {
				return
			}
			stack[id] = struct{}{}
			defer delete(stack, id)
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return
		}
		id = refKey{typ: rv.Type(), ptr: rv.Pointer()}
		if _, ok := stack[id]; ok {
			return
		}
		stack[id] = struct{}{}
		defer delete(stack, id)
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			e.countRefs(rv.Index(i).Interface(), stack)
		}
	case reflect.Map:
		for it := rv.MapRange(); it.Next(); {
			e.countRefs(it.Value().Interface(), stack)
		}
	case reflect.Struct:
		for _, f := range cachedFields(rv.Type()) {
			e.countRefs(rv.FieldByIndex(f.index).Interface(), stack)
		}
	case reflect.Pointer, reflect.Interface:
		if !rv.IsNil() {
			e.countRefs(rv.Elem().Interface(), stack)
		}
	}
}

// countOnce bumps the count of id and reports whether it is the first
// occurrence.
func (e *encoder) countOnce(id any) bool {
	e.counts[id]++
	return e.counts[id] == 1
}

func (e *encoder) writeTag(t *Tag, id any) error {
	return e.container(id, func() error {
		switch {
		case e.opts.StringRef == StringRefOff:
		case t.Number == TagStringRefNS:
			saved := e.ns
			e.ns = newEncodeNS()
			defer func() { e.ns = saved }()
		case t.Number == TagStringRef:
			n, ok := intArg(t.Content)
			if !ok {
				return ErrTagType
			}
			if e.ns == nil {
				return ErrTagSyntax
			}
			if n < 0 || n >= int64(e.ns.next) {
				return ErrTagValue
			}
		}
		e.buf = AppendTag(e.buf, t.Number)
		return e.encode(t.Content)
	})
}

// intArg returns v as an int64 when it is a Go integer. Values above
// MaxInt64 saturate.
func intArg(v any) (int64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(min(rv.Uint(), math.MaxInt64)), true
	}
	return 0, false
}

func (e *encoder) writeList(id any, n int, at func(int) any) error {
	if uint64(n) > math.MaxUint32 {
		return ErrUnsupportedSize
	}
	return e.container(id, func() error {
		e.buf = appendUintCore(e.buf, majorTypeArray, uint64(n))
		for i := 0; i < n; i++ {
			if err := e.encode(at(i)); err != nil {
				return err
			}
		}
		return nil
	})
}

// mapKey is a key before encoding. Go string keys follow the key flags
// and FlagIntKey; other keys are encoded as values.
type mapKey struct {
	s     string
	isStr bool
	v     any
}

type mapEntry struct {
	key mapKey
	val any
}

func (e *encoder) writeOrderedMap(m *Map) error {
	entries := make([]mapEntry, len(m.keys))
	for i, k := range m.keys {
		entries[i] = mapEntry{key: mapKey{s: k, isStr: true}, val: m.vals[i]}
	}
	return e.writeMap(m, entries, false)
}

// writeGoMap writes a Go map with its keys sorted by their encoding.
func (e *encoder) writeGoMap(rv reflect.Value) error {
	entries := make([]mapEntry, 0, rv.Len())
	for it := rv.MapRange(); it.Next(); {
		k, err := e.reflectKey(it.Key())
		if err != nil {
			return err
		}
		entries = append(entries, mapEntry{key: k, val: it.Value().Interface()})
	}
	return e.writeMap(e.containerID(rv.Interface()), entries, true)
}

func (e *encoder) reflectKey(k reflect.Value) (mapKey, error) {
	switch k.Kind() {
	case reflect.String:
		switch k.Type() {
		case textType:
			return mapKey{v: Text(k.String())}, nil
		case byteType:
			return mapKey{v: Byte(k.String())}, nil
		}
		return mapKey{s: k.String(), isStr: true}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if e.opts.Flags&FlagIntKey != 0 {
			return mapKey{v: k.Int()}, nil
		}
		return mapKey{s: strconv.FormatInt(k.Int(), 10), isStr: true}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if e.opts.Flags&FlagIntKey != 0 {
			return mapKey{v: k.Uint()}, nil
		}
		return mapKey{s: strconv.FormatUint(k.Uint(), 10), isStr: true}, nil
	case reflect.Interface:
		if !k.IsNil() {
			return e.reflectKey(k.Elem())
		}
	}
	return mapKey{}, ErrUnsupportedKeyType
}

func (e *encoder) writeMap(id any, entries []mapEntry, sorted bool) error {
	if uint64(len(entries)) > math.MaxUint32 {
		return ErrUnsupportedSize
	}
	return e.container(id, func() error {
		if sorted || e.opts.Flags&FlagCDE != 0 {
			if err := e.sortEntries(entries); err != nil {
				return err
			}
		}
		e.buf = appendUintCore(e.buf, majorTypeMap, uint64(len(entries)))
		for i := range entries {
			if err := e.writeKey(entries[i].key); err != nil {
				return err
			}
			if err := e.encode(entries[i].val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *encoder) writeKey(k mapKey) error {
	if !k.isStr {
		return e.encode(k.v)
	}
	flags := e.opts.Flags
	if flags&FlagIntKey != 0 {
		if neg, mag, ok := parseIntKey(k.s); ok {
			major := uint8(majorTypeUint)
			if neg {
				major = majorTypeNegInt
			}
			e.buf = appendUintCore(e.buf, major, mag)
			return nil
		}
	}
	if flags&keyStringFlags == 0 {
		return newError(CodeInvalidFlags, DetailNoKeyStringFlag)
	}
	return e.writeString(k.s, flags&FlagKeyText != 0)
}

// plainKey returns the encoding of k without string or shared
// references, the form map keys are ordered and compared by.
func (e *encoder) plainKey(k mapKey) ([]byte, error) {
	saved := e.buf
	e.buf = nil
	e.plain++
	err := e.writeKey(k)
	out := e.buf
	e.plain--
	e.buf = saved
	return out, err
}

// sortEntries orders entries bytewise by their plain key encoding.
// Duplicates are rejected under FlagCDE and FlagNoDupKey.
func (e *encoder) sortEntries(entries []mapEntry) error {
	keys := make([][]byte, len(entries))
	for i := range entries {
		b, err := e.plainKey(entries[i].key)
		if err != nil {
			return err
		}
		keys[i] = b
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	slices.SortFunc(idx, func(a, b int) int { return bytes.Compare(keys[a], keys[b]) })
	if e.opts.Flags&(FlagCDE|FlagNoDupKey) != 0 {
		for i := 1; i < len(idx); i++ {
			if bytes.Equal(keys[idx[i-1]], keys[idx[i]]) {
				return ErrDuplicateKey
			}
		}
	}
	sorted := make([]mapEntry, len(entries))
	for i, j := range idx {
		sorted[i] = entries[j]
	}
	copy(entries, sorted)
	return nil
}

// parseIntKey parses a canonical decimal integer ("0", "12", "-3") in
// the CBOR integer range. It returns the CBOR argument (-1-n for
// negative values).
func parseIntKey(s string) (neg bool, mag uint64, ok bool) {
	digits := s
	if strings.HasPrefix(s, "-") {
		neg, digits = true, s[1:]
	}
	if digits == "" || digits[0] < '0' || digits[0] > '9' {
		return false, 0, false
	}
	if digits[0] == '0' && (len(digits) > 1 || neg) {
		return false, 0, false
	}
	if neg && digits == "18446744073709551616" {
		return true, math.MaxUint64, true
	}
	u, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return false, 0, false
	}
	if neg {
		return true, u - 1, true
	}
	return false, u, true
}

type structField struct {
	name      string
	index     []int
	omitEmpty bool
}

var structFieldCache sync.Map // reflect.Type -> []structField

// cachedFields lists the exported fields of a struct type. The cbor tag
// renames a field ("name,omitempty"); "-" skips it.
func cachedFields(t reflect.Type) []structField {
	if f, ok := structFieldCache.Load(t); ok {
		return f.([]structField)
	}
	var fields []structField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("cbor")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}
		fields = append(fields, structField{
			name:      name,
			index:     sf.Index,
			omitEmpty: opts == "omitempty",
		})
	}
	f, _ := structFieldCache.LoadOrStore(t, fields)
	return f.([]structField)
}

func (e *encoder) writeStruct(rv reflect.Value) error {
	fields := cachedFields(rv.Type())
	entries := make([]mapEntry, 0, len(fields))
	for _, f := range fields {
		fv := rv.FieldByIndex(f.index)
		if f.omitEmpty && fv.IsZero() {
			continue
		}
		entries = append(entries, mapEntry{key: mapKey{s: f.name, isStr: true}, val: fv.Interface()})
	}
	return e.writeMap(nil, entries, false)
}

// writeSeq writes an indefinite-length array, or a definite one under
// FlagCDE.
func (e *encoder) writeSeq(seq iter.Seq[any]) error {
	if e.opts.Flags&FlagCDE != 0 {
		var items []any
		for v := range seq {
			items = append(items, v)
		}
		return e.writeList(nil, len(items), func(i int) any { return items[i] })
	}
	return e.container(nil, func() error {
		e.buf = append(e.buf, makeByte(majorTypeArray, addInfoIndefinite))
		var err error
		for v := range seq {
			if err = e.encode(v); err != nil {
				break
			}
		}
		if err != nil {
			return err
		}
		e.buf = AppendBreak(e.buf)
		return nil
	})
}

// writeSeq2 writes an indefinite-length map, or a sorted definite one
// under FlagCDE. Keys are encoded as values.
func (e *encoder) writeSeq2(seq iter.Seq2[any, any]) error {
	if e.opts.Flags&FlagCDE != 0 {
		var entries []mapEntry
		for k, v := range seq {
			entries = append(entries, mapEntry{key: mapKey{v: k}, val: v})
		}
		return e.writeMap(nil, entries, true)
	}
	return e.container(nil, func() error {
		e.buf = append(e.buf, makeByte(majorTypeMap, addInfoIndefinite))
		var seen map[string]struct{}
		if e.opts.Flags&FlagNoDupKey != 0 {
			seen = make(map[string]struct{})
		}
		var err error
		for k, v := range seq {
			key := mapKey{v: k}
			if seen != nil {
				var b []byte
				if b, err = e.plainKey(key); err != nil {
					break
				}
				if _, dup := seen[string(b)]; dup {
					err = ErrDuplicateKey
					break
				}
				seen[string(b)] = struct{}{}
			}
			if err = e.writeKey(key); err != nil {
				break
			}
			if err = e.encode(v); err != nil {
				break
			}
		}
		if err != nil {
			return err
		}
		e.buf = AppendBreak(e.buf)
		return nil
	})
}

func (e *encoder) marshal(m Marshaler) error {
	rv := reflect.ValueOf(m)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			e.buf = AppendNil(e.buf)
			return nil
		}
		id := refKey{typ: rv.Type(), ptr: rv.Pointer()}
		if _, ok := e.visiting[id]; ok {
			return ErrRecursion
		}
		e.visiting[id] = struct{}{}
		defer delete(e.visiting, id)
	}
	v, err := m.MarshalCBORValue()
	if err != nil {
		return WrapError(err, rv.Type().String())
	}
	if v != nil && reflect.TypeOf(v) == rv.Type() {
		return ErrRecursion
	}
	return e.encode(v)
}

// withParams encodes p.Value with the flags and options of p applied on
// top of the current ones.
func (e *encoder) withParams(p *EncodeParams) error {
	if p.FlagsClear&FlagCDE != 0 {
		return newError(CodeInvalidFlags, DetailClearCDE)
	}
	saved := e.opts
	defer func() { e.opts = saved }()

	var mutex Flags
	if p.Flags&FlagByte != 0 {
		mutex = FlagText
	} else if p.Flags&FlagText != 0 {
		mutex = FlagByte
	}
	if p.Flags&FlagKeyByte != 0 {
		mutex |= FlagKeyText
	} else if p.Flags&FlagKeyText != 0 {
		mutex |= FlagKeyByte
	}
	e.opts.Flags = (e.opts.Flags&^p.FlagsClear)&^mutex | p.Flags

	var err error
	for _, b := range []struct {
		name string
		dst  *bool
	}{
		{"datetime", &e.opts.Datetime},
		{"bignum", &e.opts.Bignum},
		{"decimal", &e.opts.Decimal},
		{"uri", &e.opts.URI},
	} {
		if *b.dst, err = boolOption(p.Options, b.name, *b.dst); err != nil {
			return err
		}
	}
	if err := e.opts.Validate(); err != nil {
		return err
	}
	return e.encode(p.Value)
}

// datetimeLayout is RFC 3339 with at most microsecond precision; trailing
// zeros of the fraction are dropped and UTC is written as "Z".
const datetimeLayout = "2006-01-02T15:04:05.999999Z07:00"

func (e *encoder) writeDatetime(t time.Time) error {
	return e.nest(1, func() error {
		e.buf = AppendTag(e.buf, TagDateTime)
		return e.writeString(t.Format(datetimeLayout), true)
	})
}

// writeBigInt writes x as a plain integer when it fits the CBOR integer
// range, otherwise as a bignum tag.
func (e *encoder) writeBigInt(x *big.Int) error {
	neg := x.Sign() < 0
	mag := x
	if neg {
		// -1 - x
		mag = new(big.Int).Not(x)
	}
	if mag.BitLen() <= 64 {
		major := uint8(majorTypeUint)
		if neg {
			major = majorTypeNegInt
		}
		e.buf = appendUintCore(e.buf, major, mag.Uint64())
		return nil
	}
	tag := uint64(TagPosBignum)
	if neg {
		tag = TagNegBignum
	}
	return e.nest(1, func() error {
		e.buf = AppendTag(e.buf, tag)
		return e.writeString(string(mag.Bytes()), false)
	})
}

// writeDecimal writes d as a decimal fraction [exponent, mantissa], or as
// a plain integer when the exponent is zero and the mantissa fits.
func (e *encoder) writeDecimal(d decimal.Decimal) error {
	exp := d.Exponent()
	coef := d.Coefficient()
	if exp == 0 && coef.IsInt64() {
		e.buf = AppendInt64(e.buf, coef.Int64())
		return nil
	}
	if exp == 0 {
		return e.writeBigInt(coef)
	}
	return e.nest(2, func() error {
		e.buf = AppendTag(e.buf, TagDecimalFraction)
		e.buf = AppendArrayHeader(e.buf, 2)
		e.buf = AppendInt64(e.buf, int64(exp))
		return e.writeBigInt(coef)
	})
}
