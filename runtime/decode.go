package cbor

import (
	"bytes"
	"math"
	"strconv"
)

// Decode decodes one CBOR data item from data. The whole input must be
// consumed; anything after the item is ErrExtraneousData.
//
// With FlagEDN the result is the EDN text
// (a string); on failure the text rendered up to the error is returned
// together with the error.
func Decode(data []byte, opts *DecodeOptions) (any, error) {
	o, err := decodeOptionsOrDefault(opts)
	if err != nil {
		return nil, err
	}
	if o.Flags&FlagEDN != 0 {
		s, err := decodeEDN(data, o)
		return s, err
	}
	return decodeValue(data, o)
}

func decodeValue(data []byte, o DecodeOptions) (any, error) {
	vs := &valueSink{}
	d := &decodeState{opts: o, sink: vs, data: data, single: true}
	d.off = skipSelfDescribe(data, o.Flags)
	if err := d.run(); err != nil {
		return nil, err
	}
	if d.off != len(data) {
		return nil, ErrExtraneousData.at(int64(d.off))
	}
	return vs.root, nil
}

func skipSelfDescribe(data []byte, flags Flags) int {
	if flags&FlagSelfDescribe == 0 && bytes.HasPrefix(data, []byte(selfDescribePrefix)) {
		return len(selfDescribePrefix)
	}
	return 0
}

// stringNS is one string-ref namespace: the decoded strings in
// index order.
type stringNS struct {
	strs []any
}

// isLenStringRef reports whether a string of length n is long enough to
// be recorded when the namespace already holds next strings.
func isLenStringRef(n int, next int) bool {
	var threshold int
	switch {
	case next <= 23:
		threshold = 3
	case next <= 0xff:
		threshold = 4
	case next <= 0xffff:
		threshold = 5
	case uint64(next) <= 0xffffffff:
		threshold = 7
	default:
		threshold = 11
	}
	return n >= threshold
}

// valueSink builds the Go value tree.
type valueSink struct {
	root any
	ns   []*stringNS
	refs []any
}

func (s *valueSink) leaf(d *decodeState, it *item) error {
	flags := d.opts.Flags
	switch it.kind {
	case kindUint, kindNegInt:
		return s.append(d, intValue(it.kind == kindNegInt, it.arg))
	case kindBytes, kindText:
		text := it.kind == kindText
		if text && flags&FlagUnsafeText == 0 && !isUTF8Valid(it.data) {
			return ErrUTF8
		}
		return s.appendString(d, string(it.data), text, false)
	case kindFalse:
		return s.append(d, false)
	case kindTrue:
		return s.append(d, true)
	case kindNull:
		return s.append(d, nil)
	case kindUndefined:
		return s.append(d, Undefined{})
	case kindSimple:
		return newError(CodeUnsupportedType, DetailSimple)
	case kindFloat16:
		if flags&FlagFloat16 != 0 {
			return s.append(d, float64FromHalfBits(uint16(it.arg)))
		}
		return s.append(d, Float16(it.arg))
	case kindFloat32:
		f := math.Float32frombits(uint32(it.arg))
		if flags&FlagFloat32 != 0 {
			return s.append(d, float64(f))
		}
		return s.append(d, Float32(f))
	case kindFloat64:
		return s.append(d, math.Float64frombits(it.arg))
	}
	return ErrInternal
}

func (s *valueSink) openContainer(d *decodeState, it *item) error {
	f := containerFrame(it)
	n := initialCap(it)
	switch {
	case it.kind == kindArray:
		f.arr = make([]any, 0, n)
	case d.opts.Flags&FlagNativeMap != 0:
		f.nmap = make(map[any]any, n)
	default:
		f.obj = NewMap(n)
	}
	return d.push(f)
}

func (s *valueSink) emptyContainer(d *decodeState, it *item) error {
	switch {
	case it.kind == kindArray:
		return s.append(d, []any{})
	case d.opts.Flags&FlagNativeMap != 0:
		return s.append(d, map[any]any{})
	default:
		return s.append(d, NewMap(0))
	}
}

func (s *valueSink) openString(d *decodeState, it *item) error {
	f := frame{kind: frameBytes}
	if it.kind == kindText {
		f.kind = frameText
	}
	return d.push(f)
}

func (s *valueSink) chunk(d *decodeState, f *frame, it *item) error {
	if f.kind == frameText && d.opts.Flags&FlagUnsafeText == 0 && !isUTF8Valid(it.data) {
		return ErrUTF8
	}
	f.str = append(f.str, it.data...)
	return nil
}

func (s *valueSink) closeFrame(d *decodeState, f *frame) error {
	switch f.kind {
	case frameBytes, frameText:
		return s.appendString(d, string(f.str), f.kind == frameText, true)
	case frameArray:
		return s.append(d, f.arr)
	default:
		return s.append(d, f.mapValue())
	}
}

func (f *frame) mapValue() any {
	if f.obj != nil {
		return f.obj
	}
	return f.nmap
}

func (s *valueSink) openTag(d *decodeState, number uint64) error {
	if number > math.MaxInt64 {
		return newError(CodeUnsupportedValue, DetailIntRange)
	}
	f := frame{kind: frameTag, count: 1, tag: number}
	h := handlerNone
	switch number {
	case TagStringRefNS, TagStringRef:
		if d.opts.StringRef {
			h = handlerStringRefNS
			if number == TagStringRef {
				h = handlerStringRef
			}
		}
	case TagShareable, TagSharedRef:
		if d.opts.SharedRef != SharedRefOff {
			h = handlerShareable
			if number == TagSharedRef {
				h = handlerSharedRef
			}
		}
	}
	if h == handlerNone {
		f.tagv = &Tag{Number: number}
		return d.push(f)
	}
	f.kind, f.handler = frameTagHandled, h
	if err := s.enterTag(d, &f); err != nil {
		return err
	}
	return d.push(f)
}

func (s *valueSink) enterTag(d *decodeState, f *frame) error {
	switch f.handler {
	case handlerStringRefNS:
		s.ns = append(s.ns, &stringNS{})
		f.nsData, f.nsChild = true, true
	case handlerStringRef:
		if len(s.ns) == 0 {
			return newError(CodeTagSyntax, DetailStrRefNoNS)
		}
	case handlerShareable:
		if p := d.top(); p != nil && p.kind == frameTagHandled && p.handler == handlerShareable {
			return newError(CodeTagSyntax, DetailShareNested)
		}
		// reserved before the content so the content can refer to it
		f.shareIndex = len(s.refs)
		f.sharePending = true
		s.refs = append(s.refs, nil)
	}
	return nil
}

func (s *valueSink) child(d *decodeState, parent, f *frame) error {
	if parent.nsChild && !f.isString() {
		f.nsData, f.nsChild = true, true
	}
	if parent.kind != frameTagHandled || parent.handler != handlerShareable || !parent.sharePending {
		return nil
	}
	parent.sharePending = false
	switch {
	case f.obj != nil:
		s.refs[parent.shareIndex] = f.obj
	case f.nmap != nil:
		s.refs[parent.shareIndex] = f.nmap
	case f.tagv != nil:
		s.refs[parent.shareIndex] = f.tagv
	case d.opts.SharedRef == SharedRefWrap:
		// also covers handled tags, whose result is only known at exit
		parent.shareBox = &Shareable{}
		s.refs[parent.shareIndex] = parent.shareBox
	default:
		return newError(CodeTagType, DetailShareIncompatible)
	}
	parent.shareSet = true
	return nil
}

func (s *valueSink) exitTag(d *decodeState, f *frame, v any) (any, error) {
	switch f.handler {
	case handlerStringRefNS:
		s.ns = s.ns[:len(s.ns)-1]
		return v, nil
	case handlerStringRef:
		idx, ok := v.(int64)
		if !ok {
			return nil, newError(CodeTagType, DetailStrRefNotInt)
		}
		ns := s.ns[len(s.ns)-1]
		if idx < 0 || idx >= int64(len(ns.strs)) {
			return nil, newError(CodeTagValue, DetailStrRefRange)
		}
		return ns.strs[idx], nil
	case handlerShareable:
		if _, ok := v.(extInt); ok {
			return nil, newError(CodeUnsupportedValue, DetailIntRange)
		}
		if f.shareSet {
			if f.shareBox != nil {
				f.shareBox.Value = v
				return f.shareBox, nil
			}
			return v, nil
		}
		switch v.(type) {
		case *Map, map[any]any, *Tag:
		default:
			if d.opts.SharedRef != SharedRefWrap {
				return nil, newError(CodeTagType, DetailShareIncompatible)
			}
			v = &Shareable{Value: v}
		}
		s.refs[f.shareIndex] = v
		return v, nil
	case handlerSharedRef:
		idx, ok := v.(int64)
		if !ok {
			return nil, newError(CodeTagType, DetailShareNotInt)
		}
		if idx < 0 || idx >= int64(len(s.refs)) {
			return nil, newError(CodeTagValue, DetailShareRange)
		}
		return s.refs[idx], nil
	}
	return nil, ErrInternal
}

// appendString delivers a complete string. Map keys stay plain strings;
// values become Byte or Text unless the matching flag asks for string.
func (s *valueSink) appendString(d *decodeState, str string, text, indef bool) error {
	flags := d.opts.Flags
	f := d.top()
	var v any = str
	if f != nil && f.kind == frameMap && !f.awaitingValue {
		switch {
		case text && flags&FlagKeyText == 0:
			return newError(CodeUnsupportedKeyType, DetailKeyText)
		case !text && flags&FlagKeyByte == 0:
			return newError(CodeUnsupportedKeyType, DetailKeyByte)
		}
	} else if text && flags&FlagText == 0 {
		v = Text(str)
	} else if !text && flags&FlagByte == 0 {
		v = Byte(str)
	}
	if !indef && f != nil && f.nsData {
		ns := s.ns[len(s.ns)-1]
		if isLenStringRef(len(str), len(ns.strs)) {
			ns.strs = append(ns.strs, v)
		}
	}
	return s.append(d, v)
}

// append hands a completed value to the frame on top of the stack. A
// frame that completes is popped and its value handed on in turn, so
// the walk up the stack is a loop rather than recursion.
func (s *valueSink) append(d *decodeState, v any) error {
	for {
		f := d.top()
		if f == nil {
			if _, ok := v.(extInt); ok {
				return newError(CodeUnsupportedValue, DetailIntRange)
			}
			s.root = v
			return nil
		}
		switch f.kind {
		case frameArray:
			if _, ok := v.(extInt); ok {
				return newError(CodeUnsupportedValue, DetailIntRange)
			}
			if f.count == 0 && int64(len(f.arr)) >= d.opts.MaxSize {
				return ErrUnsupportedSize
			}
			f.arr = append(f.arr, v)
			if f.count == 0 {
				return nil
			}
			if f.count--; f.count != 0 {
				return nil
			}
			v = d.pop().arr
		case frameMap:
			if !f.awaitingValue {
				return s.setKey(d, f, v)
			}
			if err := s.setValue(d, f, v); err != nil {
				return err
			}
			if f.count == 0 {
				return nil
			}
			if f.count--; f.count != 0 {
				return nil
			}
			p := d.pop()
			v = p.mapValue()
		case frameTag:
			if _, ok := v.(extInt); ok {
				return newError(CodeUnsupportedValue, DetailIntRange)
			}
			t := d.pop().tagv
			t.Content = v
			v = t
		case frameTagHandled:
			p := d.pop()
			var err error
			if v, err = s.exitTag(d, &p, v); err != nil {
				return err
			}
		default:
			return newError(CodeSyntax, DetailIndefStringChunkType)
		}
	}
}

func (s *valueSink) setKey(d *decodeState, f *frame, v any) error {
	if f.count == 0 {
		if f.entries++; int64(f.entries) > d.opts.MaxSize {
			return ErrUnsupportedSize
		}
	}
	switch v.(type) {
	case int64, extInt:
		if d.opts.Flags&FlagIntKey == 0 {
			return newError(CodeUnsupportedKeyType, DetailIntKey)
		}
	case string:
	case nil:
		return newError(CodeUnsupportedKeyType, DetailKeyNull)
	case bool:
		return newError(CodeUnsupportedKeyType, DetailKeyBool)
	case float64, Float16, Float32:
		return newError(CodeUnsupportedKeyType, DetailKeyFloat)
	case []any:
		return newError(CodeUnsupportedKeyType, DetailKeyArray)
	case Undefined:
		return newError(CodeUnsupportedKeyType, DetailKeyUndefined)
	case *Tag, *Shareable:
		return newError(CodeUnsupportedKeyType, DetailKeyTag)
	default:
		return newError(CodeUnsupportedKeyType, DetailKeyObject)
	}
	f.key, f.awaitingValue = v, true
	return nil
}

func (s *valueSink) setValue(d *decodeState, f *frame, v any) error {
	if _, ok := v.(extInt); ok {
		return newError(CodeUnsupportedValue, DetailIntRange)
	}
	key := f.key
	f.key, f.awaitingValue = nil, false
	if x, ok := key.(extInt); ok {
		key = x.String()
	}
	noDup := d.opts.Flags&FlagNoDupKey != 0
	if f.obj != nil {
		var k string
		switch x := key.(type) {
		case int64:
			k = strconv.FormatInt(x, 10)
		case string:
			k = x
		}
		if len(k) > 0 && k[0] == 0 {
			return newError(CodeUnsupportedKeyVal, DetailReservedPropName)
		}
		if noDup && f.obj.Has(k) {
			return ErrDuplicateKey
		}
		f.obj.Set(k, v)
		return nil
	}
	if noDup {
		if _, ok := f.nmap[key]; ok {
			return ErrDuplicateKey
		}
	}
	f.nmap[key] = v
	return nil
}
