package cbor

import "sync/atomic"

// compactThreshold is the consumed prefix size after which the buffer
// is shifted down.
const compactThreshold = 512 * 1024

// Decoder decodes a CBOR sequence incrementally. Bytes are supplied with
// Add; each Process call continues decoding where the last one stopped
// and reports whether a complete value is available.
//
//	dec, _ := cbor.NewDecoder(nil)
//	for chunk := range chunks {
//		dec.Add(chunk)
//		for {
//			ok, err := dec.Process()
//			if err != nil || !ok {
//				break
//			}
//			v, _ := dec.Value(true)
//			use(v)
//		}
//	}
//
// A Decoder is not safe for concurrent use. Calls made while Process runs
// fail with ErrBusy.
type Decoder struct {
	opts DecodeOptions
	busy atomic.Bool

	buf []byte
	off int
	// base is the absolute stream offset of buf[0].
	base int64

	// state is the partly decoded value, nil between values.
	state *decodeState
	vs    *valueSink
	edn   *ednSink

	value    any
	hasValue bool
}

// NewDecoder returns a Decoder using opts (nil means defaults).
func NewDecoder(opts *DecodeOptions) (*Decoder, error) {
	o, err := decodeOptionsOrDefault(opts)
	if err != nil {
		return nil, err
	}
	return &Decoder{opts: o}, nil
}

// Decode decodes data in one shot with the decoder's options. It does
// not touch the incremental state.
func (dec *Decoder) Decode(data []byte) (any, error) {
	return Decode(data, &dec.opts)
}

// Add appends p to the input buffer. p is copied.
func (dec *Decoder) Add(p []byte) error {
	if dec.busy.Load() {
		return ErrBusy
	}
	dec.buf = append(dec.buf, p...)
	return nil
}

// AddRange appends length bytes of p starting at offset. A negative
// offset counts from the end of p; a negative length stops that many
// bytes before the end. A zero length adds nothing and lengths past the
// end are clamped.
func (dec *Decoder) AddRange(p []byte, offset, length int) error {
	if dec.busy.Load() {
		return ErrBusy
	}
	n := len(p)
	if offset < 0 {
		offset = max(0, offset+n)
	}
	offset = min(offset, n)
	switch {
	case length == 0:
		return nil
	case length < 0:
		length = max(0, max(0, length+n)-offset)
	}
	end := n
	if length < n-offset {
		end = offset + length
	}
	dec.buf = append(dec.buf, p[offset:end]...)
	return nil
}

// Process decodes from the buffered input. It returns true when a value
// is complete and can be fetched with Value, and false when more input
// is needed. Errors other than truncation abandon the value being
// decoded; the bytes after the offending item stay buffered.
//
// Any value not fetched by the previous call is dropped.
func (dec *Decoder) Process() (bool, error) {
	if !dec.busy.CompareAndSwap(false, true) {
		return false, ErrBusy
	}
	defer dec.busy.Store(false)
	dec.value, dec.hasValue = nil, false
	ok, err := dec.process()
	dec.compact()
	return ok, err
}

func (dec *Decoder) process() (bool, error) {
	if dec.state == nil {
		skip, more := dec.selfDescribe()
		if more {
			return false, nil
		}
		dec.off += skip
		if dec.off == len(dec.buf) {
			return false, nil
		}
		dec.begin()
	}
	d := dec.state
	d.data, d.off, d.base = dec.buf, dec.off, dec.base
	err := d.run()
	dec.off = d.off
	d.data = nil
	if err != nil && Resumable(err) {
		return false, nil
	}
	dec.state = nil
	if dec.edn != nil {
		if err == nil {
			dec.value = string(dec.edn.buf.Bytes())
		}
		dec.edn.release()
		dec.edn = nil
	} else if err == nil {
		dec.value = dec.vs.root
	}
	dec.vs = nil
	if err != nil {
		return false, err
	}
	dec.hasValue = true
	return true, nil
}

// selfDescribe reports how many bytes of a self-describe marker start
// the next value, or more when the buffered bytes are a proper prefix of
// the marker.
func (dec *Decoder) selfDescribe() (skip int, more bool) {
	if dec.opts.Flags&FlagSelfDescribe != 0 {
		return 0, false
	}
	rest := dec.buf[dec.off:]
	n := min(len(rest), len(selfDescribePrefix))
	if string(rest[:n]) != selfDescribePrefix[:n] || n == 0 {
		return 0, false
	}
	if n < len(selfDescribePrefix) {
		return 0, true
	}
	return n, false
}

func (dec *Decoder) begin() {
	d := &decodeState{opts: dec.opts}
	if dec.opts.Flags&FlagEDN != 0 {
		dec.edn = newEDNSink(dec.opts.EDN)
		d.sink = dec.edn
	} else {
		dec.vs = &valueSink{}
		d.sink = dec.vs
	}
	dec.state = d
}

// compact drops the consumed prefix once it is fully consumed or large.
func (dec *Decoder) compact() {
	switch {
	case dec.off == 0:
	case dec.off == len(dec.buf):
		dec.base += int64(dec.off)
		dec.buf = dec.buf[:0]
		dec.off = 0
	case dec.off > compactThreshold:
		dec.base += int64(dec.off)
		n := copy(dec.buf, dec.buf[dec.off:])
		dec.buf = dec.buf[:n]
		dec.off = 0
	}
}

// Value returns the decoded value. With clear set the decoder forgets it,
// so a second call returns ErrNotReady.
func (dec *Decoder) Value(clear bool) (any, error) {
	if dec.busy.Load() {
		return nil, ErrBusy
	}
	if !dec.hasValue {
		return nil, ErrNotReady
	}
	v := dec.value
	if clear {
		dec.value, dec.hasValue = nil, false
	}
	return v, nil
}

// Reset discards the buffer, any partial value and any decoded value.
func (dec *Decoder) Reset() error {
	if dec.busy.Load() {
		return ErrBusy
	}
	if dec.edn != nil {
		dec.edn.release()
		dec.edn = nil
	}
	dec.state, dec.vs = nil, nil
	dec.buf, dec.off, dec.base = nil, 0, 0
	dec.value, dec.hasValue = nil, false
	return nil
}

// HasValue reports whether a decoded value is waiting to be fetched.
func (dec *Decoder) HasValue() bool { return dec.hasValue }

// IsPartial reports whether a value is partly decoded.
func (dec *Decoder) IsPartial() bool { return dec.state != nil }

// IsProcessing reports whether Process is running.
func (dec *Decoder) IsProcessing() bool { return dec.busy.Load() }

// Buffer returns a copy of the bytes not consumed yet.
func (dec *Decoder) Buffer() []byte {
	return append([]byte(nil), dec.buf[dec.off:]...)
}

// Offset returns the absolute stream offset of the next unconsumed byte.
func (dec *Decoder) Offset() int64 { return dec.base + int64(dec.off) }
