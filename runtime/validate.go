package cbor

// ValidateWellFormed checks that data holds exactly one well-formed data
// item without building its value. Structural limits (MaxDepth, MaxSize)
// and UTF-8 validity of text strings are enforced as in Decode; tags are
// not interpreted.
func ValidateWellFormed(data []byte, opts *DecodeOptions) error {
	o, err := decodeOptionsOrDefault(opts)
	if err != nil {
		return err
	}
	d := &decodeState{opts: o, sink: checkSink{}, data: data, single: true}
	if err := d.run(); err != nil {
		return err
	}
	if d.off != len(data) {
		return ErrExtraneousData.at(int64(d.off))
	}
	return nil
}

// ValidateSequence checks a CBOR sequence (RFC 8742) and returns the
// number of well-formed items before the first error.
func ValidateSequence(data []byte, opts *DecodeOptions) (int, error) {
	o, err := decodeOptionsOrDefault(opts)
	if err != nil {
		return 0, err
	}
	var n int
	for off := 0; off < len(data); n++ {
		d := &decodeState{opts: o, sink: checkSink{}, data: data, off: off, single: true}
		if err := d.run(); err != nil {
			return n, err
		}
		off = d.off
	}
	return n, nil
}

// checkSink walks the item structure and discards it.
type checkSink struct{}

func (checkSink) leaf(d *decodeState, it *item) error {
	if it.kind == kindText && d.opts.Flags&FlagUnsafeText == 0 && !isUTF8Valid(it.data) {
		return ErrUTF8
	}
	return checkDone(d)
}

func (checkSink) openContainer(d *decodeState, it *item) error {
	return d.push(containerFrame(it))
}

func (checkSink) emptyContainer(d *decodeState, _ *item) error { return checkDone(d) }

func (checkSink) openTag(d *decodeState, number uint64) error {
	return d.push(frame{kind: frameTag, count: 1, tag: number})
}

func (checkSink) openString(d *decodeState, it *item) error {
	f := frame{kind: frameBytes}
	if it.kind == kindText {
		f.kind = frameText
	}
	return d.push(f)
}

func (checkSink) chunk(d *decodeState, f *frame, it *item) error {
	if f.kind == frameText && d.opts.Flags&FlagUnsafeText == 0 && !isUTF8Valid(it.data) {
		return ErrUTF8
	}
	return nil
}

func (checkSink) child(*decodeState, *frame, *frame) error { return nil }

func (checkSink) closeFrame(d *decodeState, _ *frame) error { return checkDone(d) }

// checkDone accounts for one completed item, closing the definite
// containers it completes.
func checkDone(d *decodeState) error {
	for {
		f := d.top()
		if f == nil {
			return nil
		}
		switch f.kind {
		case frameTag:
			d.pop()
			continue
		case frameMap:
			if !f.awaitingValue {
				f.awaitingValue = true
				if f.count == 0 {
					if f.entries++; int64(f.entries) > d.opts.MaxSize {
						return ErrUnsupportedSize
					}
				}
				return nil
			}
			f.awaitingValue = false
			if f.count == 0 {
				return nil
			}
			if f.count--; f.count != 0 {
				return nil
			}
			d.pop()
		case frameArray:
			if f.count == 0 {
				if f.entries++; int64(f.entries) > d.opts.MaxSize {
					return ErrUnsupportedSize
				}
				return nil
			}
			if f.count--; f.count != 0 {
				return nil
			}
			d.pop()
		default:
			return newError(CodeSyntax, DetailIndefStringChunkType)
		}
	}
}
