package cbor

import "math"

type frameKind uint8

const (
	frameArray frameKind = iota + 1
	frameMap
	frameTag
	frameTagHandled
	frameBytes
	frameText
)

// tagHandler selects the hooks of a tag-handled frame.
type tagHandler uint8

const (
	handlerNone tagHandler = iota
	handlerStringRefNS
	handlerStringRef
	handlerShareable
	handlerSharedRef
)

// frame is one open container on the decode stack.
type frame struct {
	kind frameKind
	// count is the number of items (pairs for maps) still expected;
	// 0 means indefinite length.
	count uint32
	// awaitingValue is set on a map frame between a key and its value.
	awaitingValue bool
	// entries counts the pairs started in an indefinite-length map.
	entries uint32

	tag     uint64
	handler tagHandler

	// nsData marks frames whose direct string children are recorded in
	// the innermost string-ref namespace; nsChild passes it on to
	// frames pushed below.
	nsData  bool
	nsChild bool

	// shareable state
	shareIndex   int
	sharePending bool
	shareSet     bool
	shareBox     *Shareable

	// value building
	arr  []any
	obj  *Map
	nmap map[any]any
	key  any
	tagv *Tag
	str  []byte

	// EDN rendering
	ednIndent uint8
	appended  bool
}

func (f *frame) isString() bool { return f.kind == frameBytes || f.kind == frameText }

// decodeSink receives the items of the stack machine. The value builder
// and the EDN renderer implement it.
type decodeSink interface {
	// leaf handles scalars and definite strings outside indefinite strings.
	leaf(d *decodeState, it *item) error
	// openContainer handles an array or map header with a non-zero or
	// indefinite count.
	openContainer(d *decodeState, it *item) error
	// emptyContainer handles an array or map header with a zero count.
	emptyContainer(d *decodeState, it *item) error
	openTag(d *decodeState, number uint64) error
	openString(d *decodeState, it *item) error
	// chunk handles a definite chunk of the indefinite string on top.
	chunk(d *decodeState, f *frame, it *item) error
	// child runs when f is about to be pushed above parent.
	child(d *decodeState, parent, f *frame) error
	// closeFrame handles a break; f has already been popped.
	closeFrame(d *decodeState, f *frame) error
}

// decodeState is the stack machine shared by Decode, DecodeEDN and the
// incremental Decoder. It keeps no references into data between runs,
// so the buffer may move once run has returned.
type decodeState struct {
	opts DecodeOptions
	data []byte
	off  int
	// base is the absolute input offset of data[0], used in errors.
	base int64
	// single is set when data holds the whole input.
	single bool

	stack []frame
	sink  decodeSink
}

func (d *decodeState) top() *frame {
	if len(d.stack) == 0 {
		return nil
	}
	return &d.stack[len(d.stack)-1]
}

func (d *decodeState) checkDepth() error {
	if len(d.stack) >= d.opts.MaxDepth {
		return ErrDepth
	}
	return nil
}

func (d *decodeState) push(f frame) error {
	if err := d.checkDepth(); err != nil {
		return err
	}
	if p := d.top(); p != nil {
		if err := d.sink.child(d, p, &f); err != nil {
			return err
		}
	}
	d.stack = append(d.stack, f)
	return nil
}

func (d *decodeState) pop() frame {
	n := len(d.stack) - 1
	f := d.stack[n]
	d.stack[n] = frame{}
	d.stack = d.stack[:n]
	return f
}

// run decodes items until one root value is complete. On
// ErrTruncatedData the state is left at the start of the incomplete item
// and run may be called again with more data.
func (d *decodeState) run() error {
	for {
		if d.off >= len(d.data) {
			return ErrTruncatedData.at(d.base + int64(d.off))
		}
		if err := d.step(); err != nil {
			return err
		}
		if len(d.stack) == 0 {
			return nil
		}
	}
}

func (d *decodeState) step() error {
	start := d.off
	it, err := readItem(d.data[start:])
	if err != nil {
		return d.errorAt(err, start)
	}
	d.off += it.size
	if err := d.dispatch(&it); err != nil {
		if Resumable(err) {
			d.off = start
			return d.errorAt(err, start)
		}
		return d.errorAt(err, d.off)
	}
	return nil
}

func (d *decodeState) errorAt(err error, off int) error {
	if ce, ok := err.(*CodeError); ok {
		return ce.at(d.base + int64(off))
	}
	return err
}

func (d *decodeState) dispatch(it *item) error {
	top := d.top()
	if top != nil && top.isString() && it.kind != kindBreak {
		if !it.isString() || it.indef {
			return newError(CodeSyntax, DetailIndefStringChunkType)
		}
		if (it.kind == kindText) != (top.kind == frameText) {
			return newError(CodeSyntax, DetailInconsistentStringType)
		}
		return d.sink.chunk(d, top, it)
	}

	switch it.kind {
	case kindArray, kindMap:
		if it.indef {
			return d.sink.openContainer(d, it)
		}
		if it.arg > math.MaxUint32 || it.arg > uint64(d.opts.MaxSize) {
			return ErrUnsupportedSize
		}
		if d.single && it.arg > uint64(len(d.data)-d.off) {
			// every element needs at least one more byte
			return ErrTruncatedData
		}
		if it.arg == 0 {
			if err := d.checkDepth(); err != nil {
				return err
			}
			return d.sink.emptyContainer(d, it)
		}
		return d.sink.openContainer(d, it)
	case kindTag:
		return d.sink.openTag(d, it.arg)
	case kindBytes, kindText:
		if it.indef {
			return d.sink.openString(d, it)
		}
		return d.sink.leaf(d, it)
	case kindBreak:
		if top == nil {
			return newError(CodeSyntax, DetailBreakUnderflow)
		}
		switch top.kind {
		case frameBytes, frameText:
		case frameArray, frameMap:
			if top.count != 0 || top.awaitingValue {
				return newError(CodeSyntax, DetailBreakUnexpected)
			}
		default:
			return newError(CodeSyntax, DetailBreakUnexpected)
		}
		f := d.pop()
		return d.sink.closeFrame(d, &f)
	default:
		return d.sink.leaf(d, it)
	}
}

// containerFrame builds the frame for an array or map header.
func containerFrame(it *item) frame {
	f := frame{kind: frameArray}
	if it.kind == kindMap {
		f.kind = frameMap
	}
	if !it.indef {
		f.count = uint32(it.arg)
	}
	return f
}

func initialCap(it *item) int {
	if it.indef {
		return 0
	}
	return int(min(it.arg, sizeInitLimit))
}
