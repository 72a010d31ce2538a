package cbor

import (
	"errors"
	"io"
)

// streamReadSize is the size of each read from the underlying reader.
const streamReadSize = 4096

// Reader reads a CBOR sequence (RFC 8742) from an io.Reader.
type Reader struct {
	r   io.Reader
	dec *Decoder
	buf []byte
	err error
}

// NewReader returns a Reader decoding with opts (nil means defaults).
func NewReader(r io.Reader, opts *DecodeOptions) (*Reader, error) {
	dec, err := NewDecoder(opts)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, dec: dec}, nil
}

// Next returns the next value of the sequence. It returns io.EOF at a
// clean end of input and io.ErrUnexpectedEOF when the input stops inside
// a value. Decode errors are returned as is and end the stream.
func (r *Reader) Next() (any, error) {
	for {
		ok, err := r.dec.Process()
		if err != nil {
			r.err = err
			return nil, err
		}
		if ok {
			return r.dec.Value(true)
		}
		if r.err != nil {
			return nil, r.err
		}
		if err := r.refill(); err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
				return nil, err
			}
			if r.dec.IsPartial() || len(r.dec.Buffer()) > 0 {
				r.err = io.ErrUnexpectedEOF
			} else {
				r.err = io.EOF
			}
			continue
		}
	}
}

func (r *Reader) refill() error {
	if r.buf == nil {
		r.buf = make([]byte, streamReadSize)
	}
	n, err := r.r.Read(r.buf)
	if n > 0 {
		// reported on the next call
		if aerr := r.dec.Add(r.buf[:n]); aerr != nil {
			return aerr
		}
		return nil
	}
	if err == nil {
		return nil
	}
	return err
}

// Offset returns the stream offset just past the last value returned.
func (r *Reader) Offset() int64 { return r.dec.Offset() }

// Writer writes values as a CBOR sequence.
type Writer struct {
	w    io.Writer
	opts EncodeOptions
	buf  []byte
	err  error
}

// NewWriter returns a Writer encoding with opts (nil means defaults).
func NewWriter(w io.Writer, opts *EncodeOptions) (*Writer, error) {
	o, err := encodeOptionsOrDefault(opts)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, opts: o}, nil
}

// Write encodes v and writes it to the stream. After a write error all
// further writes fail with the same error.
func (w *Writer) Write(v any) error {
	if w.err != nil {
		return w.err
	}
	b, err := Append(w.buf[:0], v, &w.opts)
	if err != nil {
		return err
	}
	w.buf = b
	if _, err := w.w.Write(b); err != nil {
		w.err = err
		return err
	}
	return nil
}
