package cbor

import (
	"io"
	"slices"
	"sync"
)

// ByteBuffer is the pooled output buffer behind Encode, the EDN renderer
// and the JSON writer. The zero value is ready to use.
type ByteBuffer struct {
	b []byte
}

const (
	initialBufferSize = 1024
	maxPooledBuffer   = 1 << 20
	readChunk         = 32 * 1024
)

var bbPool = sync.Pool{New: func() any { return &ByteBuffer{b: make([]byte, 0, initialBufferSize)} }}

// GetByteBuffer returns an empty buffer from the pool.
func GetByteBuffer() *ByteBuffer {
	bb := bbPool.Get().(*ByteBuffer)
	bb.b = bb.b[:0]
	return bb
}

// PutByteBuffer returns bb to the pool. Buffers that grew past 1 MiB are
// left for the garbage collector. bb must not be used afterwards.
func PutByteBuffer(bb *ByteBuffer) {
	if cap(bb.b) > maxPooledBuffer {
		return
	}
	bb.b = bb.b[:0]
	bbPool.Put(bb)
}

// Bytes returns the buffered bytes. They alias the buffer.
func (bb *ByteBuffer) Bytes() []byte { return bb.b }

// Reset empties the buffer and keeps its capacity.
func (bb *ByteBuffer) Reset() { bb.b = bb.b[:0] }

// Truncate discards all but the first n bytes.
func (bb *ByteBuffer) Truncate(n int) { bb.b = bb.b[:n] }

// Clone returns a copy of the content that does not alias the buffer.
func (bb *ByteBuffer) Clone() []byte { return slices.Clone(bb.b) }

// Extend lengthens the buffer by n bytes and returns the new tail for
// direct writes.
func (bb *ByteBuffer) Extend(n int) []byte {
	old := len(bb.b)
	bb.b = slices.Grow(bb.b, n)[:old+n]
	return bb.b[old:]
}

// Write implements io.Writer. It never fails.
func (bb *ByteBuffer) Write(p []byte) (int, error) {
	bb.b = append(bb.b, p...)
	return len(p), nil
}

func (bb *ByteBuffer) WriteString(s string) (int, error) {
	bb.b = append(bb.b, s...)
	return len(s), nil
}

func (bb *ByteBuffer) WriteByte(c byte) error {
	bb.b = append(bb.b, c)
	return nil
}

// ReadFrom implements io.ReaderFrom, reading r until io.EOF.
func (bb *ByteBuffer) ReadFrom(r io.Reader) (int64, error) {
	var total int64
	for {
		if cap(bb.b)-len(bb.b) < readChunk {
			bb.b = slices.Grow(bb.b, readChunk)
		}
		n, err := r.Read(bb.b[len(bb.b):cap(bb.b)])
		bb.b = bb.b[:len(bb.b)+n]
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
