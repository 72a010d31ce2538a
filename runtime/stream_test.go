package cbor

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"testing/iotest"
)

func readAll(t *testing.T, r io.Reader) ([]any, error) {
	t.Helper()
	rd, err := NewReader(r, nil)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var out []any
	for {
		v, err := rd.Next()
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		out = append(out, v)
	}
}

func TestReader(t *testing.T) {
	in := mustHex(t, "01820203a0d9d9f7f5")
	want := []any{int64(1), []any{int64(2), int64(3)}, NewMap(0), true}
	readers := map[string]func() io.Reader{
		"bytes":    func() io.Reader { return bytes.NewReader(in) },
		"one-byte": func() io.Reader { return iotest.OneByteReader(bytes.NewReader(in)) },
		"data-err": func() io.Reader { return iotest.DataErrReader(bytes.NewReader(in)) },
	}
	for name, mk := range readers {
		t.Run(name, func(t *testing.T) {
			got, err := readAll(t, mk())
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("got %#v want %#v", got, want)
			}
		})
	}
}

func TestReaderEmpty(t *testing.T) {
	got, err := readAll(t, bytes.NewReader(nil))
	if err != nil || len(got) != 0 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestReaderOffset(t *testing.T) {
	rd, err := NewReader(bytes.NewReader(mustHex(t, "0118ff")), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []int64{1, 3} {
		if _, err := rd.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rd.Offset() != want {
			t.Fatalf("Offset = %d want %d", rd.Offset(), want)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	errRead := errors.New("read failed")
	cases := []struct {
		name string
		r    io.Reader
		n    int
		want error
	}{
		{"truncated", bytes.NewReader(mustHex(t, "018201")), 1, io.ErrUnexpectedEOF},
		{"truncated-header", bytes.NewReader(mustHex(t, "19")), 0, io.ErrUnexpectedEOF},
		{"syntax", bytes.NewReader(mustHex(t, "01ff02")), 1, ErrSyntax},
		{"read-error", io.MultiReader(bytes.NewReader(mustHex(t, "01")), iotest.ErrReader(errRead)), 1, errRead},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readAll(t, tc.r)
			if len(got) != tc.n {
				t.Fatalf("read %d values, want %d", len(got), tc.n)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

type failWriter struct{ err error }

func (w failWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	vals := []any{1, "a", []any{true, nil}, omap("k", -1)}
	for _, v := range vals {
		if err := w.Write(v); err != nil {
			t.Fatalf("Write(%v): %v", v, err)
		}
	}
	if want := "01616182f5f6a1616b20"; bytes.Equal(buf.Bytes(), mustHex(t, want)) == false {
		t.Fatalf("got %x want %s", buf.Bytes(), want)
	}

	got, err := readAll(t, &buf)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{int64(1), "a", []any{true, nil}, omap("k", int64(-1))}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v want %#v", got, want)
	}
}

func TestWriterErrors(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(func() {}); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("got %v", err)
	}
	if err := w.Write(1); err != nil {
		t.Fatalf("encode error poisoned the writer: %v", err)
	}

	errWrite := errors.New("write failed")
	w, err = NewWriter(failWriter{errWrite}, nil)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := w.Write(1); !errors.Is(err, errWrite) {
			t.Fatalf("got %v", err)
		}
	}

	opts := DefaultEncodeOptions()
	opts.MaxDepth = -1
	if _, err := NewWriter(&buf, &opts); !errors.Is(err, ErrInvalidOptions) {
		t.Fatalf("got %v", err)
	}
}
