package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	fx "github.com/fxamacker/cbor/v2"
	"github.com/tinylib/msgp/msgp"
	"gopkg.in/yaml.v3"

	cbor "github.com/synadia-labs/cborcodec/runtime"
)

// EncodeCmd converts one JSON document, or one per line with --lines.
type EncodeCmd struct {
	InputArg
	EncodeFlags
	Lines bool `help:"Treat each non-empty input line as a JSON document and write a CBOR sequence."`
}

func (c *EncodeCmd) Run(e *env) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	data, err := c.read(e, false)
	if err != nil {
		return err
	}
	if !c.Lines {
		v, err := cbor.FromJSON(data)
		if err != nil {
			return fmt.Errorf("parse JSON: %w", err)
		}
		out, err := cbor.Encode(v, opts)
		if err != nil {
			return err
		}
		e.log.Debug("encoded", "bytes", len(out))
		return c.write(e, out)
	}

	var seq bytes.Buffer
	w, err := cbor.NewWriter(&seq, opts)
	if err != nil {
		return err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(nil, len(data)+1)
	var n int
	for line := 1; sc.Scan(); line++ {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		v, err := cbor.FromJSON(sc.Bytes())
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := w.Write(v); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	e.log.Debug("encoded sequence", "items", n, "bytes", seq.Len())
	return c.write(e, seq.Bytes())
}

// DecodeCmd converts one CBOR data item to JSON.
type DecodeCmd struct {
	InputArg
	DecodeFlags
}

func (c *DecodeCmd) Run(e *env) error {
	opts, err := c.options(0)
	if err != nil {
		return err
	}
	data, err := c.read(e, c.Hex)
	if err != nil {
		return err
	}
	v, err := cbor.Decode(data, opts)
	if err != nil {
		logDecodeError(e, err)
		return err
	}
	out, err := cbor.ToJSON(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.stdout, "%s\n", out)
	return err
}

// EDNCmd renders one data item as EDN.
type EDNCmd struct {
	InputArg
	DecodeFlags
	Indent int `help:"Spaces per nesting level (0 keeps one line)." default:"-1"`
}

func (c *EDNCmd) Run(e *env) error {
	opts, err := c.options(0)
	if err != nil {
		return err
	}
	if c.Indent >= 0 {
		opts.EDN.Indent = c.Indent
		opts.EDN.IndentTab = false
		if err := opts.Validate(); err != nil {
			return err
		}
	}
	data, err := c.read(e, c.Hex)
	if err != nil {
		return err
	}
	s, err := cbor.DecodeEDN(data, opts)
	// the partial text carries the error annotation
	fmt.Fprintln(e.stdout, s)
	if err != nil {
		logDecodeError(e, err)
	}
	return err
}

// DiagCmd prints the EDN rendering and, with --reference, the
// diagnostic notation produced by github.com/fxamacker/cbor.
type DiagCmd struct {
	InputArg
	DecodeFlags
	Reference bool `help:"Also print the fxamacker/cbor diagnostic notation."`
}

func (c *DiagCmd) Run(e *env) error {
	opts, err := c.options(0)
	if err != nil {
		return err
	}
	data, err := c.read(e, c.Hex)
	if err != nil {
		return err
	}
	s, err := cbor.DecodeEDN(data, opts)
	fmt.Fprintln(e.stdout, s)
	if err != nil {
		logDecodeError(e, err)
		return err
	}
	if !c.Reference {
		return nil
	}
	ref, err := fx.Diagnose(data)
	if err != nil {
		return fmt.Errorf("fxamacker: %w", err)
	}
	if ref != s {
		e.log.Debug("reference differs", "ours", s, "fxamacker", ref)
	}
	_, err = fmt.Fprintf(e.stdout, "fxamacker: %s\n", ref)
	return err
}

// ValidateCmd checks well-formedness without building values.
type ValidateCmd struct {
	InputArg
	DecodeFlags
	Single bool `help:"Require exactly one data item."`
}

func (c *ValidateCmd) Run(e *env) error {
	opts, err := c.options(0)
	if err != nil {
		return err
	}
	data, err := c.read(e, c.Hex)
	if err != nil {
		return err
	}
	if c.Single {
		if err := cbor.ValidateWellFormed(data, opts); err != nil {
			logDecodeError(e, err)
			return err
		}
		_, err := fmt.Fprintln(e.stdout, "1 item ok")
		return err
	}
	n, err := cbor.ValidateSequence(data, opts)
	if err != nil {
		logDecodeError(e, err)
		return fmt.Errorf("item %d: %w", n, err)
	}
	_, err = fmt.Fprintf(e.stdout, "%d items ok\n", n)
	return err
}

// StreamCmd decodes a CBOR sequence incrementally, printing one JSON (or
// EDN) line per value.
type StreamCmd struct {
	InputArg
	DecodeFlags
	Zstd bool `help:"Input is zstd compressed." xor:"compression"`
	Gzip bool `help:"Input is gzip compressed." xor:"compression"`
	EDN  bool `name:"edn" help:"Print EDN instead of JSON."`
}

func (c *StreamCmd) Run(e *env) error {
	var extra cbor.Flags
	if c.EDN {
		extra = cbor.FlagEDN
	}
	opts, err := c.options(extra)
	if err != nil {
		return err
	}
	f, err := c.open(e)
	if err != nil {
		return err
	}
	defer f.Close()
	r, closeFn, err := decompress(f, c.Zstd, c.Gzip)
	if err != nil {
		return err
	}
	defer closeFn()

	rd, err := cbor.NewReader(r, opts)
	if err != nil {
		return err
	}
	var n int
	for {
		v, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logDecodeError(e, err)
			return fmt.Errorf("item %d: %w", n, err)
		}
		if s, ok := v.(string); ok && c.EDN {
			fmt.Fprintln(e.stdout, s)
		} else {
			out, err := cbor.ToJSON(v)
			if err != nil {
				return fmt.Errorf("item %d: %w", n, err)
			}
			fmt.Fprintf(e.stdout, "%s\n", out)
		}
		n++
	}
	e.log.Info("stream done", "items", n, "bytes", rd.Offset())
	return nil
}

// TranscodeCmd converts other self-describing formats to CBOR.
type TranscodeCmd struct {
	InputArg
	EncodeFlags
	From string `required:"" enum:"msgpack,yaml" help:"Input format (msgpack or yaml)."`
}

func (c *TranscodeCmd) Run(e *env) error {
	opts, err := c.options()
	if err != nil {
		return err
	}
	data, err := c.read(e, false)
	if err != nil {
		return err
	}
	var seq bytes.Buffer
	w, err := cbor.NewWriter(&seq, opts)
	if err != nil {
		return err
	}
	var n int
	switch c.From {
	case "msgpack":
		for rest := data; len(rest) > 0; n++ {
			var v any
			if v, rest, err = msgp.ReadIntfBytes(rest); err != nil {
				return fmt.Errorf("msgpack item %d: %w", n, err)
			}
			if err := w.Write(v); err != nil {
				return fmt.Errorf("item %d: %w", n, err)
			}
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		for ; ; n++ {
			var v any
			if err := dec.Decode(&v); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return fmt.Errorf("yaml document %d: %w", n, err)
			}
			if err := w.Write(v); err != nil {
				return fmt.Errorf("document %d: %w", n, err)
			}
		}
	}
	e.log.Debug("transcoded", "from", c.From, "items", n, "bytes", seq.Len())
	return c.write(e, seq.Bytes())
}

func logDecodeError(e *env, err error) {
	var ce *cbor.CodeError
	if errors.As(err, &ce) {
		e.log.Debug("decode failed", "code", int(ce.Code), "name", ce.Code.String(), "offset", ce.Offset)
	}
}
