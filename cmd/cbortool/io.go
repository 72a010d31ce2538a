package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	cbor "github.com/synadia-labs/cborcodec/runtime"
)

// InputArg is the optional positional file argument.
type InputArg struct {
	Input string `arg:"" optional:"" help:"Input file; stdin when omitted or \"-\"."`
}

func (in InputArg) name() string {
	if in.Input == "" || in.Input == "-" {
		return "stdin"
	}
	return in.Input
}

func (in InputArg) open(e *env) (io.ReadCloser, error) {
	if in.Input == "" || in.Input == "-" {
		return io.NopCloser(e.stdin), nil
	}
	f, err := os.Open(in.Input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// read returns the whole input, decoding it from hex text when hexText
// is set (whitespace is ignored).
func (in InputArg) read(e *env, hexText bool) ([]byte, error) {
	r, err := in.open(e)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	bb := cbor.GetByteBuffer()
	defer cbor.PutByteBuffer(bb)
	if _, err := bb.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", in.name(), err)
	}
	data := bb.Clone()
	if hexText {
		if data, err = hex.DecodeString(strings.Join(strings.Fields(string(data)), "")); err != nil {
			return nil, fmt.Errorf("decode hex input: %w", err)
		}
	}
	e.log.Debug("read input", "source", in.name(), "bytes", len(data))
	return data, nil
}

// decompress wraps r for the selected compression.
func decompress(r io.Reader, useZstd, useGzip bool) (io.Reader, func(), error) {
	switch {
	case useZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return zr, zr.Close, nil
	case useGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return gr, func() { gr.Close() }, nil
	}
	return r, func() {}, nil
}

func loadOptionFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse options %s: %w", path, err)
	}
	return m, nil
}

// EncodeFlags are the flags of commands that produce CBOR.
type EncodeFlags struct {
	Options      string `help:"YAML file with encode options (max_depth, string_ref, shared_ref, datetime, bignum, decimal, uri)." type:"existingfile"`
	CDE          bool   `name:"cde" help:"Use core deterministic encoding."`
	SelfDescribe bool   `help:"Prefix each value with the self-describe tag."`
	IntKey       bool   `help:"Encode numeric string keys as integers."`
	Hex          bool   `help:"Write hex text instead of raw CBOR."`
}

func (f *EncodeFlags) options() (*cbor.EncodeOptions, error) {
	flags := cbor.DefaultFlags
	if f.CDE {
		flags |= cbor.FlagCDE
	}
	if f.SelfDescribe {
		flags |= cbor.FlagSelfDescribe
	}
	if f.IntKey {
		flags |= cbor.FlagIntKey
	}
	m, err := loadOptionFile(f.Options)
	if err != nil {
		return nil, err
	}
	o, err := cbor.ParseEncodeOptions(flags, m)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return &o, nil
}

func (f *EncodeFlags) write(e *env, data []byte) error {
	if f.Hex {
		_, err := fmt.Fprintln(e.stdout, hex.EncodeToString(data))
		return err
	}
	_, err := e.stdout.Write(data)
	return err
}

// DecodeFlags are the flags of commands that read CBOR.
type DecodeFlags struct {
	Options      string `help:"YAML file with decode options (max_depth, max_size, string_ref, shared_ref, indent, space, byte_space, byte_wrap)." type:"existingfile"`
	Hex          bool   `help:"Input is hex text."`
	IntKey       bool   `help:"Accept integer map keys."`
	NoDupKey     bool   `help:"Reject duplicate map keys."`
	SelfDescribe bool   `help:"Keep the self-describe tag instead of stripping it."`
}

func (f *DecodeFlags) options(extra cbor.Flags) (*cbor.DecodeOptions, error) {
	flags := cbor.DefaultFlags | extra
	if f.IntKey {
		flags |= cbor.FlagIntKey
	}
	if f.NoDupKey {
		flags |= cbor.FlagNoDupKey
	}
	if f.SelfDescribe {
		flags |= cbor.FlagSelfDescribe
	}
	m, err := loadOptionFile(f.Options)
	if err != nil {
		return nil, err
	}
	o, err := cbor.ParseDecodeOptions(flags, m)
	if err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return &o, nil
}
