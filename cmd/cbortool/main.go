package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// Globals are the flags shared by every command.
type Globals struct {
	Verbose bool `short:"v" help:"Enable debug logging."`
	LogJSON bool `name:"log-json" help:"Write logs as JSON."`
}

// CLI defines the cbortool command-line interface.
//
// Every command reads from a file argument, or stdin when it is omitted,
// and writes to stdout. Logs go to stderr.
type CLI struct {
	Globals

	Encode    EncodeCmd    `cmd:"" help:"Encode JSON as CBOR."`
	Decode    DecodeCmd    `cmd:"" help:"Decode CBOR to JSON."`
	EDN       EDNCmd       `cmd:"" name:"edn" help:"Render CBOR as Extended Diagnostic Notation."`
	Diag      DiagCmd      `cmd:"" help:"Render CBOR as diagnostic notation, optionally next to a reference decoder."`
	Validate  ValidateCmd  `cmd:"" help:"Check that input is a well-formed CBOR sequence."`
	Stream    StreamCmd    `cmd:"" help:"Decode a (possibly compressed) CBOR sequence, one value per line."`
	Transcode TranscodeCmd `cmd:"" help:"Convert MessagePack or YAML documents to a CBOR sequence."`
}

// env carries the I/O of one invocation into the commands.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	log    *slog.Logger
}

func newLogger(w io.Writer, g Globals) *slog.Logger {
	level := slog.LevelInfo
	if g.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if g.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("cbortool"),
		kong.Description("Encode, decode and inspect CBOR (RFC 8949)."),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	e := &env{stdin: stdin, stdout: stdout, log: newLogger(stderr, cli.Globals)}
	return ctx.Run(e)
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "cbortool:", err)
		os.Exit(1)
	}
}
