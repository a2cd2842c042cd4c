// Command dovi manipulates Dolby Vision RPU metadata carried in HEVC
// elementary streams: extracting RPUs, converting profiles in place,
// splitting dual-layer streams, injecting RPUs into a base layer, and
// printing per-picture diagnostics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kelseyhightower/envconfig"

	"github.com/hevctools/dovi/rpu"
	"github.com/hevctools/dovi/stream"
)

var version = "dev"

type settings struct {
	Workers   int    `envconfig:"WORKERS" default:"0"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	StrictCRC bool   `envconfig:"STRICT_CRC" default:"false"`
}

func main() {
	var cfg settings
	if err := envconfig.Process("dovi", &cfg); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], cfg); err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `dovi %s — Dolby Vision RPU tool

Usage:
  dovi extract -i INPUT -o RPU_OUT [-mode MODE] [-crop]
  dovi convert -i INPUT -o OUTPUT [-mode MODE] [-crop] [-drop-el] [-edits FILE]
  dovi demux   -i INPUT -bl BL_OUT -el EL_OUT [-mode MODE]
  dovi inject  -bl BL_IN -rpu RPU_IN -o OUTPUT
  dovi info    -i INPUT -frame N

Modes: copy (default), parse-and-rewrite, mel-compatible, profile-81-compatible.
Use "-" as a path for stdin/stdout.
`, version)
}

func run(ctx context.Context, cmd string, args []string, cfg settings) error {
	base := stream.Options{
		Workers:   cfg.Workers,
		StrictCRC: cfg.StrictCRC,
		Logger:    slog.Default(),
	}

	switch cmd {
	case "extract":
		fs := flag.NewFlagSet("extract", flag.ExitOnError)
		in := fs.String("i", "-", "input stream ('-' for stdin)")
		out := fs.String("o", "-", "RPU output ('-' for stdout)")
		mode := fs.String("mode", "copy", "processing mode")
		crop := fs.Bool("crop", false, "force zero active-area offsets")
		fs.Parse(args)

		opts := base
		opts.Crop = *crop
		var err error
		if opts.Mode, err = parseMode(*mode); err != nil {
			return err
		}

		data, err := readInput(*in)
		if err != nil {
			return err
		}
		return withOutput(*out, func(w io.Writer) error {
			res, err := stream.Extract(ctx, data, w, opts)
			if err != nil {
				return err
			}
			reportWarnings(res)
			return nil
		})

	case "convert":
		fs := flag.NewFlagSet("convert", flag.ExitOnError)
		in := fs.String("i", "-", "input stream ('-' for stdin)")
		out := fs.String("o", "-", "output stream ('-' for stdout)")
		mode := fs.String("mode", "copy", "processing mode")
		crop := fs.Bool("crop", false, "force zero active-area offsets")
		dropEL := fs.Bool("drop-el", false, "discard enhancement-layer NAL units")
		editsPath := fs.String("edits", "", "JSON edit list")
		fs.Parse(args)

		opts := base
		opts.Crop = *crop
		opts.DropEL = *dropEL
		var err error
		if opts.Mode, err = parseMode(*mode); err != nil {
			return err
		}
		if *editsPath != "" {
			if opts.Edits, err = loadEdits(*editsPath); err != nil {
				return err
			}
		}

		data, err := readInput(*in)
		if err != nil {
			return err
		}
		return withOutput(*out, func(w io.Writer) error {
			res, err := stream.Convert(ctx, data, w, opts)
			if err != nil {
				return err
			}
			reportWarnings(res)
			return nil
		})

	case "demux":
		fs := flag.NewFlagSet("demux", flag.ExitOnError)
		in := fs.String("i", "-", "input stream ('-' for stdin)")
		blOut := fs.String("bl", "BL.hevc", "base-layer output")
		elOut := fs.String("el", "EL.hevc", "enhancement-layer output")
		mode := fs.String("mode", "copy", "processing mode")
		fs.Parse(args)

		opts := base
		var err error
		if opts.Mode, err = parseMode(*mode); err != nil {
			return err
		}

		data, err := readInput(*in)
		if err != nil {
			return err
		}
		return withOutput(*blOut, func(bl io.Writer) error {
			return withOutput(*elOut, func(el io.Writer) error {
				res, err := stream.Demux(ctx, data, bl, el, opts)
				if err != nil {
					return err
				}
				reportWarnings(res)
				return nil
			})
		})

	case "inject":
		fs := flag.NewFlagSet("inject", flag.ExitOnError)
		blIn := fs.String("bl", "-", "base-layer input ('-' for stdin)")
		rpuIn := fs.String("rpu", "", "standalone RPU input")
		out := fs.String("o", "-", "output stream ('-' for stdout)")
		fs.Parse(args)

		blData, err := readInput(*blIn)
		if err != nil {
			return err
		}
		rpuData, err := readInput(*rpuIn)
		if err != nil {
			return err
		}
		return withOutput(*out, func(w io.Writer) error {
			res, err := stream.Inject(ctx, blData, rpuData, w, base)
			if err != nil {
				return err
			}
			reportWarnings(res)
			return nil
		})

	case "info":
		fs := flag.NewFlagSet("info", flag.ExitOnError)
		in := fs.String("i", "-", "input stream ('-' for stdin)")
		frame := fs.Int("frame", 0, "frame index")
		fs.Parse(args)

		data, err := readInput(*in)
		if err != nil {
			return err
		}
		summary, err := stream.Info(data, *frame, base)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)

	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseMode(s string) (stream.Mode, error) {
	switch s {
	case "copy":
		return stream.ModeCopy, nil
	case "parse-and-rewrite":
		return stream.ModeRewrite, nil
	case "mel-compatible":
		return stream.ModeMEL, nil
	case "profile-81-compatible":
		return stream.ModeProfile81, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func readInput(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("missing input path")
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// withOutput runs fn against the output sink. Files are written through
// an atomic temp-and-rename sink so a failed run leaves no partial
// output; stdout is used directly.
func withOutput(path string, fn func(io.Writer) error) error {
	if path == "-" {
		return fn(os.Stdout)
	}
	sink, err := stream.CreateSink(path)
	if err != nil {
		return err
	}
	defer sink.Close()
	if err := fn(sink); err != nil {
		return err
	}
	return sink.Commit()
}

func reportWarnings(res *stream.Result) {
	for _, w := range res.Warnings {
		slog.Warn("picture warning", "frame", w.Frame, "error", w.Err)
	}
}

// loadEdits reads the ordered JSON edit list consumed by the converter.
// Entries without start/end apply to every frame.
func loadEdits(path string) ([]rpu.Edit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg struct {
		Edits []struct {
			Field string `json:"field"`
			Start *int   `json:"start"`
			End   *int   `json:"end"`
			Value int64  `json:"value"`
		} `json:"edits"`
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing edit config: %w", err)
	}

	edits := make([]rpu.Edit, 0, len(cfg.Edits))
	for _, e := range cfg.Edits {
		edit := rpu.Edit{Field: e.Field, Value: e.Value}
		if e.Start == nil && e.End == nil {
			edit.Range.All = true
		} else {
			if e.Start != nil {
				edit.Range.Start = *e.Start
			}
			edit.Range.End = int(^uint(0) >> 1)
			if e.End != nil {
				edit.Range.End = *e.End
			}
		}
		edits = append(edits, edit)
	}
	return edits, nil
}
