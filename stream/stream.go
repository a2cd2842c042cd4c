// Package stream implements the NAL-level Dolby Vision processors:
// extracting RPU metadata, rewriting it in place, splitting dual-layer
// streams, and injecting standalone RPUs back into a base layer. The
// processors walk Annex B input via the nal package and delegate
// per-picture work to the rpu codec, optionally across a worker pool.
package stream

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/hevctools/dovi/rpu"
)

// Mode selects the per-picture RPU transformation.
type Mode int

const (
	// ModeCopy parses for validation but passes the original RPU bytes
	// through untouched.
	ModeCopy Mode = iota
	// ModeRewrite forces a full reserialize even when nothing changed,
	// useful for validating the round-trip.
	ModeRewrite
	// ModeMEL strips FEL-only NLQ data, leaving a MEL-compatible stream.
	ModeMEL
	// ModeProfile81 rewrites each RPU as single-layer profile 8.1.
	ModeProfile81
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeRewrite:
		return "parse-and-rewrite"
	case ModeMEL:
		return "mel-compatible"
	case ModeProfile81:
		return "profile-81-compatible"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Options configures a stream processor run.
type Options struct {
	Mode Mode

	// Crop forces zero active-area offsets on every picture.
	Crop bool

	// DropEL discards wrapped enhancement-layer NAL units on Convert.
	DropEL bool

	// StrictCRC turns checksum mismatches from warnings into failures.
	StrictCRC bool

	// Workers bounds the per-picture worker pool; zero or negative means
	// one worker per CPU.
	Workers int

	// Edits are applied to each picture whose frame index their range
	// includes, in list order.
	Edits []rpu.Edit

	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// rewrites reports whether the options require serializing parsed records
// instead of passing original bytes through.
func (o Options) rewrites() bool {
	return o.Mode != ModeCopy || o.Crop || len(o.Edits) > 0
}

// Result reports what a processor run did.
type Result struct {
	// Pictures is the number of RPU-bearing pictures processed.
	Pictures int
	// Warnings holds the non-fatal per-picture errors, in frame order.
	Warnings []*PictureError
}
