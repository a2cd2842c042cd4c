package stream

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hevctools/dovi/rpu"
)

// convertPayload parses one RPU payload, applies the configured
// transformations, and returns the bytes to emit. Recoverable problems
// come back as a *PictureError with the original bytes passed through;
// only errors that invalidate the whole run (strict CRC, unserializable
// records, bad edit configs) are returned as err.
func convertPayload(payload []byte, frame int, opts Options) (out []byte, warn *PictureError, err error) {
	rec, perr := rpu.Parse(payload)
	if perr != nil {
		if !errors.Is(perr, rpu.ErrCRCMismatch) {
			// Malformed or truncated: fatal for this picture only.
			return payload, &PictureError{Frame: frame, Err: perr}, nil
		}
		if opts.StrictCRC {
			return nil, nil, &PictureError{Frame: frame, Err: perr}
		}
		warn = &PictureError{Frame: frame, Err: perr}
	}

	switch opts.Mode {
	case ModeMEL:
		if !rec.StripNLQ() && warn == nil {
			warn = &PictureError{Frame: frame, Err: fmt.Errorf("%w: no NLQ data to strip", rpu.ErrUnsupportedProfile)}
		}
	case ModeProfile81:
		rec.ToProfile81()
	}

	if opts.Crop {
		rec.SetActiveAreaOffsets(0, 0, 0, 0)
	}
	if len(opts.Edits) > 0 {
		if err := rec.ApplyEdits(frame, opts.Edits); err != nil {
			return nil, nil, err
		}
	}

	if !opts.rewrites() {
		return payload, warn, nil
	}

	out, merr := rec.MarshalBinary()
	if merr != nil {
		return nil, nil, &PictureError{Frame: frame, Err: merr}
	}
	return out, warn, nil
}

// processAll runs convertPayload over every payload, fanning the work out
// across the configured number of workers. Each task carries its frame
// index and writes into a preallocated slot, so output order equals
// picture order regardless of completion order.
func processAll(ctx context.Context, payloads [][]byte, opts Options) ([][]byte, []*PictureError, error) {
	out := make([][]byte, len(payloads))
	warns := make([]*PictureError, len(payloads))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for i, p := range payloads {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b, w, err := convertPayload(p, i, opts)
			if err != nil {
				return err
			}
			out[i] = b
			warns[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var collected []*PictureError
	for _, w := range warns {
		if w != nil {
			collected = append(collected, w)
		}
	}
	return out, collected, nil
}
