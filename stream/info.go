package stream

import (
	"errors"
	"fmt"

	"github.com/hevctools/dovi/nal"
	"github.com/hevctools/dovi/rpu"
)

// Info parses the RPU for the given frame index and returns its
// diagnostic summary. Read-only; the stream is never modified.
func Info(input []byte, frame int, opts Options) (*rpu.Summary, error) {
	if frame < 0 {
		return nil, fmt.Errorf("stream: negative frame index %d", frame)
	}

	seen := 0
	for _, u := range nal.Parse(input) {
		if u.Class() != nal.ClassRPU || len(u.Data) <= nal.ELWrapperLen {
			continue
		}
		if seen != frame {
			seen++
			continue
		}

		rec, err := rpu.Parse(u.Data[nal.ELWrapperLen:])
		if err != nil && !(errors.Is(err, rpu.ErrCRCMismatch) && !opts.StrictCRC) {
			return nil, &PictureError{Frame: frame, Err: err}
		}
		s := rec.Summarize(frame)
		return &s, nil
	}
	return nil, fmt.Errorf("stream: no RPU for frame %d (%d found)", frame, seen)
}
