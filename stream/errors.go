package stream

import (
	"errors"
	"fmt"
)

// ErrCountMismatch is returned by Inject when the number of standalone
// RPUs does not equal the number of access units in the base stream.
var ErrCountMismatch = errors.New("stream: RPU count does not match access unit count")

// PictureError records a per-picture failure with its frame index.
// Collected errors do not abort whole-stream operations unless the
// operation is all-or-nothing.
type PictureError struct {
	Frame int
	Err   error
}

func (e *PictureError) Error() string {
	return fmt.Sprintf("picture %d: %v", e.Frame, e.Err)
}

func (e *PictureError) Unwrap() error { return e.Err }
