package stream

import (
	"context"
	"fmt"
	"io"

	"github.com/hevctools/dovi/nal"
)

// Inject walks the base stream's access units and inserts one RPU NAL
// unit immediately before the first slice NAL unit of each access unit,
// in picture order. The rpus input is a standalone start-code-delimited
// RPU sequence as produced by Extract. The operation is all-or-nothing:
// if the RPU count does not equal the access-unit count it fails with
// ErrCountMismatch before anything is written.
func Inject(ctx context.Context, base, rpus []byte, out io.Writer, opts Options) (*Result, error) {
	log := opts.logger().With("component", "inject")

	baseUnits := nal.Parse(base)

	// Standalone RPU units carry no NAL header; each unit's data is the
	// payload itself, starting at the rpu_nal_prefix byte.
	var payloads [][]byte
	for _, u := range nal.Parse(rpus) {
		payloads = append(payloads, u.Data)
	}

	pictures := nal.AccessUnitCount(baseUnits)
	if len(payloads) != pictures {
		return nil, fmt.Errorf("%w: %d RPUs, %d access units", ErrCountMismatch, len(payloads), pictures)
	}

	outs, warns, err := processAll(ctx, payloads, opts)
	if err != nil {
		return nil, err
	}

	// The RPU NAL header for unspecified type 62.
	rpuHeader := []byte{0x7C, 0x01}

	pic := 0
	for _, u := range baseUnits {
		if u.FirstSliceInPic() {
			if _, err := out.Write(nal.StartCode(4)); err != nil {
				return nil, err
			}
			if _, err := out.Write(rpuHeader); err != nil {
				return nil, err
			}
			if _, err := out.Write(outs[pic]); err != nil {
				return nil, err
			}
			pic++
		}
		if _, err := out.Write(nal.StartCode(u.StartCodeLen)); err != nil {
			return nil, err
		}
		if _, err := out.Write(u.Data); err != nil {
			return nil, err
		}
	}

	log.Info("injected RPUs", "pictures", pic, "base_units", len(baseUnits), "warnings", len(warns))
	return &Result{Pictures: pic, Warnings: warns}, nil
}
