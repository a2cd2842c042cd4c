package stream

import (
	"context"
	"io"

	"github.com/hevctools/dovi/nal"
)

// Convert rewrites the stream in place: non-RPU units are re-emitted
// untouched, RPU units are replaced by their parsed, converted, and
// reserialized form. With DropEL set, wrapped enhancement-layer units are
// discarded entirely (the single-layer rewrite).
func Convert(ctx context.Context, input []byte, out io.Writer, opts Options) (*Result, error) {
	log := opts.logger().With("component", "convert", "mode", opts.Mode.String())

	units := nal.Parse(input)

	var payloads [][]byte
	rpuIndex := make(map[int]int) // unit index -> picture index
	for i, u := range units {
		if u.Class() == nal.ClassRPU && len(u.Data) > nal.ELWrapperLen {
			rpuIndex[i] = len(payloads)
			payloads = append(payloads, u.Data[nal.ELWrapperLen:])
		}
	}

	outs, warns, err := processAll(ctx, payloads, opts)
	if err != nil {
		return nil, err
	}

	dropped := 0
	for i, u := range units {
		if opts.DropEL && u.Class() == nal.ClassEL {
			dropped++
			continue
		}
		if _, err := out.Write(nal.StartCode(u.StartCodeLen)); err != nil {
			return nil, err
		}
		if pic, ok := rpuIndex[i]; ok {
			// Keep the original 2-byte NAL header, swap the payload.
			if _, err := out.Write(u.Data[:nal.ELWrapperLen]); err != nil {
				return nil, err
			}
			if _, err := out.Write(outs[pic]); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := out.Write(u.Data); err != nil {
			return nil, err
		}
	}

	log.Info("converted stream",
		"nal_units", len(units),
		"pictures", len(outs),
		"el_dropped", dropped,
		"warnings", len(warns),
	)
	return &Result{Pictures: len(outs), Warnings: warns}, nil
}
