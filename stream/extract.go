package stream

import (
	"context"
	"io"

	"github.com/hevctools/dovi/nal"
)

// Extract scans the input stream, parses every RPU NAL unit found,
// applies the configured mode, and writes the serialized RPUs to out as a
// start-code-delimited standalone sequence, in picture order. Each unit
// is written without its 2-byte NAL header, starting at the
// rpu_nal_prefix byte (the x265 convention). A stream with no RPUs
// produces empty output and completes without error.
func Extract(ctx context.Context, input []byte, out io.Writer, opts Options) (*Result, error) {
	log := opts.logger().With("component", "extract")

	units := nal.Parse(input)
	var payloads [][]byte
	for _, u := range units {
		if u.Class() == nal.ClassRPU && len(u.Data) > nal.ELWrapperLen {
			payloads = append(payloads, u.Data[nal.ELWrapperLen:])
		}
	}
	if len(payloads) == 0 {
		log.Info("no RPU NAL units found", "nal_units", len(units))
		return &Result{}, nil
	}

	outs, warns, err := processAll(ctx, payloads, opts)
	if err != nil {
		return nil, err
	}

	sc := nal.StartCode(4)
	for _, p := range outs {
		if _, err := out.Write(sc); err != nil {
			return nil, err
		}
		if _, err := out.Write(p); err != nil {
			return nil, err
		}
	}

	log.Info("extracted RPUs", "pictures", len(outs), "warnings", len(warns))
	return &Result{Pictures: len(outs), Warnings: warns}, nil
}
