package stream

import (
	"context"
	"io"

	"github.com/hevctools/dovi/nal"
)

// Demux partitions the NAL units of a dual-layer stream into base-layer
// and enhancement-layer substreams, preserving relative order within
// each. RPU units and wrapped enhancement-layer units go to enh; the
// wrapper pseudo-header of enhancement units is stripped so the EL
// substream is a plain HEVC elementary stream. RPUs are converted per the
// configured mode before being written.
func Demux(ctx context.Context, input []byte, base, enh io.Writer, opts Options) (*Result, error) {
	log := opts.logger().With("component", "demux")

	units := nal.Parse(input)

	var payloads [][]byte
	rpuIndex := make(map[int]int)
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

	baseCount, enhCount := 0, 0
	for i, u := range units {
		sc := nal.StartCode(u.StartCodeLen)
		switch u.Class() {
		case nal.ClassRPU:
			enhCount++
			if _, err := enh.Write(sc); err != nil {
				return nil, err
			}
			if pic, ok := rpuIndex[i]; ok {
				if _, err := enh.Write(u.Data[:nal.ELWrapperLen]); err != nil {
					return nil, err
				}
				if _, err := enh.Write(outs[pic]); err != nil {
					return nil, err
				}
			} else if _, err := enh.Write(u.Data); err != nil {
				return nil, err
			}
		case nal.ClassEL:
			enhCount++
			if _, err := enh.Write(sc); err != nil {
				return nil, err
			}
			if len(u.Data) > nal.ELWrapperLen {
				if _, err := enh.Write(u.Data[nal.ELWrapperLen:]); err != nil {
					return nil, err
				}
			}
		default:
			baseCount++
			if _, err := base.Write(sc); err != nil {
				return nil, err
			}
			if _, err := base.Write(u.Data); err != nil {
				return nil, err
			}
		}
	}

	log.Info("demuxed stream",
		"nal_units", len(units),
		"base_units", baseCount,
		"enhancement_units", enhCount,
		"pictures", len(outs),
	)
	return &Result{Pictures: len(outs), Warnings: warns}, nil
}
