// Package rpu implements parsing and serialization of Dolby Vision
// Reference Processing Unit (RPU) metadata as carried in HEVC NAL units,
// per ETSI GS CCM 001. A parsed RPU is a lossless decomposition of the
// payload: every unmodeled bit (unknown extension blocks, padding,
// alignment) is retained verbatim so that serializing an unmodified
// record reproduces the input byte-exactly, CRC32 trailer included.
package rpu

import (
	"encoding/binary"
	"fmt"
)

// NALPrefix is the rpu_nal_prefix byte that opens every RPU payload.
const NALPrefix = 0x19

// Sanity ceilings for self-describing count fields. A value beyond these
// means the reader has desynchronized; continuing would cascade into
// unbounded reads.
const (
	maxCoefficientLog2Denom = 23
	maxPivots               = 16
	maxExtBlocks            = 254
	maxExtBlockLength       = 1024 // bytes
	maxPolyOrderMinus1      = 7
	maxMMROrderMinus1       = 2
)

// RPU is the parsed metadata for one coded picture.
type RPU struct {
	RPUType   uint8
	RPUFormat uint16

	VDRRPUProfile uint8
	VDRRPULevel   uint8

	SeqInfoPresent                 bool
	ChromaResamplingExplicitFilter bool
	CoefficientDataType            uint8
	CoefficientLog2Denom           uint64
	VDRRPUNormalizedIDC            uint8
	BLVideoFullRange               bool
	BLBitDepthMinus8               uint64
	ELBitDepthMinus8               uint64
	VDRBitDepthMinus8              uint64
	SpatialResamplingFilter        bool
	Reserved3Bits                  uint8
	ELSpatialResamplingFilter      bool
	DisableResidual                bool

	DMMetadataPresent bool
	UsePrevRPU        bool
	PrevRPUID         uint64

	RPUID                  uint64
	MappingColorSpace      uint64
	MappingChromaFormatIDC uint64
	NumPivotsMinus2        [3]uint64
	PredPivotValue         [3][]uint64
	NLQMethodIDC           uint8
	NLQNumPivotsMinus2     uint8
	NumXPartitionsMinus1   uint64
	NumYPartitionsMinus1   uint64

	Mapping *MappingData
	NLQ     *NLQData
	DM      *DMData

	// CRC32 is the trailer checksum as stored in the payload. It is
	// recomputed on serialization.
	CRC32 uint32

	// opaqueBody holds the body bits of an RPU whose rpu_type this
	// package does not model, round-tripped verbatim.
	opaqueBody bitString

	// alignBits preserves the bit padding between the last payload field
	// and the byte-aligned CRC32 trailer.
	alignBits bitString
}

// Parse decodes one RPU NAL payload. The payload must start at the
// rpu_nal_prefix byte (any NAL header bytes already stripped) and still
// carries emulation prevention.
//
// On a checksum failure the decoded record is returned alongside an error
// wrapping ErrCRCMismatch; the record is usable best-effort.
func Parse(payload []byte) (*RPU, error) {
	data := removeEmulationPrevention(payload)

	// prefix + CRC32 + final rbsp byte is the minimum framing.
	if len(data) < 6 {
		return nil, ErrTruncatedPayload
	}
	if data[len(data)-1] != 0x80 {
		return nil, fmt.Errorf("%w: missing rbsp trailer byte", ErrTruncatedPayload)
	}

	br := newBitReader(data)
	r := &RPU{}
	if err := r.parseHeader(br); err != nil {
		return nil, err
	}

	bodyEnd := (len(data) - 5) * 8 // up to the CRC32 field

	if r.RPUType == 2 {
		if !r.UsePrevRPU {
			m, err := parseMapping(br, r)
			if err != nil {
				return nil, err
			}
			r.Mapping = m

			if r.RPUFormat&0x700 == 0 && !r.DisableResidual {
				nlq, err := parseNLQ(br, r)
				if err != nil {
					return nil, err
				}
				r.NLQ = nlq
			}
		}
		if r.DMMetadataPresent {
			dm, err := parseDM(br)
			if err != nil {
				return nil, err
			}
			r.DM = dm
		}
	} else {
		// Unmodeled rpu_type: keep the body opaque.
		n := bodyEnd - br.bitsRead()
		if n < 0 {
			return nil, ErrTruncatedPayload
		}
		body, err := readBitString(br, n)
		if err != nil {
			return nil, err
		}
		r.opaqueBody = body
	}

	padCount := bodyEnd - br.bitsRead()
	if padCount < 0 || padCount >= 8 {
		return nil, fmt.Errorf("%w: payload overruns CRC32 trailer", ErrTruncatedPayload)
	}
	pad, err := readBitString(br, padCount)
	if err != nil {
		return nil, err
	}
	r.alignBits = pad

	stored, err := br.readBits(32)
	if err != nil {
		return nil, err
	}
	r.CRC32 = uint32(stored)

	computed := crc32MPEG2(data[1 : len(data)-5])
	if computed != r.CRC32 {
		return r, fmt.Errorf("%w: computed 0x%08X, stored 0x%08X", ErrCRCMismatch, computed, r.CRC32)
	}
	return r, nil
}

// MarshalBinary serializes the record back to an RPU NAL payload,
// recomputing the CRC32 trailer and reapplying emulation prevention.
func (r *RPU) MarshalBinary() ([]byte, error) {
	bw := newBitWriter()
	if err := r.writeHeader(bw); err != nil {
		return nil, err
	}

	if r.RPUType == 2 {
		if !r.UsePrevRPU {
			if r.Mapping == nil {
				return nil, fmt.Errorf("rpu: record has no mapping data")
			}
			if err := r.Mapping.write(bw, r); err != nil {
				return nil, err
			}
			if r.RPUFormat&0x700 == 0 && !r.DisableResidual {
				if r.NLQ == nil {
					return nil, fmt.Errorf("rpu: residual enabled but record has no NLQ data")
				}
				if err := r.NLQ.write(bw, r); err != nil {
					return nil, err
				}
			}
		}
		if r.DMMetadataPresent {
			if r.DM == nil {
				return nil, fmt.Errorf("rpu: DM metadata flagged present but missing")
			}
			if err := r.DM.write(bw); err != nil {
				return nil, err
			}
		}
	} else {
		r.opaqueBody.write(bw)
	}

	// Byte-align before the trailer, preserving the original padding when
	// the body layout is unchanged.
	pad := (8 - bw.bitLen()%8) % 8
	if pad == r.alignBits.n {
		r.alignBits.write(bw)
	} else {
		bw.writeBits(0, pad)
	}

	body := bw.bytes()
	crc := crc32MPEG2(body[1:])
	r.CRC32 = crc

	out := make([]byte, 0, len(body)+5)
	out = append(out, body...)
	out = binary.BigEndian.AppendUint32(out, crc)
	out = append(out, 0x80)

	return insertEmulationPrevention(out), nil
}

func (r *RPU) parseHeader(br *bitReader) error {
	prefix, err := br.readBits(8)
	if err != nil {
		return err
	}
	if prefix != NALPrefix {
		return fmt.Errorf("%w: rpu_nal_prefix 0x%02X", ErrMalformedCode, prefix)
	}

	v, err := br.readBits(6)
	if err != nil {
		return err
	}
	r.RPUType = uint8(v)
	v, err = br.readBits(11)
	if err != nil {
		return err
	}
	r.RPUFormat = uint16(v)

	if r.RPUType != 2 {
		return nil
	}

	if v, err = br.readBits(4); err != nil {
		return err
	}
	r.VDRRPUProfile = uint8(v)
	if v, err = br.readBits(4); err != nil {
		return err
	}
	r.VDRRPULevel = uint8(v)
	if r.SeqInfoPresent, err = br.readFlag(); err != nil {
		return err
	}

	if r.SeqInfoPresent {
		if r.ChromaResamplingExplicitFilter, err = br.readFlag(); err != nil {
			return err
		}
		if v, err = br.readBits(2); err != nil {
			return err
		}
		r.CoefficientDataType = uint8(v)

		if r.CoefficientDataType == 0 {
			if r.CoefficientLog2Denom, err = br.readUE(); err != nil {
				return err
			}
			if r.CoefficientLog2Denom > maxCoefficientLog2Denom {
				return fmt.Errorf("%w: coefficient_log2_denom %d", ErrMalformedCode, r.CoefficientLog2Denom)
			}
		}

		if v, err = br.readBits(2); err != nil {
			return err
		}
		r.VDRRPUNormalizedIDC = uint8(v)
		if r.BLVideoFullRange, err = br.readFlag(); err != nil {
			return err
		}

		if r.RPUFormat&0x700 == 0 {
			if r.BLBitDepthMinus8, err = br.readUE(); err != nil {
				return err
			}
			if r.ELBitDepthMinus8, err = br.readUE(); err != nil {
				return err
			}
			if r.VDRBitDepthMinus8, err = br.readUE(); err != nil {
				return err
			}
			if r.BLBitDepthMinus8 > 8 || r.ELBitDepthMinus8 > 8 || r.VDRBitDepthMinus8 > 8 {
				return fmt.Errorf("%w: bit depth out of range", ErrMalformedCode)
			}
			if r.SpatialResamplingFilter, err = br.readFlag(); err != nil {
				return err
			}
			if v, err = br.readBits(3); err != nil {
				return err
			}
			r.Reserved3Bits = uint8(v)
			if r.ELSpatialResamplingFilter, err = br.readFlag(); err != nil {
				return err
			}
			if r.DisableResidual, err = br.readFlag(); err != nil {
				return err
			}
		}
	}

	if r.DMMetadataPresent, err = br.readFlag(); err != nil {
		return err
	}
	if r.UsePrevRPU, err = br.readFlag(); err != nil {
		return err
	}

	if r.UsePrevRPU {
		if r.PrevRPUID, err = br.readUE(); err != nil {
			return err
		}
		return nil
	}

	if r.RPUID, err = br.readUE(); err != nil {
		return err
	}
	if r.MappingColorSpace, err = br.readUE(); err != nil {
		return err
	}
	if r.MappingChromaFormatIDC, err = br.readUE(); err != nil {
		return err
	}

	for cmp := 0; cmp < 3; cmp++ {
		if r.NumPivotsMinus2[cmp], err = br.readUE(); err != nil {
			return err
		}
		if r.NumPivotsMinus2[cmp]+2 > maxPivots {
			return fmt.Errorf("%w: %d pivots for component %d", ErrMalformedCode, r.NumPivotsMinus2[cmp]+2, cmp)
		}

		count := int(r.NumPivotsMinus2[cmp]) + 2
		r.PredPivotValue[cmp] = make([]uint64, count)
		for i := 0; i < count; i++ {
			if r.PredPivotValue[cmp][i], err = br.readBits(int(r.BLBitDepthMinus8) + 8); err != nil {
				return err
			}
		}
	}

	if r.RPUFormat&0x700 == 0 && !r.DisableResidual {
		if v, err = br.readBits(3); err != nil {
			return err
		}
		r.NLQMethodIDC = uint8(v)
		r.NLQNumPivotsMinus2 = 0
	}

	if r.NumXPartitionsMinus1, err = br.readUE(); err != nil {
		return err
	}
	if r.NumYPartitionsMinus1, err = br.readUE(); err != nil {
		return err
	}

	return nil
}

func (r *RPU) writeHeader(bw *bitWriter) error {
	bw.writeBits(NALPrefix, 8)
	bw.writeBits(uint64(r.RPUType), 6)
	bw.writeBits(uint64(r.RPUFormat), 11)

	if r.RPUType != 2 {
		return nil
	}

	bw.writeBits(uint64(r.VDRRPUProfile), 4)
	bw.writeBits(uint64(r.VDRRPULevel), 4)
	bw.writeFlag(r.SeqInfoPresent)

	if r.SeqInfoPresent {
		bw.writeFlag(r.ChromaResamplingExplicitFilter)
		bw.writeBits(uint64(r.CoefficientDataType), 2)
		if r.CoefficientDataType == 0 {
			bw.writeUE(r.CoefficientLog2Denom)
		}
		bw.writeBits(uint64(r.VDRRPUNormalizedIDC), 2)
		bw.writeFlag(r.BLVideoFullRange)

		if r.RPUFormat&0x700 == 0 {
			bw.writeUE(r.BLBitDepthMinus8)
			bw.writeUE(r.ELBitDepthMinus8)
			bw.writeUE(r.VDRBitDepthMinus8)
			bw.writeFlag(r.SpatialResamplingFilter)
			bw.writeBits(uint64(r.Reserved3Bits), 3)
			bw.writeFlag(r.ELSpatialResamplingFilter)
			bw.writeFlag(r.DisableResidual)
		}
	}

	bw.writeFlag(r.DMMetadataPresent)
	bw.writeFlag(r.UsePrevRPU)

	if r.UsePrevRPU {
		bw.writeUE(r.PrevRPUID)
		return nil
	}

	bw.writeUE(r.RPUID)
	bw.writeUE(r.MappingColorSpace)
	bw.writeUE(r.MappingChromaFormatIDC)

	for cmp := 0; cmp < 3; cmp++ {
		bw.writeUE(r.NumPivotsMinus2[cmp])
		count := int(r.NumPivotsMinus2[cmp]) + 2
		if len(r.PredPivotValue[cmp]) < count {
			return fmt.Errorf("rpu: component %d has %d pivot values, need %d", cmp, len(r.PredPivotValue[cmp]), count)
		}
		for i := 0; i < count; i++ {
			bw.writeBits(r.PredPivotValue[cmp][i], int(r.BLBitDepthMinus8)+8)
		}
	}

	if r.RPUFormat&0x700 == 0 && !r.DisableResidual {
		bw.writeBits(uint64(r.NLQMethodIDC), 3)
	}

	bw.writeUE(r.NumXPartitionsMinus1)
	bw.writeUE(r.NumYPartitionsMinus1)

	return nil
}

// coefficientLength returns the bit width of mapping and NLQ coefficient
// fields, which the header's coefficient_data_type selects.
func (r *RPU) coefficientLength() (int, error) {
	switch r.CoefficientDataType {
	case 0:
		return int(r.CoefficientLog2Denom), nil
	case 1:
		return 32, nil
	default:
		return 0, fmt.Errorf("%w: coefficient_data_type %d", ErrMalformedCode, r.CoefficientDataType)
	}
}
