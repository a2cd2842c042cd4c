// Package nal scans Annex B byte streams for HEVC NAL units and
// classifies them for Dolby Vision processing. Units are transient views
// into the source buffer; nothing is copied until a processor re-emits
// them.
package nal

// HEVC NAL unit type constants per ITU-T H.265 Table 7-1, plus the two
// unspecified types Dolby Vision registers for metadata and wrapped
// enhancement-layer data.
const (
	TypeVPS = 32
	TypeSPS = 33
	TypePPS = 34
	TypeAUD = 35

	// TypeUnspecRPU carries a Dolby Vision RPU payload.
	TypeUnspecRPU = 62
	// TypeUnspecEL wraps an enhancement-layer NAL unit behind a 2-byte
	// pseudo-header in single-track dual-layer streams.
	TypeUnspecEL = 63
)

// ELWrapperLen is the length of the pseudo NAL header (0x7E 0x01) that
// prefixes wrapped enhancement-layer units.
const ELWrapperLen = 2

// Class groups NAL types by their role in Dolby Vision stream processing.
type Class int

const (
	ClassOther Class = iota
	ClassSlice
	ClassParamSet
	ClassRPU
	ClassEL
)

func (c Class) String() string {
	switch c {
	case ClassSlice:
		return "slice"
	case ClassParamSet:
		return "paramset"
	case ClassRPU:
		return "rpu"
	case ClassEL:
		return "el"
	default:
		return "other"
	}
}

// Unit is one NAL unit view: the raw data including the 2-byte NAL
// header, without the start code.
type Unit struct {
	Type         byte
	LayerID      byte
	StartCodeLen int // 3 or 4
	Data         []byte
}

// Class returns the unit's processing class.
func (u Unit) Class() Class {
	switch {
	case u.Type < 32:
		return ClassSlice
	case u.Type == TypeVPS, u.Type == TypeSPS, u.Type == TypePPS:
		return ClassParamSet
	case u.Type == TypeUnspecRPU:
		return ClassRPU
	case u.Type == TypeUnspecEL:
		return ClassEL
	default:
		return ClassOther
	}
}

// FirstSliceInPic reports whether the unit is a VCL slice with
// first_slice_segment_in_pic_flag set, i.e. it opens a new access unit's
// slice data.
func (u Unit) FirstSliceInPic() bool {
	return u.Type < 32 && len(u.Data) >= 3 && u.Data[2]&0x80 != 0
}

// Type extracts the NAL unit type from the first byte of an HEVC 2-byte
// NAL header: forbidden(1) | type(6) | layerID_high(1).
func headerType(firstByte byte) byte {
	return (firstByte >> 1) & 0x3F
}

// Parse scans an Annex B byte stream and returns its NAL units in stream
// order. Both 3-byte (0x000001) and 4-byte (0x00000001) start codes are
// recognized. A truncated final unit is still yielded, bounded by the end
// of the buffer. A stream with no start code yields no units; absence of
// data is reported upstream, not here.
func Parse(data []byte) []Unit {
	n := len(data)
	if n < 4 {
		return nil
	}

	type scPos struct {
		scStart   int
		dataStart int
	}

	var positions []scPos
	i := 0
	for i < n-2 {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				positions = append(positions, scPos{scStart: i, dataStart: i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []Unit
	for idx, pos := range positions {
		if pos.dataStart >= n {
			continue
		}
		end := n
		if idx+1 < len(positions) {
			end = positions[idx+1].scStart
		}
		if pos.dataStart >= end {
			continue
		}

		nalData := data[pos.dataStart:end]
		if len(nalData) < 2 {
			continue
		}

		units = append(units, Unit{
			Type:         headerType(nalData[0]),
			LayerID:      (nalData[0]&1)<<5 | nalData[1]>>3,
			StartCodeLen: pos.dataStart - pos.scStart,
			Data:         nalData,
		})
	}

	return units
}

// AccessUnitCount returns the number of coded pictures in the unit
// sequence, counting slices that open a new picture.
func AccessUnitCount(units []Unit) int {
	count := 0
	for _, u := range units {
		if u.FirstSliceInPic() {
			count++
		}
	}
	return count
}

// StartCode returns the start code bytes for the given length.
func StartCode(n int) []byte {
	if n == 3 {
		return []byte{0, 0, 1}
	}
	return []byte{0, 0, 0, 1}
}
