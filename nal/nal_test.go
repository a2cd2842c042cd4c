package nal

import (
	"bytes"
	"testing"
)

// Header bytes for the unit types the scanner cares about: an HEVC NAL
// header is forbidden(1) | type(6) | layerID(6) | tid+1(3).
func header(nalType byte) []byte {
	return []byte{nalType << 1, 0x01}
}

func TestParseStartCodes(t *testing.T) {
	t.Parallel()
	var stream []byte
	stream = append(stream, 0, 0, 0, 1)
	stream = append(stream, header(TypeAUD)...)
	stream = append(stream, 0x10)
	stream = append(stream, 0, 0, 1)
	stream = append(stream, header(TypeSPS)...)
	stream = append(stream, 0xAA, 0xBB)
	stream = append(stream, 0, 0, 0, 1)
	stream = append(stream, header(19)...) // IDR_W_RADL
	stream = append(stream, 0x80, 0x55)

	units := Parse(stream)
	if len(units) != 3 {
		t.Fatalf("Parse returned %d units, want 3", len(units))
	}

	if units[0].Type != TypeAUD || units[0].StartCodeLen != 4 {
		t.Errorf("unit 0 = type %d sc %d, want AUD with 4-byte start code", units[0].Type, units[0].StartCodeLen)
	}
	if units[1].Type != TypeSPS || units[1].StartCodeLen != 3 {
		t.Errorf("unit 1 = type %d sc %d, want SPS with 3-byte start code", units[1].Type, units[1].StartCodeLen)
	}
	if units[2].Type != 19 {
		t.Errorf("unit 2 type = %d, want 19", units[2].Type)
	}
	if !bytes.Equal(units[2].Data, append(header(19), 0x80, 0x55)) {
		t.Errorf("unit 2 data = % 02X", units[2].Data)
	}
}

func TestParseDegenerate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"empty", nil, 0},
		{"no start code", []byte{0x26, 0x01, 0x80, 0x42}, 0},
		{"start code only", []byte{0, 0, 0, 1}, 0},
		{"one header byte", []byte{0, 0, 1, 0x26}, 0},
		{"bare header", []byte{0, 0, 1, 0x26, 0x01}, 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Parse(tt.data); len(got) != tt.want {
				t.Errorf("Parse returned %d units, want %d", len(got), tt.want)
			}
		})
	}
}

func TestClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		nalType byte
		want    Class
	}{
		{0, ClassSlice},
		{19, ClassSlice},
		{31, ClassSlice},
		{TypeVPS, ClassParamSet},
		{TypeSPS, ClassParamSet},
		{TypePPS, ClassParamSet},
		{TypeAUD, ClassOther},
		{39, ClassOther}, // SEI
		{TypeUnspecRPU, ClassRPU},
		{TypeUnspecEL, ClassEL},
	}
	for _, tt := range tests {
		u := Unit{Type: tt.nalType}
		if got := u.Class(); got != tt.want {
			t.Errorf("type %d class = %v, want %v", tt.nalType, got, tt.want)
		}
	}
}

func TestFirstSliceInPic(t *testing.T) {
	t.Parallel()
	first := Unit{Type: 19, Data: []byte{0x26, 0x01, 0x80}}
	if !first.FirstSliceInPic() {
		t.Error("slice with flag set not detected")
	}
	cont := Unit{Type: 19, Data: []byte{0x26, 0x01, 0x40}}
	if cont.FirstSliceInPic() {
		t.Error("continuation slice misdetected as picture start")
	}
	nonVCL := Unit{Type: TypeUnspecRPU, Data: []byte{0x7C, 0x01, 0x80}}
	if nonVCL.FirstSliceInPic() {
		t.Error("non-VCL unit misdetected as picture start")
	}
}

func TestAccessUnitCount(t *testing.T) {
	t.Parallel()
	units := []Unit{
		{Type: TypeAUD, Data: []byte{0x46, 0x01, 0x10}},
		{Type: 19, Data: []byte{0x26, 0x01, 0x80}},
		{Type: 19, Data: []byte{0x26, 0x01, 0x00}},
		{Type: TypeUnspecRPU, Data: []byte{0x7C, 0x01, 0x19}},
		{Type: 1, Data: []byte{0x02, 0x01, 0x80}},
	}
	if got := AccessUnitCount(units); got != 2 {
		t.Errorf("AccessUnitCount = %d, want 2", got)
	}
}

func TestLayerID(t *testing.T) {
	t.Parallel()
	// layer ID 1: low bit of byte 0 clear, high bits of byte 1 = 00001.
	stream := []byte{0, 0, 0, 1, 0x26, 0x09, 0x80}
	units := Parse(stream)
	if len(units) != 1 {
		t.Fatalf("Parse returned %d units, want 1", len(units))
	}
	if units[0].LayerID != 1 {
		t.Errorf("LayerID = %d, want 1", units[0].LayerID)
	}
}
