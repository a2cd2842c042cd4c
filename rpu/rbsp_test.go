package rpu

import (
	"bytes"
	"testing"
)

func TestEmulationPrevention(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		raw     []byte
		escaped []byte
	}{
		{
			name:    "no escaping needed",
			raw:     []byte{0x19, 0x01, 0x02, 0x80},
			escaped: []byte{0x19, 0x01, 0x02, 0x80},
		},
		{
			name:    "two zeros before low byte",
			raw:     []byte{0x19, 0x00, 0x00, 0x01, 0x80},
			escaped: []byte{0x19, 0x00, 0x00, 0x03, 0x01, 0x80},
		},
		{
			name:    "two zeros before three",
			raw:     []byte{0x19, 0x00, 0x00, 0x03, 0x80},
			escaped: []byte{0x19, 0x00, 0x00, 0x03, 0x03, 0x80},
		},
		{
			name:    "two zeros before high byte stay bare",
			raw:     []byte{0x19, 0x00, 0x00, 0x80},
			escaped: []byte{0x19, 0x00, 0x00, 0x80},
		},
		{
			name:    "trailing zero run",
			raw:     []byte{0x19, 0x00, 0x00},
			escaped: []byte{0x19, 0x00, 0x00, 0x03},
		},
		{
			name:    "back to back runs",
			raw:     []byte{0x00, 0x00, 0x00, 0x00, 0x01},
			escaped: []byte{0x00, 0x00, 0x03, 0x00, 0x00, 0x03, 0x01},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := insertEmulationPrevention(tt.raw); !bytes.Equal(got, tt.escaped) {
				t.Errorf("insert(% 02X) = % 02X, want % 02X", tt.raw, got, tt.escaped)
			}
			if got := removeEmulationPrevention(tt.escaped); !bytes.Equal(got, tt.raw) {
				t.Errorf("remove(% 02X) = % 02X, want % 02X", tt.escaped, got, tt.raw)
			}
		})
	}
}
