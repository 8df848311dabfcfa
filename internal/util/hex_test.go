package util

import (
	"testing"
)

func TestBytesToHex(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{"simple", []byte{0x01, 0x02}, "01 02"},
		{"single", []byte{0xff}, "ff"},
		{"empty", nil, ""},
		{"zero padding", []byte{0x00, 0x0a}, "00 0a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BytesToHex(tt.input); got != tt.want {
				t.Errorf("BytesToHex(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
