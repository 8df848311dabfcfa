package pci

import (
	"errors"
	"sort"
	"testing"
)

func TestParseAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Addr
		wantErr error
	}{
		{
			name:  "long form",
			input: "0000:03:00.0",
			want:  Addr{Domain: 0, Bus: 3, Device: 0, Function: 0},
		},
		{
			name:  "long form with domain",
			input: "0001:0a:1f.2",
			want:  Addr{Domain: 1, Bus: 0x0a, Device: 0x1f, Function: 2},
		},
		{
			name:  "short form",
			input: "03:00.0",
			want:  Addr{Domain: 0, Bus: 3, Device: 0, Function: 0},
		},
		{
			name:  "with whitespace",
			input: "  0000:03:00.0  ",
			want:  Addr{Domain: 0, Bus: 3, Device: 0, Function: 0},
		},
		{
			name:  "uppercase hex",
			input: "00:1F.7",
			want:  Addr{Bus: 0, Device: 0x1f, Function: 7},
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: ErrAddrEmpty,
		},
		{
			name:    "missing function separator",
			input:   "0000:03:00",
			wantErr: ErrAddrNoFunction,
		},
		{
			name:    "missing device separator",
			input:   "0300.0",
			wantErr: ErrAddrNoDevice,
		},
		{
			name:    "device out of range",
			input:   "00:20.0",
			wantErr: ErrDeviceOutOfRange,
		},
		{
			name:    "function out of range",
			input:   "00:1f.8",
			wantErr: ErrFunctionOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAddr(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseAddr(%q) error = %v, want kind %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddr(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAddr(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseAddrBadHex(t *testing.T) {
	for _, input := range []string{"zz:00.0", "00:zz.0", "00:00.z", "zzzz:00:00.0"} {
		if _, err := ParseAddr(input); err == nil {
			t.Errorf("ParseAddr(%q) expected hex segment error, got nil", input)
		}
	}
}

func TestAddrRoundTrip(t *testing.T) {
	addrs := []Addr{
		{},
		{Bus: 3},
		{Domain: 0, Bus: 0x1a, Device: 0x1f, Function: 7},
		{Domain: 0xffff, Bus: 0xff, Device: 0x1f, Function: 7},
		{Domain: 0x10, Bus: 1, Device: 2, Function: 3},
	}

	for _, a := range addrs {
		got, err := ParseAddr(a.String())
		if err != nil {
			t.Fatalf("parse(%q): %v", a.String(), err)
		}
		if got != a {
			t.Errorf("parse(format(%v)) = %v", a, got)
		}

		got, err = ParseAddr(a.Short())
		if err != nil {
			t.Fatalf("parse(%q): %v", a.Short(), err)
		}
		if got != a {
			t.Errorf("parse(short(%v)) = %v", a, got)
		}
	}
}

func TestAddrFormat(t *testing.T) {
	a := Addr{Domain: 0, Bus: 3, Device: 0, Function: 0}
	if got := a.String(); got != "0000:03:00.0" {
		t.Errorf("String() = %q, want %q", got, "0000:03:00.0")
	}
	if got := a.Short(); got != "03:00.0" {
		t.Errorf("Short() = %q, want %q", got, "03:00.0")
	}

	b := Addr{Domain: 1, Bus: 3, Device: 0, Function: 0}
	if got := b.Short(); got != "0001:03:00.0" {
		t.Errorf("Short() with domain = %q, want long form", got)
	}
}

func TestAddrOrdering(t *testing.T) {
	addrs := []Addr{
		{Domain: 1, Bus: 0, Device: 0, Function: 0},
		{Domain: 0, Bus: 2, Device: 0, Function: 1},
		{Domain: 0, Bus: 2, Device: 0, Function: 0},
		{Domain: 0, Bus: 1, Device: 0x1f, Function: 7},
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Less(addrs[j]) })

	want := []Addr{
		{Domain: 0, Bus: 1, Device: 0x1f, Function: 7},
		{Domain: 0, Bus: 2, Device: 0, Function: 0},
		{Domain: 0, Bus: 2, Device: 0, Function: 1},
		{Domain: 1, Bus: 0, Device: 0, Function: 0},
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Fatalf("sorted[%d] = %v, want %v", i, addrs[i], want[i])
		}
	}
}
