package credential

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	want := Credential{0xAA, 0xBB, 0xCC, 0xDD}

	tests := []struct {
		name  string
		input string
	}{
		{"plain", "aabbccdd"},
		{"upper", "AABBCCDD"},
		{"colons", "AA:BB:CC:DD"},
		{"dashes", "aa-bb-cc-dd"},
		{"spaces", " AA BB CC DD "},
		{"prefix", "0xAABBCCDD"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tc.input, err)
			}
			if got != want {
				t.Errorf("Parse(%q) = %v, want %v", tc.input, got, want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, input := range []string{"", "aabbcc", "aabbccddee", "zzzzzzzz", "aabbccd"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Parse(%q) error = %v, want ErrInvalidFormat", input, err)
			}
		})
	}
}

func TestString(t *testing.T) {
	c := Credential{0x01, 0xAB, 0x00, 0xFF}
	if got := c.String(); got != "01:AB:00:FF" {
		t.Errorf("String() = %q", got)
	}

	back, err := Parse(c.String())
	if err != nil || back != c {
		t.Errorf("Parse(String()) = %v, %v", back, err)
	}
}

func TestMatches(t *testing.T) {
	a := MustParse("11223344")
	b := MustParse("11223345")

	if !a.Matches(a) {
		t.Error("credential should match itself")
	}
	if a.Matches(b) {
		t.Error("different credentials should not match")
	}
}

func TestMatches_ZeroFirstByte(t *testing.T) {
	if Zero.Matches(Zero) {
		t.Error("all-zero credential must never match itself")
	}

	c := Credential{0x00, 0x12, 0x34, 0x56}
	if c.Matches(c) {
		t.Error("credential with zero first byte must never match")
	}
	if c.Matchable() {
		t.Error("Matchable() should be false")
	}
	if !c.Equal(c) {
		t.Error("Equal() should ignore the zero-first-byte rule")
	}
}

func TestTextRoundTrip(t *testing.T) {
	c := MustParse("DE:AD:BE:EF")
	text, err := c.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var back Credential
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if back != c {
		t.Errorf("round trip = %v, want %v", back, c)
	}
}
