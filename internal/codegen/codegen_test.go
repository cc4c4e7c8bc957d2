package codegen

import (
	"strings"
	"testing"
)

func TestGenerateLengthAndAlphabet(t *testing.T) {
	for _, length := range []int{8, 16, 32} {
		code, err := Generate(length)
		if err != nil {
			t.Fatalf("Generate(%d): %v", length, err)
		}
		if len(code) != length || !WellFormed(code) {
			t.Fatalf("Generate(%d) produced malformed code %q", length, code)
		}
	}
}

func TestGenerateRejectsInvalidLength(t *testing.T) {
	if _, err := Generate(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestGenerateIsUnique(t *testing.T) {
	gen := New(DefaultLength)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		code, err := gen()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, dup := seen[code]; dup {
			t.Fatalf("duplicate code %q after %d generations", code, i)
		}
		seen[code] = struct{}{}
	}
}

func TestGenerateUsesWholeAlphabet(t *testing.T) {
	counts := make(map[rune]int)
	for i := 0; i < 2000; i++ {
		code, err := Generate(DefaultLength)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		for _, r := range code {
			counts[r]++
		}
	}
	// 32000 draws over 36 symbols: each expected ~889 times.
	for _, r := range Alphabet {
		if counts[r] < 500 {
			t.Fatalf("symbol %q drawn only %d times", r, counts[r])
		}
	}
}

func TestNormalizeAndWellFormed(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{" abcd1234efgh5678 ", true},
		{"ABCD1234EFGH5678", true},
		{"ABCD1234", true},
		{strings.Repeat("Z", MaxLength), true},
		{strings.Repeat("Z", MaxLength+1), false},
		{"ABCD-1234EFGH567", false},
		{"ABCD 1234", false},
		{"ÄBCD1234", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := WellFormed(Normalize(tt.in)); got != tt.want {
			t.Errorf("WellFormed(Normalize(%q)) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
