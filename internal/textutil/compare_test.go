package textutil

import (
	"math"
	"testing"
)

func TestNormalizeForCompare(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips punctuation", "Well, that's... unexpected!", "well thats unexpected"},
		{"collapses whitespace", "  too   many\n\nspaces ", "too many spaces"},
		{"newlines become spaces", "first line\nsecond line", "first line second line"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeForCompare(tt.input); got != tt.want {
				t.Errorf("NormalizeForCompare(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityNil(t *testing.T) {
	tests := []struct {
		name string
		a    *Fingerprint
		b    *Fingerprint
		want float64
	}{
		{"both nil", nil, nil, 0},
		{"a nil", nil, NewFingerprint("hello world"), 0},
		{"b nil", NewFingerprint("hello world"), nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	text := "The quick brown fox jumps over the lazy dog"
	a := NewFingerprint(text)
	b := NewFingerprint(text)

	got := CosineSimilarity(a, b)
	if got != 1.0 {
		t.Errorf("CosineSimilarity(identical) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityCompleteDifferent(t *testing.T) {
	a := NewFingerprint("apple banana cherry")
	b := NewFingerprint("dog elephant frog")

	got := CosineSimilarity(a, b)
	if got != 0 {
		t.Errorf("CosineSimilarity(different) = %v, want 0", got)
	}
}

func TestCosineSimilaritySymmetric(t *testing.T) {
	a := NewFingerprint("hello world program")
	b := NewFingerprint("world program test")

	ab := CosineSimilarity(a, b)
	ba := CosineSimilarity(b, a)

	if ab != ba {
		t.Errorf("CosineSimilarity not symmetric: (%v, %v)", ab, ba)
	}
}

func TestNewFingerprintEmpty(t *testing.T) {
	fp := NewFingerprint("")
	if fp != nil {
		t.Error("expected nil for empty text")
	}
}

func TestNewFingerprintShortTokens(t *testing.T) {
	// Only short tokens (< 3 chars) should result in nil
	fp := NewFingerprint("a an it to")
	if fp != nil {
		t.Error("expected nil for text with only short tokens")
	}
}

func TestNewFingerprintNormCalculation(t *testing.T) {
	// "hello hello world" -> hello:2, world:1
	// norm = sqrt(2^2 + 1^2) = sqrt(5)
	fp := NewFingerprint("hello hello world")
	if fp == nil {
		t.Fatal("expected fingerprint")
	}

	expectedNorm := math.Sqrt(5)
	if math.Abs(fp.norm-expectedNorm) > 0.0001 {
		t.Errorf("norm = %v, want %v", fp.norm, expectedNorm)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple words",
			input: "Hello World",
			want:  []string{"hello", "world"},
		},
		{
			name:  "filters short",
			input: "a to the quick fox",
			want:  []string{"the", "quick", "fox"},
		},
		{
			name:  "handles punctuation",
			input: "Hello, World! How are you?",
			want:  []string{"hello", "world", "how", "are", "you"},
		},
		{
			name:  "empty string",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("Tokenize() = %v (len %d), want %v (len %d)",
					got, len(got), tt.want, len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("token[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSimilarText(t *testing.T) {
	tests := []struct {
		name      string
		a         string
		b         string
		threshold float64
		want      bool
	}{
		{
			name:      "identical after normalization",
			a:         "So, where were we?",
			b:         "so where were we",
			threshold: 0.8,
			want:      true,
		},
		{
			name:      "containment",
			a:         "I never agreed to that.",
			b:         "But I never agreed to that, and you know it.",
			threshold: 0.8,
			want:      true,
		},
		{
			name:      "near duplicate wording",
			a:         "The storm reached the harbor before midnight that evening.",
			b:         "The storm reached the harbor before midnight that same evening.",
			threshold: 0.8,
			want:      true,
		},
		{
			name:      "unrelated dialogue",
			a:         "The storm reached the harbor before midnight.",
			b:         "Breakfast is served in the garden today.",
			threshold: 0.8,
			want:      false,
		},
		{
			name:      "empty side never matches",
			a:         "",
			b:         "anything at all",
			threshold: 0.8,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SimilarText(tt.a, tt.b, tt.threshold); got != tt.want {
				t.Errorf("SimilarText(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilarTextOverlapTranscripts(t *testing.T) {
	// Two recognizer passes over the same overlap window rarely produce
	// byte-identical text. They should still register as the same speech.
	first := "We crossed the bridge at dawn, and the city was already awake."
	second := "We crossed the bridge at dawn and the city was already awake"

	if !SimilarText(first, second, 0.8) {
		t.Error("expected overlapping transcript passes to match")
	}

	unrelated := "Chapter twelve begins with a completely different scene."
	if SimilarText(first, unrelated, 0.8) {
		t.Error("unrelated text should not match")
	}
}
