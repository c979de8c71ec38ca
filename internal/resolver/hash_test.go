package resolver

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "How Do I Extend My KITAS?", "how do i extend my kitas?"},
		{"trims whitespace", "  berapa biaya visa?  ", "berapa biaya visa?"},
		{"already normalized", "plain query", "plain query"},
		{"whitespace only", "   \t\n", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	input := "  MIXED Case Query  "
	once := Normalize(input)
	if twice := Normalize(once); twice != once {
		t.Errorf("Normalize not idempotent: %q != %q", twice, once)
	}
}

func TestHashQuery(t *testing.T) {
	base := HashQuery("how do i extend my kitas?")

	// Casing and surrounding whitespace never change the hash.
	variants := []string{
		"How Do I Extend My KITAS?",
		"  how do i extend my kitas?  ",
		"HOW DO I EXTEND MY KITAS?",
	}
	for _, v := range variants {
		if got := HashQuery(v); got != base {
			t.Errorf("HashQuery(%q) = %s, want %s", v, got, base)
		}
	}

	// Internal whitespace is content; it must change the hash.
	if HashQuery("how do i extend  my kitas?") == base {
		t.Error("internal whitespace change should produce a different hash")
	}

	if HashQuery("different question entirely") == base {
		t.Error("different queries should hash differently")
	}

	if len(base) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(base))
	}
}
