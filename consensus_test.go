package main

import (
	"reflect"
	"testing"

	"github.com/cockroachdb/errors"
)

func validCritique(provider string, score float64, improvements ...string) Critique {
	return Critique{Provider: provider, Score: score, Improvements: improvements, Valid: true}
}

func TestMergeCritiquesScore(t *testing.T) {
	tests := []struct {
		name      string
		critiques []Critique
		want      int
	}{
		{
			name: "exact mean",
			critiques: []Critique{
				validCritique("gemini", 70),
				validCritique("openai", 80),
				validCritique("anthropic", 90),
			},
			want: 80,
		},
		{
			name: "half rounds up",
			critiques: []Critique{
				validCritique("gemini", 70),
				validCritique("openai", 75),
			},
			want: 73, // 72.5
		},
		{
			name:      "single critic",
			critiques: []Critique{validCritique("anthropic", 64)},
			want:      64,
		},
		{
			name: "invalid critiques excluded from mean",
			critiques: []Critique{
				validCritique("gemini", 90),
				{Provider: "openai", Score: 10, Valid: false},
			},
			want: 90,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consensus, err := mergeCritiques(tt.critiques, defaultSimilarityThreshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if consensus.Score != tt.want {
				t.Errorf("score = %d, want %d", consensus.Score, tt.want)
			}
		})
	}
}

func TestMergeCritiquesNoValidInput(t *testing.T) {
	_, err := mergeCritiques([]Critique{
		{Provider: "gemini", Valid: false},
		{Provider: "openai", Valid: false},
	}, defaultSimilarityThreshold)
	if !errors.Is(err, ErrNoValidCritiques) {
		t.Errorf("expected ErrNoValidCritiques, got %v", err)
	}

	_, err = mergeCritiques(nil, defaultSimilarityThreshold)
	if !errors.Is(err, ErrNoValidCritiques) {
		t.Errorf("expected ErrNoValidCritiques for empty input, got %v", err)
	}
}

func TestMergeCritiquesDeterministicOrder(t *testing.T) {
	forward := []Critique{
		validCritique("gemini", 70, "boost contrast"),
		validCritique("openai", 80, "sharpen edges"),
		validCritique("anthropic", 90, "crop tighter"),
	}
	reversed := []Critique{forward[2], forward[1], forward[0]}

	a, err := mergeCritiques(forward, defaultSimilarityThreshold)
	if err != nil {
		t.Fatal(err)
	}
	b, err := mergeCritiques(reversed, defaultSimilarityThreshold)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Errorf("completion order changed the consensus:\n%+v\n%+v", a, b)
	}
	if !reflect.DeepEqual(a.Critics, []string{"gemini", "openai", "anthropic"}) {
		t.Errorf("critics = %v, want fixed provider order", a.Critics)
	}
}

func TestMergeCritiquesNotesAttribution(t *testing.T) {
	consensus, err := mergeCritiques([]Critique{
		{Provider: "openai", Score: 80, Notes: "nice light", Valid: true},
		{Provider: "gemini", Score: 70, Notes: "soft focus", Valid: true},
	}, defaultSimilarityThreshold)
	if err != nil {
		t.Fatal(err)
	}

	want := "[GEMINI] soft focus | [OPENAI] nice light"
	if consensus.Notes != want {
		t.Errorf("notes = %q, want %q", consensus.Notes, want)
	}
}

func TestDedupeImprovements(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		threshold float64
		want      []string
	}{
		{
			name:      "case and punctuation collapse",
			input:     []string{"boost contrast", "Boost Contrast!", "sharpen edges"},
			threshold: defaultSimilarityThreshold,
			want:      []string{"boost contrast", "sharpen edges"},
		},
		{
			name:      "whitespace collapse",
			input:     []string{"increase   brightness", "increase brightness"},
			threshold: defaultSimilarityThreshold,
			want:      []string{"increase   brightness"},
		},
		{
			name:      "overlap at threshold folds",
			input:     []string{"a b c d", "a b c e"},
			threshold: 0.6, // Jaccard 3/5
			want:      []string{"a b c d"},
		},
		{
			name:      "overlap below threshold kept",
			input:     []string{"a b c d", "a b c e"},
			threshold: 0.8,
			want:      []string{"a b c d", "a b c e"},
		},
		{
			name:      "distinct statements all kept",
			input:     []string{"increase brightness", "reduce noise", "straighten horizon"},
			threshold: defaultSimilarityThreshold,
			want:      []string{"increase brightness", "reduce noise", "straighten horizon"},
		},
		{
			name:      "blank entries dropped",
			input:     []string{"", "  ", "fix white balance"},
			threshold: defaultSimilarityThreshold,
			want:      []string{"fix white balance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dedupeImprovements(tt.input, tt.threshold)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}

			// Deduplication is idempotent.
			again := dedupeImprovements(got, tt.threshold)
			if !reflect.DeepEqual(again, got) {
				t.Errorf("not idempotent: %v then %v", got, again)
			}
		})
	}
}

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"a b", "a b", 1},
		{"a b c d", "a b c e", 0.6},
		{"a b", "c d", 0},
		{"", "a", 0},
	}
	for _, tt := range tests {
		if got := tokenOverlap(tt.a, tt.b); got != tt.want {
			t.Errorf("tokenOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
