package main

import (
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
)

// rawCritique mirrors the strict JSON object every provider is prompted to
// return. Score is decoded loosely so out-of-range numbers can be clamped
// while non-numeric values are rejected outright.
type rawCritique struct {
	Score        *float64 `json:"score"`
	Improvements []string `json:"improvements"`
	Notes        string   `json:"notes"`
}

// parseCritique parses a provider's textual response into a valid Critique.
// Providers are told to emit bare JSON but routinely wrap it in markdown
// fences or prose, so parsing strips fences first and then falls back to
// extracting the outermost {...} span before giving up.
func parseCritique(provider, response string) (Critique, error) {
	text := stripFences(strings.TrimSpace(response))

	var raw rawCritique
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		extracted, ok := extractJSONObject(text)
		if !ok {
			return Critique{}, errors.Wrapf(err, "%s returned no JSON object", provider)
		}
		if err := json.Unmarshal([]byte(extracted), &raw); err != nil {
			return Critique{}, errors.Wrapf(err, "%s returned malformed JSON", provider)
		}
	}

	if raw.Score == nil {
		return Critique{}, errors.Newf("%s critique is missing a numeric score", provider)
	}

	score := *raw.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	improvements := make([]string, 0, len(raw.Improvements))
	for _, imp := range raw.Improvements {
		if trimmed := strings.TrimSpace(imp); trimmed != "" {
			improvements = append(improvements, trimmed)
		}
	}

	return Critique{
		Provider:     provider,
		Score:        score,
		Improvements: improvements,
		Notes:        raw.Notes,
		Valid:        true,
	}, nil
}

// invalidCritique tags a failed provider call so the per-provider record
// still appears in entry metadata.
func invalidCritique(provider string, err error) Critique {
	return Critique{
		Provider: provider,
		Notes:    "analysis failed",
		Error:    err.Error(),
	}
}

// stripFences removes a surrounding markdown code fence and an optional
// leading "json" language tag.
func stripFences(text string) string {
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 2 {
			text = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "json") {
		text = strings.TrimSpace(text[4:])
	}
	return text
}

// extractJSONObject returns the outermost {...} span of text, for responses
// that wrap the JSON object in explanatory prose.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
