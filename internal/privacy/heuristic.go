package privacy

import (
	"strings"
	"unicode/utf8"
)

// Verdict names the heuristic rule that decided a candidate value
type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"
	VerdictTooShort     Verdict = "too_short"
	VerdictGenericLabel Verdict = "generic_label"
	VerdictHomogeneous  Verdict = "homogeneous"
	VerdictLowEntropy   Verdict = "low_entropy"
)

// Default heuristic thresholds
const (
	DefaultMinLength              = 10
	DefaultDistinctRatioThreshold = 0.3
)

// DefaultGenericLabels are values that only repeat a credential label
var DefaultGenericLabels = []string{"api key", "access key", "secret key", "password", "username", "user", "login"}

// HeuristicConfig gates matches of the broad "label: value" credential
// patterns. It is built once at startup and only read afterwards.
type HeuristicConfig struct {
	MinLength              int
	DistinctRatioThreshold float64
	genericLabels          map[string]struct{}
}

// DefaultHeuristicConfig returns the built-in thresholds
func DefaultHeuristicConfig() HeuristicConfig {
	return NewHeuristicConfig(DefaultMinLength, DefaultGenericLabels, DefaultDistinctRatioThreshold)
}

// NewHeuristicConfig builds a config. A non-positive minLength, empty
// genericLabels or negative distinctRatio falls back to the default. A
// distinctRatio of 0 disables the ratio check.
func NewHeuristicConfig(minLength int, genericLabels []string, distinctRatio float64) HeuristicConfig {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if distinctRatio < 0 {
		distinctRatio = DefaultDistinctRatioThreshold
	}
	if len(genericLabels) == 0 {
		genericLabels = DefaultGenericLabels
	}

	labels := make(map[string]struct{}, len(genericLabels))
	for _, l := range genericLabels {
		labels[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}

	return HeuristicConfig{
		MinLength:              minLength,
		DistinctRatioThreshold: distinctRatio,
		genericLabels:          labels,
	}
}

// IsGenericLabel reports whether s, normalised, is one of the generic labels
func (h HeuristicConfig) IsGenericLabel(s string) bool {
	_, ok := h.genericLabels[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// GenericLabels returns the configured labels in no particular order
func (h HeuristicConfig) GenericLabels() []string {
	out := make([]string, 0, len(h.genericLabels))
	for l := range h.genericLabels {
		out = append(out, l)
	}
	return out
}

// Evaluate decides whether a captured credential value looks like a real
// secret. Checks run in a fixed order and the first failing one wins.
func (h HeuristicConfig) Evaluate(value string) Verdict {
	normalized := strings.ToLower(strings.TrimSpace(value))
	length := utf8.RuneCountInString(normalized)

	if length < h.MinLength {
		return VerdictTooShort
	}
	if _, ok := h.genericLabels[normalized]; ok {
		return VerdictGenericLabel
	}

	distinct := distinctRunes(normalized)
	if distinct <= 1 {
		return VerdictHomogeneous
	}
	if float64(distinct)/float64(length) < h.DistinctRatioThreshold {
		return VerdictLowEntropy
	}

	return VerdictConfirmed
}

// Confirm is Evaluate(value) == VerdictConfirmed
func (h HeuristicConfig) Confirm(value string) bool {
	return h.Evaluate(value) == VerdictConfirmed
}

// distinctRunes counts distinct code points, a cheap stand-in for entropy
func distinctRunes(s string) int {
	seen := make(map[rune]struct{}, len(s))
	for _, r := range s {
		seen[r] = struct{}{}
	}
	return len(seen)
}
