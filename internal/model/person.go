package model

import "strings"

// Confidence is a three-level trust label on a person-company association.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps free-form model output to a Confidence. Anything
// unrecognized is low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// PersonCandidate is a leadership individual surfaced by extraction.
type PersonCandidate struct {
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	Confidence Confidence `json:"confidence"`
}

// ExtractionVerdict is the output of one people-extraction call.
type ExtractionVerdict struct {
	People          []PersonCandidate `json:"people"`
	NeedsMoreSearch bool              `json:"needsMoreSearch"`
	Reasoning       string            `json:"reasoning"`
}

// CountNonLow returns how many candidates are high or medium confidence.
func CountNonLow(people []PersonCandidate) int {
	n := 0
	for _, p := range people {
		if p.Confidence != ConfidenceLow {
			n++
		}
	}
	return n
}
