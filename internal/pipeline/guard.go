package pipeline

import (
	"unicode/utf8"

	"github.com/khizarrm/outreach/internal/model"
)

// Guard rejects candidates extracted from too little evidence.
type Guard struct {
	Threshold int
}

// ContextLen is the length the guard compares, in characters.
func ContextLen(context string) int {
	return utf8.RuneCountInString(context)
}

// Sufficient reports whether a context of n characters can back candidates.
func (g Guard) Sufficient(n int) bool {
	return n >= g.Threshold
}

// Check empties v.People when the backing context is shorter than the
// threshold, keeping NeedsMoreSearch and Reasoning. It reports false when
// it rejected candidates.
func (g Guard) Check(v model.ExtractionVerdict, contextLen int) (model.ExtractionVerdict, bool) {
	if len(v.People) > 0 && !g.Sufficient(contextLen) {
		v.People = []model.PersonCandidate{}
		return v, false
	}
	if v.People == nil {
		v.People = []model.PersonCandidate{}
	}
	return v, true
}

// Candidate set sources.
const (
	SourceInitial      = "initial"
	SourceRevalidation = "revalidation"
)

// Candidates is an extracted candidate set with the length of the context
// it was extracted from.
type Candidates struct {
	People     []model.PersonCandidate `json:"people"`
	ContextLen int                     `json:"contextLen"`
	Source     string                  `json:"source"`
}

// ShouldRevalidate reports whether a verdict warrants targeted searches:
// the extractor asked for more, or nobody scored above low.
func ShouldRevalidate(v model.ExtractionVerdict) bool {
	return v.NeedsMoreSearch || model.CountNonLow(v.People) == 0
}

// PickWinner returns reval when it has strictly more high/medium
// candidates than orig. Ties keep orig.
func PickWinner(orig, reval Candidates) Candidates {
	if model.CountNonLow(reval.People) > model.CountNonLow(orig.People) {
		return reval
	}
	return orig
}
