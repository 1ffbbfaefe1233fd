package model

import (
	"strings"
)

// EvidenceRecord is one search result item kept in a run's working memory.
type EvidenceRecord struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Empty reports whether the record carries no usable text.
func (e EvidenceRecord) Empty() bool {
	return strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Content) == ""
}

// Layout selects how evidence records are concatenated into a context string.
type Layout int

const (
	// LayoutPlain renders "title\ncontent" blocks separated by a blank line.
	LayoutPlain Layout = iota
	// LayoutSourced renders "Source:/URL:" blocks separated by "---".
	LayoutSourced
)

// Render concatenates evidence records into the context string consumed by
// an extraction call. Empty records are skipped.
func Render(records []EvidenceRecord, layout Layout) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		if r.Empty() {
			continue
		}
		switch layout {
		case LayoutSourced:
			parts = append(parts, "Source: "+r.Title+"\nURL: "+r.URL+"\n"+r.Content)
		default:
			parts = append(parts, r.Title+"\n"+r.Content)
		}
	}
	sep := "\n\n"
	if layout == LayoutSourced {
		sep = "\n\n---\n\n"
	}
	return strings.Join(parts, sep)
}

// DedupeEvidence drops repeated URLs, keeping the first occurrence. Records
// without a URL are always kept.
func DedupeEvidence(records []EvidenceRecord) []EvidenceRecord {
	seen := make(map[string]bool, len(records))
	out := make([]EvidenceRecord, 0, len(records))
	for _, r := range records {
		if r.URL != "" {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
		}
		out = append(out, r)
	}
	return out
}
