package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestParseConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Confidence
	}{
		{"high", ConfidenceHigh},
		{" HIGH ", ConfidenceHigh},
		{"Medium", ConfidenceMedium},
		{"low", ConfidenceLow},
		{"certain", ConfidenceLow},
		{"", ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseConfidence(tt.in))
		})
	}
}

func TestCountNonLow(t *testing.T) {
	t.Parallel()

	people := []PersonCandidate{
		{Name: "A", Confidence: ConfidenceHigh},
		{Name: "B", Confidence: ConfidenceLow},
		{Name: "C", Confidence: ConfidenceMedium},
	}
	assert.Equal(t, 2, CountNonLow(people))
	assert.Equal(t, 0, CountNonLow(nil))
}

func TestRender_Plain(t *testing.T) {
	t.Parallel()

	records := []EvidenceRecord{
		{Title: "Datacurve", URL: "https://datacurve.ai", Content: "Data for coding models."},
		{},
		{Title: "TechCrunch", URL: "https://techcrunch.com/x", Content: "Raised seed."},
	}
	got := Render(records, LayoutPlain)
	assert.Equal(t, "Datacurve\nData for coding models.\n\nTechCrunch\nRaised seed.", got)
}

func TestRender_Sourced(t *testing.T) {
	t.Parallel()

	records := []EvidenceRecord{
		{Title: "Serena Ge - CEO", URL: "https://linkedin.com/in/serena", Content: "CEO at Datacurve"},
		{Title: "Crunchbase", URL: "https://crunchbase.com/organization/datacurve", Content: "Founders"},
	}
	got := Render(records, LayoutSourced)
	assert.Equal(t,
		"Source: Serena Ge - CEO\nURL: https://linkedin.com/in/serena\nCEO at Datacurve"+
			"\n\n---\n\n"+
			"Source: Crunchbase\nURL: https://crunchbase.com/organization/datacurve\nFounders",
		got)
}

func TestRender_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", Render(nil, LayoutPlain))
	assert.Equal(t, "", Render([]EvidenceRecord{{URL: "https://x.com"}}, LayoutSourced))
}

func TestDedupeEvidence(t *testing.T) {
	t.Parallel()

	records := []EvidenceRecord{
		{Title: "a", URL: "https://a.com"},
		{Title: "b", URL: "https://a.com"},
		{Title: "c"},
		{Title: "d"},
	}
	got := DedupeEvidence(records)
	assert.Len(t, got, 3)
	assert.Equal(t, "a", got[0].Title)
}

func TestCompanyMetadata_Identified(t *testing.T) {
	t.Parallel()

	assert.False(t, CompanyMetadata{Name: "datacurve.ai"}.Identified())
	assert.True(t, CompanyMetadata{Name: "Datacurve", Industry: strPtr("AI")}.Identified())
	assert.True(t, CompanyMetadata{Name: "Datacurve", YearFounded: intPtr(2023)}.Identified())
}

func TestNewPipelineResult(t *testing.T) {
	t.Parallel()

	meta := CompanyMetadata{Name: "Datacurve", Industry: strPtr("AI"), EmployeeCountMin: intPtr(10)}
	r := NewPipelineResult("datacurve.ai", meta)

	assert.Equal(t, "Datacurve", r.Company)
	assert.Equal(t, "https://datacurve.ai", r.Website)
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=datacurve.ai&sz=128", r.Favicon)
	assert.NotNil(t, r.People)
	assert.Empty(t, r.People)
	assert.Equal(t, meta, r.Metadata())
}

func TestCompanyFromResult(t *testing.T) {
	t.Parallel()

	r := NewPipelineResult("datacurve.ai", CompanyMetadata{Name: "Datacurve", Funding: strPtr("$15M")})
	c := CompanyFromResult(&r)

	assert.Equal(t, "Datacurve", c.Name)
	if assert.NotNil(t, c.Website) {
		assert.Equal(t, "https://datacurve.ai", *c.Website)
	}
	assert.Equal(t, "$15M", *c.Funding)
	assert.Nil(t, c.Description)
}

func TestRunStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, RunStatusDone.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.False(t, RunStatusResearching.Terminal())
}

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	a := TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01}
	a.Add(TokenUsage{InputTokens: 200, OutputTokens: 100, Cost: 0.02})
	assert.Equal(t, 300, a.InputTokens)
	assert.Equal(t, 150, a.OutputTokens)
	assert.InDelta(t, 0.03, a.Cost, 1e-9)
}
