package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/llm/llmtest"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/policy"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var acme = policy.Subject{Domain: "acme.io", Company: "Acme"}

func TestMetadata_Extract(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_company_metadata", map[string]any{
		"name":             "Acme",
		"description":      "Reusable rockets",
		"industry":         "  ",
		"techStack":        nil,
		"yearFounded":      "2019",
		"employeeCountMin": 200,
		"employeeCountMax": 50,
		"headquarters":     "Unknown",
	}))

	meta, _, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", "Acme\nrockets", "")
	require.NoError(t, err)

	assert.Equal(t, "Acme", meta.Name)
	require.NotNil(t, meta.Description)
	assert.Equal(t, "Reusable rockets", *meta.Description)
	assert.Nil(t, meta.Industry)
	assert.Nil(t, meta.TechStack)
	assert.Nil(t, meta.Headquarters)
	require.NotNil(t, meta.YearFounded)
	assert.Equal(t, 2019, *meta.YearFounded)
	assert.Equal(t, 50, *meta.EmployeeCountMin)
	assert.Equal(t, 200, *meta.EmployeeCountMax)

	req := m.Requests()[0]
	assert.Equal(t, "record_company_metadata", req.ForceTool)
	assert.Contains(t, req.Messages[0].Text, "Acme\nrockets")
}

func TestMetadata_FallbackText(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_company_metadata", map[string]any{"name": "Acme"}))
	_, _, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", "", "Acme is a rocket company.")
	require.NoError(t, err)
	assert.Contains(t, m.Requests()[0].Messages[0].Text, "Acme is a rocket company.")
}

func TestMetadata_NoContextNoCall(t *testing.T) {
	m := llmtest.NewScripted()
	meta, usage, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", " ", "")
	require.NoError(t, err)
	assert.Equal(t, "acme.io", meta.Name)
	assert.False(t, meta.Identified())
	assert.Zero(t, usage)
	assert.Empty(t, m.Requests())
}

func TestMetadata_BlankNameUsesDomain(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_company_metadata", map[string]any{"name": ""}))
	meta, _, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", "ctx", "")
	require.NoError(t, err)
	assert.Equal(t, "acme.io", meta.Name)
}

func TestMetadata_ModelError(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Fail(errors.New("500")))
	_, _, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", "ctx", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: metadata")
}

func TestMetadata_NoStructuredOutput(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Text("I am not sure."))
	_, _, err := NewMetadata(m, policy.Default(), 512).Extract(context.Background(), "acme.io", "ctx", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrNoStructuredOutput)
}

func TestSanitizeMetadata_Year(t *testing.T) {
	year := func(v int) flexInt { return flexInt{v: &v} }
	tests := []struct {
		name string
		in   flexInt
		want *int
	}{
		{"plausible", year(1999), intPtr(1999)},
		{"future", year(2031), nil},
		{"next year ok", year(2027), intPtr(2027)},
		{"ancient", year(12), nil},
		{"missing", flexInt{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeMetadata("acme.io", metadataOutput{Name: "Acme", YearFounded: tt.in}, 2026)
			assert.Equal(t, tt.want, got.YearFounded)
		})
	}
}

func TestSanitizeMetadata_NegativeCounts(t *testing.T) {
	neg := -5
	got := sanitizeMetadata("acme.io", metadataOutput{Name: "Acme", EmployeeCountMin: flexInt{v: &neg}}, 2026)
	assert.Nil(t, got.EmployeeCountMin)
}

func TestFlexInt(t *testing.T) {
	var out struct {
		A flexInt `json:"a"`
		B flexInt `json:"b"`
		C flexInt `json:"c"`
		D flexInt `json:"d"`
		E flexInt `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":12,"b":"1,200","c":null,"d":"about ten","e":3.7}`), &out))
	assert.Equal(t, 12, *out.A.v)
	assert.Equal(t, 1200, *out.B.v)
	assert.Nil(t, out.C.v)
	assert.Nil(t, out.D.v)
	assert.Equal(t, 3, *out.E.v)
}

func TestPeople_Extract(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_leadership", map[string]any{
		"people": []map[string]any{
			{"name": "Jane Doe", "role": "CEO", "confidence": "high"},
			{"name": "John Roe", "role": "CTO", "confidence": "MEDIUM"},
			{"name": "Ann Poe", "role": "VP Sales", "confidence": "probably"},
			{"name": "  ", "role": "COO", "confidence": "high"},
		},
		"needsMoreSearch": false,
		"reasoning":       "LinkedIn profiles mention acme.io",
	}))

	v, _, err := NewPeople(m, policy.Default(), 1024).Extract(context.Background(), PeopleInput{Subject: acme, Context: "CTX"})
	require.NoError(t, err)

	require.Len(t, v.People, 3)
	assert.Equal(t, model.ConfidenceHigh, v.People[0].Confidence)
	assert.Equal(t, model.ConfidenceMedium, v.People[1].Confidence)
	assert.Equal(t, model.ConfidenceLow, v.People[2].Confidence)
	assert.False(t, v.NeedsMoreSearch)
	assert.Equal(t, "LinkedIn profiles mention acme.io", v.Reasoning)

	req := m.Requests()[0]
	assert.Equal(t, "record_leadership", req.ForceTool)
	assert.Contains(t, req.Messages[0].Text, "Extract leadership for Acme (website: acme.io)")
	assert.Contains(t, req.Messages[0].Text, "CTX")
}

func TestPeople_DedupeLastWriteWins(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_leadership", map[string]any{
		"people": []map[string]any{
			{"name": "Jane Doe", "role": "Founder", "confidence": "low"},
			{"name": "John Roe", "role": "CTO", "confidence": "medium"},
			{"name": "jane  doe", "role": "CEO", "confidence": "high"},
		},
		"needsMoreSearch": true,
		"reasoning":       "",
	}))

	v, _, err := NewPeople(m, policy.Default(), 1024).Extract(context.Background(), PeopleInput{Subject: acme, Context: "CTX"})
	require.NoError(t, err)
	require.Len(t, v.People, 2)
	assert.Equal(t, model.PersonCandidate{Name: "jane doe", Role: "CEO", Confidence: model.ConfidenceHigh}, v.People[0])
	assert.Equal(t, "John Roe", v.People[1].Name)
	assert.True(t, v.NeedsMoreSearch)
}

func TestPeople_Reextract(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_leadership", map[string]any{
		"people":          []map[string]any{{"name": "Jane Doe", "role": "CEO", "confidence": "high"}},
		"needsMoreSearch": false,
		"reasoning":       "confirmed by TechCrunch",
	}))

	prior := []model.PersonCandidate{{Name: "Wrong Person", Role: "CEO", Confidence: model.ConfidenceLow}}
	v, _, err := NewPeople(m, policy.Default(), 1024).Reextract(context.Background(), RevalidationInput{
		Subject:    acme,
		Prior:      prior,
		NewContext: "NEWCTX",
		Context:    "OLDCTX",
	})
	require.NoError(t, err)
	require.Len(t, v.People, 1)

	text := m.Requests()[0].Messages[0].Text
	assert.Contains(t, text, "- Wrong Person: CEO")
	assert.Contains(t, text, "NEWCTX")
	assert.Contains(t, text, "OLDCTX")
}

func TestPeople_ExtractError(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Fail(errors.New("timeout")))
	_, _, err := NewPeople(m, policy.Default(), 1024).Extract(context.Background(), PeopleInput{Subject: acme, Context: "CTX"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: people")
}

func TestPeople_EmptyOutput(t *testing.T) {
	m := llmtest.NewScripted(llmtest.Record("record_leadership", map[string]any{"needsMoreSearch": true}))
	v, _, err := NewPeople(m, policy.Default(), 1024).Extract(context.Background(), PeopleInput{Subject: acme, Context: "CTX"})
	require.NoError(t, err)
	assert.NotNil(t, v.People)
	assert.Empty(t, v.People)
}

func intPtr(v int) *int { return &v }
