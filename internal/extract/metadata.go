// Package extract turns research evidence into structured company metadata
// and scored leadership candidates using constrained model output.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/policy"
)

const earliestFounding = 1600

// Metadata extracts CompanyMetadata from research evidence.
type Metadata struct {
	model     llm.Model
	policy    *policy.Policy
	maxTokens int
}

// NewMetadata builds a metadata extractor bound to one policy snapshot.
func NewMetadata(m llm.Model, p *policy.Policy, maxTokens int) *Metadata {
	return &Metadata{model: m, policy: p, maxTokens: maxTokens}
}

func nullable(kind string) map[string]any {
	return map[string]any{"type": []string{kind, "null"}}
}

func (x *Metadata) tool() llm.Tool {
	return llm.Tool{
		Name:        x.policy.Metadata.ToolName,
		Description: x.policy.Metadata.ToolDescription,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":             map[string]any{"type": "string"},
				"description":      nullable("string"),
				"techStack":        nullable("string"),
				"industry":         nullable("string"),
				"yearFounded":      nullable("integer"),
				"headquarters":     nullable("string"),
				"revenue":          nullable("string"),
				"funding":          nullable("string"),
				"employeeCountMin": nullable("integer"),
				"employeeCountMax": nullable("integer"),
			},
			"required": []string{"name"},
		},
	}
}

// flexInt decodes integers the model sometimes sends as strings.
type flexInt struct {
	v *int
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	s := strings.Trim(string(b), `"`)
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		f.v = &n
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		n := int(fl)
		f.v = &n
	}
	return nil
}

type metadataOutput struct {
	Name             string  `json:"name"`
	Description      *string `json:"description"`
	TechStack        *string `json:"techStack"`
	Industry         *string `json:"industry"`
	YearFounded      flexInt `json:"yearFounded"`
	Headquarters     *string `json:"headquarters"`
	Revenue          *string `json:"revenue"`
	Funding          *string `json:"funding"`
	EmployeeCountMin flexInt `json:"employeeCountMin"`
	EmployeeCountMax flexInt `json:"employeeCountMax"`
}

// Extract produces metadata for domain from the plain evidence context. When
// the context is empty the research summary is used instead; when both are
// empty no model call is made and only the name (the domain) is known.
func (x *Metadata) Extract(ctx context.Context, domain, evidenceContext, fallbackText string) (model.CompanyMetadata, model.TokenUsage, error) {
	source := evidenceContext
	if strings.TrimSpace(source) == "" {
		source = fallbackText
	}
	if strings.TrimSpace(source) == "" {
		zap.L().Info("no research context, skipping metadata extraction", zap.String("domain", domain))
		return model.CompanyMetadata{Name: domain}, model.TokenUsage{}, nil
	}

	prompt, err := x.policy.MetadataPrompt(policy.Subject{Domain: domain}, source)
	if err != nil {
		return model.CompanyMetadata{}, model.TokenUsage{}, err
	}

	var out metadataOutput
	usage, err := llm.Structured(ctx, x.model, llm.Request{
		Messages:  []llm.Message{llm.UserText(prompt)},
		MaxTokens: x.maxTokens,
	}, x.tool(), &out)
	if err != nil {
		return model.CompanyMetadata{}, usage, eris.Wrap(err, "extract: metadata")
	}

	return sanitizeMetadata(domain, out, time.Now().Year()), usage, nil
}

func sanitizeMetadata(domain string, out metadataOutput, thisYear int) model.CompanyMetadata {
	m := model.CompanyMetadata{
		Name:         strings.TrimSpace(out.Name),
		Description:  blankToNil(out.Description),
		TechStack:    blankToNil(out.TechStack),
		Industry:     blankToNil(out.Industry),
		Headquarters: blankToNil(out.Headquarters),
		Revenue:      blankToNil(out.Revenue),
		Funding:      blankToNil(out.Funding),
	}
	if m.Name == "" || strings.EqualFold(m.Name, "null") {
		m.Name = domain
	}
	if y := out.YearFounded.v; y != nil && *y >= earliestFounding && *y <= thisYear+1 {
		m.YearFounded = y
	}
	if n := out.EmployeeCountMin.v; n != nil && *n >= 0 {
		m.EmployeeCountMin = n
	}
	if n := out.EmployeeCountMax.v; n != nil && *n >= 0 {
		m.EmployeeCountMax = n
	}
	if m.EmployeeCountMin != nil && m.EmployeeCountMax != nil && *m.EmployeeCountMin > *m.EmployeeCountMax {
		m.EmployeeCountMin, m.EmployeeCountMax = m.EmployeeCountMax, m.EmployeeCountMin
	}
	return m
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "null", "unknown", "n/a":
		return nil
	}
	return &v
}

var _ json.Unmarshaler = (*flexInt)(nil)
