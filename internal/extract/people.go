package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/normalize"
	"github.com/khizarrm/outreach/internal/policy"
)

// People extracts and scores leadership candidates.
type People struct {
	model     llm.Model
	policy    *policy.Policy
	maxTokens int
}

// NewPeople builds a people extractor bound to one policy snapshot.
func NewPeople(m llm.Model, p *policy.Policy, maxTokens int) *People {
	return &People{model: m, policy: p, maxTokens: maxTokens}
}

// PeopleInput is the initial extraction over people-finding evidence.
type PeopleInput struct {
	Subject policy.Subject
	Context string
}

// RevalidationInput is the re-extraction after targeted searches.
type RevalidationInput struct {
	Subject    policy.Subject
	Prior      []model.PersonCandidate
	NewContext string
	Context    string
}

func (x *People) tool() llm.Tool {
	return llm.Tool{
		Name:        x.policy.Extraction.ToolName,
		Description: x.policy.Extraction.ToolDescription,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"people": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name": map[string]any{"type": "string"},
							"role": map[string]any{"type": "string"},
							"confidence": map[string]any{
								"type": "string",
								"enum": []string{"high", "medium", "low"},
							},
						},
						"required": []string{"name", "role", "confidence"},
					},
				},
				"needsMoreSearch": map[string]any{"type": "boolean"},
				"reasoning":       map[string]any{"type": "string"},
			},
			"required": []string{"people", "needsMoreSearch", "reasoning"},
		},
	}
}

type candidateOutput struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Confidence string `json:"confidence"`
}

type verdictOutput struct {
	People          []candidateOutput `json:"people"`
	NeedsMoreSearch bool              `json:"needsMoreSearch"`
	Reasoning       string            `json:"reasoning"`
}

// Extract scores the people found in the initial context.
func (x *People) Extract(ctx context.Context, in PeopleInput) (model.ExtractionVerdict, model.TokenUsage, error) {
	prompt, err := x.policy.ExtractionPrompt(in.Subject, in.Context)
	if err != nil {
		return model.ExtractionVerdict{}, model.TokenUsage{}, err
	}
	return x.run(ctx, prompt, "people")
}

// Reextract scores people again with the revalidation context first and the
// original context second.
func (x *People) Reextract(ctx context.Context, in RevalidationInput) (model.ExtractionVerdict, model.TokenUsage, error) {
	prompt, err := x.policy.ReextractPrompt(in.Subject, in.Prior, in.NewContext, in.Context)
	if err != nil {
		return model.ExtractionVerdict{}, model.TokenUsage{}, err
	}
	return x.run(ctx, prompt, "reextract")
}

func (x *People) run(ctx context.Context, prompt, op string) (model.ExtractionVerdict, model.TokenUsage, error) {
	var out verdictOutput
	usage, err := llm.Structured(ctx, x.model, llm.Request{
		Messages:  []llm.Message{llm.UserText(prompt)},
		MaxTokens: x.maxTokens,
	}, x.tool(), &out)
	if err != nil {
		return model.ExtractionVerdict{}, usage, eris.Wrapf(err, "extract: %s", op)
	}
	return toVerdict(out), usage, nil
}

// toVerdict drops nameless candidates, maps confidence, and dedupes by
// person key keeping the first position and the last value.
func toVerdict(out verdictOutput) model.ExtractionVerdict {
	v := model.ExtractionVerdict{
		People:          make([]model.PersonCandidate, 0, len(out.People)),
		NeedsMoreSearch: out.NeedsMoreSearch,
		Reasoning:       strings.TrimSpace(out.Reasoning),
	}
	pos := make(map[string]int, len(out.People))
	for _, c := range out.People {
		name := strings.Join(strings.Fields(c.Name), " ")
		role := strings.TrimSpace(c.Role)
		key := normalize.PersonKey(name)
		if key == "" || role == "" {
			continue
		}
		cand := model.PersonCandidate{Name: name, Role: role, Confidence: model.ParseConfidence(c.Confidence)}
		if i, ok := pos[key]; ok {
			v.People[i] = cand
			continue
		}
		pos[key] = len(v.People)
		v.People = append(v.People, cand)
	}
	return v
}
