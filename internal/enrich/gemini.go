package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/normalize"
	"github.com/khizarrm/outreach/internal/resilience"
)

const defaultGeminiModel = "gemini-2.5-flash"

// generator is the slice of the genai client used here. *genai.Models
// satisfies it.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiConfig configures the Gemini enricher.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Retry   resilience.RetryConfig
}

// Gemini finds work emails with a search-grounded Gemini call.
type Gemini struct {
	gen   generator
	model string
	retry resilience.RetryConfig
}

// NewGemini creates a Gemini enricher backed by the Gemini API.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("enrich: gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: gemini client")
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(gen generator, cfg GeminiConfig) *Gemini {
	m := strings.TrimSpace(cfg.Model)
	if m == "" {
		m = defaultGeminiModel
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	retry.OnRetry = resilience.RetryLogger("gemini", "enrich")
	return &Gemini{gen: gen, model: m, retry: retry}
}

func (g *Gemini) Name() string { return "gemini" }

var emailSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"people": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":   {Type: genai.TypeString},
					"emails": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				},
				Required: []string{"name", "emails"},
			},
		},
	},
	Required: []string{"people"},
}

type emailResponse struct {
	People []struct {
		Name   string   `json:"name"`
		Emails []string `json:"emails"`
	} `json:"people"`
}

// Enrich looks up emails for every person in one call. Emails outside the
// request domain are discarded; people keep their position with an empty
// list when nothing was found.
func (g *Gemini) Enrich(ctx context.Context, req Request) (*Response, error) {
	out := &Response{People: make([]model.Person, len(req.People))}
	copy(out.People, req.People)
	if len(req.People) == 0 {
		return out, nil
	}

	resp, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		r, err := g.gen.GenerateContent(ctx, g.model, genai.Text(buildEmailPrompt(req)), &genai.GenerateContentConfig{
			Tools:            []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
			CandidateCount:   1,
			ResponseMIMEType: "application/json",
			ResponseSchema:   emailSchema,
		})
		if err != nil {
			return nil, classifyErr(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: gemini generate")
	}

	var parsed emailResponse
	if err := json.Unmarshal([]byte(resp.Text()), &parsed); err != nil {
		return nil, eris.Wrap(err, "enrich: parse gemini response")
	}

	found := make(map[string][]string, len(parsed.People))
	for _, p := range parsed.People {
		key := normalize.PersonKey(p.Name)
		found[key] = append(found[key], p.Emails...)
	}
	for i, p := range out.People {
		p.Emails = FilterEmails(req.Domain, append(append([]string(nil), p.Emails...), found[normalize.PersonKey(p.Name)]...))
		out.People[i] = p
	}

	if um := resp.UsageMetadata; um != nil {
		in, outTok := int(um.PromptTokenCount), int(um.CandidatesTokenCount)
		out.Usage = model.TokenUsage{
			InputTokens:  in,
			OutputTokens: outTok,
			Cost:         llm.EstimateCost(g.model, in, outTok),
		}
	}
	zap.L().Debug("enrich: gemini complete",
		zap.String("domain", req.Domain),
		zap.Int("people", len(out.People)),
		zap.Int("with_email", len(DropEmpty(out.People))),
	)
	return out, nil
}

func buildEmailPrompt(req Request) string {
	company := req.Company
	if company == "" {
		company = req.Domain
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Find the work email addresses of these people at %s (domain: %s).\n\n", company, req.Domain)
	for _, p := range req.People {
		fmt.Fprintf(&b, "- %s, %s\n", p.Name, p.Role)
	}
	b.WriteString(`
Use web search. Only return addresses ending in @` + req.Domain + ` that are published or follow the company's confirmed address pattern.
Return a JSON object {"people": [{"name": ..., "emails": [...]}]}, one entry per person above, with an empty list when nothing is found.`)
	return b.String()
}

// classifyErr marks rate limits, server errors and temporary network
// failures as transient.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return resilience.NewTransientError(err, apiErr.Code)
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return resilience.NewTransientError(err, 0)
	}
	return err
}
