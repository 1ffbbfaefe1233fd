// Package agent runs a bounded tool-calling session: the model may call the
// search tool for up to MaxRoundTrips rounds, and every search result is kept
// as evidence for later extraction.
package agent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/llm"
	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/internal/search"
)

var tracer = otel.Tracer("outreach.agent")

// Stop reasons recorded on a Transcript.
const (
	StopComplete      = "complete"
	StopMaxRoundTrips = "max_round_trips"
)

// Searcher executes a round trip's search calls.
type Searcher interface {
	SearchAll(ctx context.Context, calls []search.Call) [][]model.EvidenceRecord
}

// Runner drives tool sessions against one model and one search tool.
type Runner struct {
	model     llm.Model
	searcher  Searcher
	tool      llm.Tool
	maxTokens int
}

// NewRunner builds a Runner. tool is the search tool definition offered to
// the model.
func NewRunner(m llm.Model, s Searcher, tool llm.Tool, maxTokens int) *Runner {
	return &Runner{model: m, searcher: s, tool: tool, maxTokens: maxTokens}
}

// Request is one tool session.
type Request struct {
	Stage         string
	System        string
	Prompt        string
	MaxRoundTrips int
}

// Transcript is what a session produced.
type Transcript struct {
	Evidence   []model.EvidenceRecord
	Summary    string
	Queries    []string
	RoundTrips int
	ToolCalls  int
	StopReason string
	Usage      model.TokenUsage
}

// Context renders the transcript's evidence with layout.
func (t *Transcript) Context(layout model.Layout) string {
	return model.Render(t.Evidence, layout)
}

type toolOutput struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Run executes the session. A round trip is one model turn that requested
// tools plus the execution of those tools. Once MaxRoundTrips are spent the
// next model turn ends the session and any tools it requests are not run.
// Model errors are returned with the partial transcript.
func (r *Runner) Run(ctx context.Context, req Request) (*Transcript, error) {
	ctx, span := tracer.Start(ctx, "agent.Run")
	span.SetAttributes(
		attribute.String("agent.stage", req.Stage),
		attribute.Int("agent.max_round_trips", req.MaxRoundTrips),
	)
	defer span.End()

	log := zap.L().With(zap.String("stage", req.Stage), zap.String("model", r.model.Name()))
	tr := &Transcript{Evidence: []model.EvidenceRecord{}}
	msgs := []llm.Message{llm.UserText(req.Prompt)}

	for {
		resp, err := r.model.Generate(ctx, llm.Request{
			System:    req.System,
			Messages:  msgs,
			Tools:     []llm.Tool{r.tool},
			MaxTokens: r.maxTokens,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return tr, eris.Wrapf(err, "agent: %s model call", req.Stage)
		}
		tr.Usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			tr.Summary = resp.Text
			tr.StopReason = StopComplete
			break
		}
		if tr.RoundTrips >= req.MaxRoundTrips {
			tr.Summary = resp.Text
			tr.StopReason = StopMaxRoundTrips
			log.Debug("round trip cap reached, dropping tool calls", zap.Int("dropped", len(resp.ToolCalls)))
			break
		}
		tr.RoundTrips++
		tr.ToolCalls += len(resp.ToolCalls)

		results := r.execute(ctx, resp.ToolCalls, tr)
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls},
			llm.Message{Role: llm.RoleUser, ToolResults: results},
		)
		log.Debug("round trip complete",
			zap.Int("round_trip", tr.RoundTrips),
			zap.Int("tool_calls", len(resp.ToolCalls)),
			zap.Int("evidence", len(tr.Evidence)),
		)
	}

	span.SetAttributes(
		attribute.Int("agent.round_trips", tr.RoundTrips),
		attribute.Int("agent.evidence", len(tr.Evidence)),
	)
	span.SetStatus(codes.Ok, "")
	log.Info("tool session complete",
		zap.Int("round_trips", tr.RoundTrips),
		zap.Int("tool_calls", tr.ToolCalls),
		zap.Int("evidence", len(tr.Evidence)),
		zap.String("stop_reason", tr.StopReason),
	)
	return tr, nil
}

// execute runs one round trip's calls. Valid search calls run concurrently;
// unknown tools and malformed input are answered with an error result.
func (r *Runner) execute(ctx context.Context, calls []llm.ToolCall, tr *Transcript) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	var (
		batch []search.Call
		index []int
	)
	for i, c := range calls {
		results[i].CallID = c.ID
		if c.Name != r.tool.Name {
			results[i].IsError = true
			results[i].Content = "unknown tool: " + c.Name
			continue
		}
		var in search.Input
		if err := json.Unmarshal(orEmpty(c.Input), &in); err != nil {
			results[i].IsError = true
			results[i].Content = "invalid input: " + err.Error()
			continue
		}
		if strings.TrimSpace(in.Query) == "" {
			results[i].IsError = true
			results[i].Content = "invalid input: query is required"
			continue
		}
		batch = append(batch, search.Call{Query: in.Query, NumResults: in.NumResults})
		index = append(index, i)
		tr.Queries = append(tr.Queries, in.Query)
	}

	found := r.searcher.SearchAll(ctx, batch)
	for j, recs := range found {
		tr.Evidence = append(tr.Evidence, recs...)
		out := make([]toolOutput, len(recs))
		for k, rec := range recs {
			out[k] = toolOutput(rec)
		}
		body, _ := json.Marshal(out)
		results[index[j]].Content = string(body)
	}
	return results
}

func orEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
