package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/model"
	"github.com/khizarrm/outreach/pkg/anthropic"
)

const defaultMaxTokens = 4096

// Anthropic adapts an anthropic.Client to Model.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic returns a Model backed by the given client and model ID.
func NewAnthropic(client anthropic.Client, modelID string) *Anthropic {
	return &Anthropic{client: client, model: modelID}
}

// Name returns the model ID.
func (a *Anthropic) Name() string { return a.model }

// Generate sends req to the Messages API.
func (a *Anthropic) Generate(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	areq := anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: int64(maxTokens),
		System:    req.System,
		Messages:  toAnthropicMessages(req.Messages),
	}
	for _, t := range req.Tools {
		areq.Tools = append(areq.Tools, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		})
	}
	switch {
	case req.ForceTool != "":
		areq.ToolChoice = &anthropic.ToolChoice{Type: "tool", Name: req.ForceTool}
	case len(req.Tools) > 0:
		areq.ToolChoice = &anthropic.ToolChoice{Type: "auto"}
	}

	resp, err := a.client.CreateMessage(ctx, areq)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: %s generate", a.model)
	}

	out := &Response{
		Text:       resp.Text(),
		StopReason: resp.StopReason,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheReadInputTokens + resp.Usage.CacheCreationInputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			Cost:         resp.Usage.EstimateCost(a.model),
		},
	}
	for _, b := range resp.ToolUses() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
	}
	return out, nil
}

func toAnthropicMessages(msgs []Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		am := anthropic.Message{Role: string(m.Role)}
		if len(m.ToolCalls) == 0 && len(m.ToolResults) == 0 {
			am.Content = m.Text
			out = append(out, am)
			continue
		}
		if m.Text != "" {
			am.Blocks = append(am.Blocks, anthropic.ContentBlock{Type: anthropic.BlockText, Text: m.Text})
		}
		for _, c := range m.ToolCalls {
			am.Blocks = append(am.Blocks, anthropic.ContentBlock{
				Type:  anthropic.BlockToolUse,
				ID:    c.ID,
				Name:  c.Name,
				Input: c.Input,
			})
		}
		for _, r := range m.ToolResults {
			am.Blocks = append(am.Blocks, anthropic.ContentBlock{
				Type:      anthropic.BlockToolResult,
				ToolUseID: r.CallID,
				Text:      r.Content,
				IsError:   r.IsError,
			})
		}
		out = append(out, am)
	}
	return out
}
