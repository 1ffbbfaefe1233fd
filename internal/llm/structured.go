package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/khizarrm/outreach/internal/model"
)

// ErrNoStructuredOutput means the model neither called the forced tool nor
// returned parseable JSON.
var ErrNoStructuredOutput = eris.New("llm: no structured output")

// Structured forces the model to answer through tool and decodes the tool
// input into out. If the model answers in text instead, a JSON object in the
// text is accepted.
func Structured(ctx context.Context, m Model, req Request, tool Tool, out any) (model.TokenUsage, error) {
	req.Tools = []Tool{tool}
	req.ForceTool = tool.Name

	resp, err := m.Generate(ctx, req)
	if err != nil {
		return model.TokenUsage{}, err
	}

	for _, call := range resp.ToolCalls {
		if call.Name != tool.Name {
			continue
		}
		if err := json.Unmarshal(call.Input, out); err != nil {
			return resp.Usage, eris.Wrapf(err, "llm: decode %s input", tool.Name)
		}
		return resp.Usage, nil
	}

	if text := cleanJSON(resp.Text); strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), out); err == nil {
			return resp.Usage, nil
		}
	}
	return resp.Usage, eris.Wrapf(ErrNoStructuredOutput, "tool %s", tool.Name)
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(strings.TrimPrefix(text, "```json"), "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
