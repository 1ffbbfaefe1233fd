package llm

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/khizarrm/outreach/internal/model"
)

// ChatCompleter is the subset of *openai.Client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewOpenAIClient builds a go-openai client, optionally against a
// compatible base URL.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAI adapts the Chat Completions API to Model.
type OpenAI struct {
	client ChatCompleter
	model  string
}

// NewOpenAI returns a Model backed by client and model ID.
func NewOpenAI(client ChatCompleter, modelID string) *OpenAI {
	return &OpenAI{client: client, model: modelID}
}

// Name returns the model ID.
func (o *OpenAI) Name() string { return o.model }

// Generate sends req to the Chat Completions API.
func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:     o.model,
		Messages:  toOpenAIMessages(req.System, req.Messages),
		MaxTokens: req.MaxTokens,
	}
	for _, t := range req.Tools {
		creq.Tools = append(creq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema,
			},
		})
	}
	switch {
	case req.ForceTool != "":
		creq.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ForceTool},
		}
	case len(req.Tools) > 0:
		creq.ToolChoice = "auto"
	}

	resp, err := o.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, eris.Wrapf(err, "llm: %s generate", o.model)
	}
	if len(resp.Choices) == 0 {
		return nil, eris.Errorf("llm: %s returned no choices", o.model)
	}

	choice := resp.Choices[0]
	out := &Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: model.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	out.Usage.Cost = EstimateCost(o.model, out.Usage.InputTokens, out.Usage.OutputTokens)
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func toOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch {
		case len(m.ToolResults) > 0:
			for _, r := range m.ToolResults {
				content := r.Content
				if r.IsError && content == "" {
					content = "error"
				}
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    content,
					ToolCallID: r.CallID,
				})
			}
			if m.Text != "" {
				out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
			}
		case m.Role == RoleAssistant:
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text}
			for _, c := range m.ToolCalls {
				args := string(c.Input)
				if args == "" {
					args = "{}"
				}
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:       c.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.Name, Arguments: args},
				})
			}
			out = append(out, msg)
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		}
	}
	return out
}
