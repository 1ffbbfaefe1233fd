// Package llm abstracts tool-calling chat models behind a single interface so
// the research stages can run on Anthropic or OpenAI without change.
package llm

import (
	"context"
	"encoding/json"

	"github.com/khizarrm/outreach/internal/model"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational turn. An assistant turn may carry tool calls;
// a user turn may carry tool results answering them.
type Message struct {
	Role        Role
	Text        string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Tool declares a callable tool. Schema is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResult answers a ToolCall.
type ToolResult struct {
	CallID  string
	Content string
	IsError bool
}

// Request is a single model invocation.
type Request struct {
	System    string
	Messages  []Message
	Tools     []Tool
	ForceTool string // when set, the model must call this tool
	MaxTokens int
}

// Response is the model's reply.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
	Usage      model.TokenUsage
}

// Model is a tool-calling chat model.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// UserText builds a plain user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}
