// Package llmtest provides fake models for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/khizarrm/outreach/internal/llm"
)

// MockModel implements llm.Model with testify/mock.
type MockModel struct {
	mock.Mock
}

func (m *MockModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

func (m *MockModel) Name() string { return "mock-model" }

// Scripted replays canned responses in order and records every request.
// Once the script is exhausted it answers with plain text "done".
type Scripted struct {
	mu        sync.Mutex
	responses []Step
	requests  []llm.Request
}

// Step is one scripted reply.
type Step struct {
	Response *llm.Response
	Err      error
}

// NewScripted returns a Scripted model.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{responses: steps}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.requests = append(s.requests, clone(req))
	if len(s.responses) == 0 {
		return &llm.Response{Text: "done", StopReason: "end_turn"}, nil
	}
	step := s.responses[0]
	s.responses = s.responses[1:]
	return step.Response, step.Err
}

// Requests returns the recorded requests.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

func clone(req llm.Request) llm.Request {
	req.Messages = append([]llm.Message(nil), req.Messages...)
	return req
}

// Text is a step answering with text.
func Text(text string) Step {
	return Step{Response: &llm.Response{Text: text, StopReason: "end_turn"}}
}

// Calls is a step requesting the given tool calls.
func Calls(calls ...llm.ToolCall) Step {
	return Step{Response: &llm.Response{ToolCalls: calls, StopReason: "tool_use"}}
}

// Fail is a step returning err.
func Fail(err error) Step {
	return Step{Err: err}
}

// Search builds a search tool call with a deterministic ID.
func Search(id int, query string) llm.ToolCall {
	input, _ := json.Marshal(map[string]any{"query": query})
	return llm.ToolCall{ID: fmt.Sprintf("call_%d", id), Name: "search", Input: input}
}

// Record is a step answering the forced tool name with v as input.
func Record(name string, v any) Step {
	input, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Step{Response: &llm.Response{
		ToolCalls:  []llm.ToolCall{{ID: "call_record", Name: name, Input: input}},
		StopReason: "tool_use",
	}}
}
