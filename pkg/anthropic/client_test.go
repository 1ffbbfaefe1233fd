package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient creates an sdkClient pointing at a local test server.
func newTestClient(baseURL string) Client {
	return NewClient("test-key", option.WithBaseURL(baseURL), option.WithMaxRetries(0))
}

func writeMessage(t *testing.T, w http.ResponseWriter, content []map[string]any, stop string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"id":          "msg_test_001",
		"type":        "message",
		"role":        "assistant",
		"content":     content,
		"model":       "claude-sonnet-4-5-20250929",
		"stop_reason": stop,
		"usage": map[string]any{
			"input_tokens":                10,
			"output_tokens":               5,
			"cache_creation_input_tokens": 0,
			"cache_read_input_tokens":     0,
		},
	}))
}

func TestCreateMessage_Text(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		writeMessage(t, w, []map[string]any{{"type": "text", "text": "Hello from test"}}, "end_turn")
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		System:    "be brief",
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, "Hello from test", resp.Text())
	assert.Empty(t, resp.ToolUses())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
	assert.Equal(t, int64(5), resp.Usage.OutputTokens)
}

func TestCreateMessage_ToolRoundTrip(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))
		writeMessage(t, w, []map[string]any{
			{"type": "text", "text": "searching"},
			{"type": "tool_use", "id": "toolu_2", "name": "search", "input": map[string]any{"query": "\"acme.io\" CEO"}},
		}, "tool_use")
	}))
	defer ts.Close()

	resp, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages: []Message{
			{Role: "user", Content: "Find the CEO"},
			{Role: "assistant", Blocks: []ContentBlock{
				{Type: BlockToolUse, ID: "toolu_1", Name: "search", Input: json.RawMessage(`{"query":"acme"}`)},
			}},
			{Role: "user", Blocks: []ContentBlock{
				{Type: BlockToolResult, ToolUseID: "toolu_1", Text: "no results"},
			}},
		},
		Tools: []ToolDefinition{{
			Name:        "search",
			Description: "Search the web",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}},
		ToolChoice: &ToolChoice{Type: "auto"},
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_use", resp.StopReason)
	uses := resp.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "toolu_2", uses[0].ID)
	assert.Equal(t, "search", uses[0].Name)
	assert.JSONEq(t, `{"query":"\"acme.io\" CEO"}`, string(uses[0].Input))

	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	assert.Equal(t, "search", tools[0].(map[string]any)["name"])
	assert.Equal(t, "auto", body["tool_choice"].(map[string]any)["type"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	assistant := msgs[1].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_use", assistant["type"])
	assert.Equal(t, "toolu_1", assistant["id"])
	result := msgs[2].(map[string]any)["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", result["type"])
	assert.Equal(t, "toolu_1", result["tool_use_id"])
}

func TestCreateMessage_ForcedTool(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeMessage(t, w, []map[string]any{
			{"type": "tool_use", "id": "toolu_9", "name": "record", "input": map[string]any{"name": "Acme"}},
		}, "tool_use")
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:      "claude-haiku-4-5",
		MaxTokens:  256,
		Messages:   []Message{{Role: "user", Content: "extract"}},
		Tools:      []ToolDefinition{{Name: "record", InputSchema: map[string]any{"properties": map[string]any{}}}},
		ToolChoice: &ToolChoice{Type: "tool", Name: "record"},
	})
	require.NoError(t, err)
	choice := body["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, "record", choice["name"])
}

func TestCreateMessage_BadToolInput(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").CreateMessage(context.Background(), MessageRequest{
		Model: "claude-haiku-4-5",
		Messages: []Message{{Role: "assistant", Blocks: []ContentBlock{
			{Type: BlockToolUse, ID: "t", Name: "search", Input: json.RawMessage(`{not json`)},
		}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode tool input")
}

func TestCreateMessage_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"type": "error",
			"error": map[string]any{
				"type":    "api_error",
				"message": "Internal server error",
			},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "Hello"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic: create message")
}

func TestToSDKTools_RequiredFromAny(t *testing.T) {
	tools := toSDKTools([]ToolDefinition{{
		Name:        "t",
		InputSchema: map[string]any{"properties": map[string]any{}, "required": []any{"a", 3, "b"}},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, []string{"a", "b"}, tools[0].OfTool.InputSchema.Required)
}

func TestFromSDKMessage_EmptyContent(t *testing.T) {
	resp := fromSDKMessage(&sdk.Message{ID: "msg_empty"})
	assert.Equal(t, "msg_empty", resp.ID)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "", resp.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.00, usage.EstimateCost("claude-sonnet-4-5-20250929"), 0.001)
	assert.InDelta(t, 6.00, usage.EstimateCost("claude-haiku-4-5"), 0.001)
	assert.Equal(t, 0.0, usage.EstimateCost("unknown-model"))
	assert.Equal(t, 0.0, TokenUsage{}.EstimateCost("claude-haiku-4-5"))
}

func TestEstimateCost_WithCache(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              500_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     300_000,
	}
	// 0.5*3 + 0.1*15 + 0.2*3*1.25 + 0.3*3*0.1
	assert.InDelta(t, 3.84, usage.EstimateCost("claude-sonnet-4-5"), 0.001)
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		TokenUsage{InputTokens: 100, OutputTokens: 50}.LogCost("unknown-model", "research")
	})
}
