package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/stream"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "message": {
      "role": "assistant",
      "content": "Checking.",
      "tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}]
    },
    "finish_reason": "tool_calls"
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

var streamChunks = []string{
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"lo"}}]}`,
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"get_weather","arguments":"{\"ci"}}]}}]}`,
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Oslo\"}"}}]}}]}`,
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	`{"id":"chatcmpl-2","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`,
}

type recorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (r *recorder) add(body map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
}

func (r *recorder) requests() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.bodies...)
}

func newServer(t *testing.T, rec *recorder, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		if rec != nil {
			rec.add(m)
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New("test-key", GPT4o, WithBaseURL(srv.URL+"/"))
}

func sse(w http.ResponseWriter, chunks []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprintf(w, "data: %s\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func conversation() ai.CallOptions {
	return ai.ApplyOptions([]ai.Message{
		ai.NewSystemMessage("be brief"),
		ai.NewUserText("weather?"),
		ai.NewAssistantMessage(ai.NewToolCallPart(ai.ToolCall{ID: "call_0", Name: "get_weather", Input: json.RawMessage(`{"city":"Rome"}`)})),
		ai.NewToolMessage(ai.ToolResult{ToolCallID: "call_0", ToolName: "get_weather", Output: json.RawMessage(`"sunny"`)}),
	},
		ai.WithTools(ai.ToolDefinition{Name: "get_weather", InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`)}),
		ai.WithMaxOutputTokens(100),
		ai.WithTopK(3),
	)
}

func TestGenerate(t *testing.T) {
	rec := &recorder{}
	m := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON)
	})

	resp, err := m.Generate(context.Background(), conversation())
	require.NoError(t, err)

	assert.Equal(t, "Checking.", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(calls[0].Input))
	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.Total())
	assert.Equal(t, "chatcmpl-1", resp.Response.ID)
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "topK", resp.Warnings[0].Setting)

	require.Len(t, rec.requests(), 1)
	body := rec.requests()[0]
	assert.Equal(t, "gpt-4o", body["model"])
	assert.EqualValues(t, 100, body["max_completion_tokens"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	tool := msgs[3].(map[string]any)
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0", tool["tool_call_id"])
	assert.Len(t, body["tools"], 1)
}

func TestStream(t *testing.T) {
	rec := &recorder{}
	m := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		sse(w, streamChunks)
	})
	ctx := context.Background()

	raw, err := m.Stream(ctx, conversation())
	require.NoError(t, err)
	resp, err := stream.Collect(ctx, stream.NewDecoder().Decode(ctx, raw))
	require.NoError(t, err)

	assert.Equal(t, "Hello", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call_9", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(calls[0].Input))
	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.Total())
	assert.Equal(t, "chatcmpl-2", resp.Response.ID)

	require.Len(t, rec.requests(), 1)
	assert.Equal(t, true, rec.requests()[0]["stream"])
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		cat    ai.ErrorCategory
		delay  time.Duration
	}{
		{"rate limit", 429, map[string]string{"Retry-After": "2"}, ai.ErrorRateLimit, 2 * time.Second},
		{"server error", 503, nil, ai.ErrorTransient, 0},
		{"auth", 401, nil, ai.ErrorAuth, 0},
		{"bad request", 400, nil, ai.ErrorInvalidRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"message":"nope","type":"error"}}`)
			})

			for _, call := range []func() error{
				func() error { _, err := m.Generate(context.Background(), conversation()); return err },
				func() error { _, err := m.Stream(context.Background(), conversation()); return err },
			} {
				err := call()
				var up *ai.UpstreamError
				require.ErrorAs(t, err, &up)
				assert.Equal(t, tt.cat, up.Category())
				assert.Equal(t, tt.status, up.StatusCode())
				assert.Equal(t, tt.delay, up.RetryAfter())
			}
		})
	}
}

func TestConvertToolChoice(t *testing.T) {
	named := convertToolChoice(ai.ForceTool("get_weather"))
	require.NotNil(t, named.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "get_weather", named.OfChatCompletionNamedToolChoice.Function.Name)

	required := convertToolChoice(ai.ToolChoiceRequired)
	assert.Equal(t, "required", required.OfAuto.Value)
}

func TestCloseObjects(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.NewDecoder(strings.NewReader(
		`{"type":"object","properties":{"loc":{"type":"object","properties":{}},"tags":{"type":"array","items":{"type":"object"}}}}`,
	)).Decode(&schema))

	closeObjects(schema)

	assert.Equal(t, false, schema["additionalProperties"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, false, props["loc"].(map[string]any)["additionalProperties"])
	assert.Equal(t, false, props["tags"].(map[string]any)["items"].(map[string]any)["additionalProperties"])
}
