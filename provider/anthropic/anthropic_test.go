package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/stream"
)

const messageJSON = `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-sonnet-4-5",
  "content": [
    {"type": "thinking", "thinking": "user wants weather", "signature": "sig"},
    {"type": "text", "text": "Let me check."},
    {"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Paris"}}
  ],
  "stop_reason": "tool_use",
  "usage": {"input_tokens": 12, "output_tokens": 8}
}`

var streamEvents = []string{
	`{"type":"message_start","message":{"id":"msg_2","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"usage":{"input_tokens":9,"output_tokens":1}}}`,
	`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
	`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
	`{"type":"content_block_stop","index":0}`,
	`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_9","name":"get_weather","input":{}}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
	`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`,
	`{"type":"content_block_stop","index":1}`,
	`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":6}}`,
	`{"type":"message_stop"}`,
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
	return New("test-key", ClaudeSonnet45, WithBaseURL(srv.URL+"/"))
}

func sse(w http.ResponseWriter, events []string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, e := range events {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal([]byte(e), &head)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", head.Type, e)
	}
}

func conversation(opts ...ai.Option) ai.CallOptions {
	opts = append([]ai.Option{
		ai.WithTools(ai.ToolDefinition{
			Name:        "get_weather",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`),
		}),
		ai.WithSeed(1),
	}, opts...)
	return ai.ApplyOptions([]ai.Message{
		ai.NewSystemMessage("be brief"),
		ai.NewUserText("weather?"),
		ai.NewAssistantMessage(ai.NewToolCallPart(ai.ToolCall{ID: "toolu_0", Name: "get_weather", Input: json.RawMessage(`{"city":"Rome"}`)})),
		ai.NewToolMessage(ai.ToolResult{ToolCallID: "toolu_0", ToolName: "get_weather", Output: json.RawMessage(`"sunny"`)}),
	}, opts...)
}

func TestGenerate(t *testing.T) {
	rec := &recorder{}
	m := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, messageJSON)
	})

	resp, err := m.Generate(context.Background(), conversation())
	require.NoError(t, err)

	require.Len(t, resp.Content, 3)
	assert.Equal(t, ai.ContentPartTypeReasoning, resp.Content[0].Type)
	assert.Equal(t, "Let me check.", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_1", calls[0].ID)
	assert.JSONEq(t, `{"city":"Paris"}`, string(calls[0].Input))
	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, 20, resp.Usage.Total())
	require.Len(t, resp.Warnings, 1)
	assert.Equal(t, "seed", resp.Warnings[0].Setting)

	require.Len(t, rec.requests(), 1)
	body := rec.requests()[0]
	assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
	system := body["system"].([]any)
	assert.Equal(t, "be brief", system[0].(map[string]any)["text"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 3)
	last := msgs[2].(map[string]any)
	assert.Equal(t, "user", last["role"])
	block := last["content"].([]any)[0].(map[string]any)
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "toolu_0", block["tool_use_id"])
}

func TestGenerateJSON(t *testing.T) {
	rec := &recorder{}
	m := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_3","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"tool_use","id":"toolu_j","name":"json_response","input":{"name":"Ada"}}],
			"stop_reason":"tool_use","usage":{"input_tokens":3,"output_tokens":2}}`)
	})

	opts := ai.ApplyOptions([]ai.Message{ai.NewUserText("who?")},
		ai.WithJSONSchema("person", json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`)))
	resp, err := m.Generate(context.Background(), opts)
	require.NoError(t, err)

	assert.JSONEq(t, `{"name":"Ada"}`, resp.Text())
	assert.Empty(t, resp.ToolCalls())
	assert.Equal(t, ai.FinishStop, resp.FinishReason)

	choice := rec.requests()[0]["tool_choice"].(map[string]any)
	assert.Equal(t, "tool", choice["type"])
	assert.Equal(t, jsonToolName, choice["name"])
}

func TestStream(t *testing.T) {
	m := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		sse(w, streamEvents)
	})
	ctx := context.Background()

	raw, err := m.Stream(ctx, conversation())
	require.NoError(t, err)
	resp, err := stream.Collect(ctx, stream.NewDecoder().Decode(ctx, raw))
	require.NoError(t, err)

	assert.Equal(t, "Hi", resp.Text())
	calls := resp.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "toolu_9", calls[0].ID)
	assert.JSONEq(t, `{"city":"Oslo"}`, string(calls[0].Input))
	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	assert.Equal(t, 9, *resp.Usage.InputTokens)
	assert.Equal(t, 6, *resp.Usage.OutputTokens)
	assert.Equal(t, "msg_2", resp.Response.ID)
}

func TestRateLimit(t *testing.T) {
	m := newServer(t, nil, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	})

	_, err := m.Stream(context.Background(), conversation())
	var up *ai.UpstreamError
	require.ErrorAs(t, err, &up)
	assert.Equal(t, ai.ErrorRateLimit, up.Category())
	assert.Equal(t, 4*time.Second, up.RetryAfter())
}

func TestFinishReason(t *testing.T) {
	tests := []struct {
		reason string
		tools  bool
		want   ai.FinishReason
	}{
		{"end_turn", false, ai.FinishStop},
		{"stop_sequence", false, ai.FinishStop},
		{"max_tokens", false, ai.FinishLength},
		{"tool_use", true, ai.FinishToolCalls},
		{"tool_use", false, ai.FinishStop},
		{"refusal", false, ai.FinishContentFilter},
		{"pause_turn", false, ai.FinishOther},
		{"", false, ai.FinishUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, finishReason(tt.reason, tt.tools), tt.reason)
	}
}

func TestFileBlock(t *testing.T) {
	_, err := fileBlock(&ai.File{MediaType: "audio/wav", Data: []byte{1}})
	var cfg *ai.ConfigError
	assert.ErrorAs(t, err, &cfg)

	block, err := fileBlock(&ai.File{MediaType: "image/png", Data: []byte{1}})
	require.NoError(t, err)
	assert.NotNil(t, block.OfImage)
}
