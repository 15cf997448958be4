package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/internal/testutil"
	"github.com/spetersoncode/loom/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recorder appends to a shared trace at every hook.
type recorder struct {
	Base
	name  string
	mu    *sync.Mutex
	trace *[]string
}

func (r recorder) log(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.trace = append(*r.trace, r.name+":"+s)
}

func (r recorder) TransformParams(_ context.Context, _ CallType, opts ai.CallOptions, _ ai.LanguageModel) (ai.CallOptions, error) {
	r.log("transform")
	opts.StopSequences = append(opts.StopSequences, r.name)
	return opts, nil
}

func (r recorder) WrapGenerate(ctx context.Context, generate GenerateFunc, _ StreamFunc, _ ai.CallOptions, _ ai.LanguageModel) (*ai.GenerateResponse, error) {
	r.log("before")
	resp, err := generate(ctx)
	r.log("after")
	return resp, err
}

func newRecorders(names ...string) ([]Middleware, *[]string) {
	var mu sync.Mutex
	trace := &[]string{}
	mws := make([]Middleware, len(names))
	for i, n := range names {
		mws[i] = recorder{name: n, mu: &mu, trace: trace}
	}
	return mws, trace
}

func TestWrapOnionOrder(t *testing.T) {
	model := testutil.NewModel(testutil.Text("hi"))
	mws, trace := newRecorders("first", "second", "third")

	wrapped := Wrap(model, mws...)
	_, err := wrapped.Generate(context.Background(), ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first:transform", "first:before",
		"second:transform", "second:before",
		"third:transform", "third:before",
		"third:after", "second:after", "first:after",
	}, *trace)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"first", "second", "third"}, calls[0].StopSequences,
		"parameter transforms apply in registration order")
}

func TestWrapNoMiddleware(t *testing.T) {
	model := testutil.NewModel()
	assert.Same(t, ai.LanguageModel(model), Wrap(model))
}

func TestOverridesOutermostWins(t *testing.T) {
	model := testutil.NewModel()

	wrapped := Wrap(model, ForceModelID("outer"), ForceModelID("inner"), ForceProvider("proxy"))
	assert.Equal(t, "outer", wrapped.ModelID())
	assert.Equal(t, "proxy", wrapped.Provider())

	plain := Wrap(model, Logging(slog.Default()))
	assert.Equal(t, "scripted", plain.ModelID())
	assert.Equal(t, "test", plain.Provider())
}

type bypass struct {
	Base
}

func (bypass) WrapGenerate(context.Context, GenerateFunc, StreamFunc, ai.CallOptions, ai.LanguageModel) (*ai.GenerateResponse, error) {
	return &ai.GenerateResponse{Content: []ai.ContentPart{ai.NewTextPart("cached")}, FinishReason: ai.FinishStop}, nil
}

func TestMiddlewareCanBypassInnerLayers(t *testing.T) {
	model := testutil.NewModel()
	mws, trace := newRecorders("inner")

	resp, err := Wrap(model, append([]Middleware{bypass{}}, mws...)...).
		Generate(context.Background(), ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
	require.NoError(t, err)

	assert.Equal(t, "cached", resp.Text())
	assert.Empty(t, *trace)
	assert.Zero(t, model.CallCount())
}

type failingTransform struct {
	Base
}

func (failingTransform) TransformParams(context.Context, CallType, ai.CallOptions, ai.LanguageModel) (ai.CallOptions, error) {
	return ai.CallOptions{}, &ai.ConfigError{Field: "temperature", Reason: "rejected"}
}

func TestTransformError(t *testing.T) {
	model := testutil.NewModel(testutil.Text("unused"))
	_, err := Wrap(model, failingTransform{}).Stream(context.Background(), ai.CallOptions{})

	var cfg *ai.ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Zero(t, model.CallCount())
}

func TestDefaultSettings(t *testing.T) {
	model := testutil.NewModel(testutil.Text("ok"))
	defaults := ai.ApplyOptions(nil,
		ai.WithTemperature(0.2),
		ai.WithMaxOutputTokens(256),
		ai.WithHeader("X-Team", "core"),
		ai.WithHeader("X-Env", "dev"),
		ai.WithProviderOption("openai", map[string]any{"user": "u1"}),
	)

	wrapped := Wrap(model, DefaultSettings(defaults))
	_, err := wrapped.Generate(context.Background(), ai.ApplyOptions(
		[]ai.Message{ai.NewUserText("q")},
		ai.WithTemperature(0.9),
		ai.WithHeader("X-Env", "prod"),
	))
	require.NoError(t, err)

	got := model.Calls()[0]
	assert.InDelta(t, 0.9, *got.Temperature, 1e-9, "explicit call values win")
	assert.Equal(t, 256, *got.MaxOutputTokens)
	assert.Equal(t, map[string]string{"X-Team": "core", "X-Env": "prod"}, got.Headers)
	assert.Contains(t, got.ProviderOptions, "openai")
	assert.Len(t, got.Messages, 1)
}

func TestSimulateStreaming(t *testing.T) {
	model := testutil.NewModel(testutil.ToolCalls(testutil.Call("call_1", "lookup", map[string]int{"id": 3})))
	wrapped := Wrap(model, SimulateStreaming())

	ctx := context.Background()
	src, err := wrapped.Stream(ctx, ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
	require.NoError(t, err)

	resp, err := stream.Collect(ctx, stream.NewDecoder().Decode(ctx, src))
	require.NoError(t, err)

	assert.Equal(t, ai.FinishToolCalls, resp.FinishReason)
	require.Len(t, resp.ToolCalls(), 1)
	assert.Equal(t, "call_1", resp.ToolCalls()[0].ID)
	assert.JSONEq(t, `{"id":3}`, string(resp.ToolCalls()[0].Input))
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	t.Run("generate", func(t *testing.T) {
		buf.Reset()
		model := testutil.NewModel(testutil.Text("ok"))
		_, err := Wrap(model, Logging(logger)).Generate(context.Background(), ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "model call complete")
		assert.Contains(t, buf.String(), "finish_reason=stop")
	})

	t.Run("stream", func(t *testing.T) {
		buf.Reset()
		model := testutil.NewModel(testutil.Text("ok"))
		src, err := Wrap(model, Logging(logger)).Stream(context.Background(), ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
		require.NoError(t, err)
		for range src {
		}
		assert.Contains(t, buf.String(), "model stream complete")
	})

	t.Run("failure", func(t *testing.T) {
		buf.Reset()
		model := testutil.NewModel(testutil.Fail(errors.New("boom")))
		_, err := Wrap(model, Logging(logger)).Generate(context.Background(), ai.ApplyOptions([]ai.Message{ai.NewUserText("q")}))
		require.Error(t, err)
		assert.Contains(t, buf.String(), "model call failed")
	})
}

func TestMerge(t *testing.T) {
	base := ai.ApplyOptions(nil, ai.WithStopSequences("END"), ai.WithSeed(7))
	call := ai.ApplyOptions([]ai.Message{ai.NewUserText("q")})

	merged := Merge(base, call)
	assert.Equal(t, []string{"END"}, merged.StopSequences)
	assert.Equal(t, 7, *merged.Seed)
	assert.Nil(t, call.Seed, "inputs are not modified")
}
