package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	ai "github.com/spetersoncode/loom"
)

// Context describes the call a tool is executing for.
type Context struct {
	// CallID is the id of the tool call.
	CallID string
	// Step is the loop step that requested the call.
	Step int
	// Messages is the conversation up to and including the assistant
	// message that requested the call. Tools must not modify it.
	Messages []ai.Message
}

// Tool is a function the model can call.
//
// Implementations are shared across loop iterations and may be executed
// concurrently.
type Tool interface {
	Definition() ai.ToolDefinition
	Execute(ctx context.Context, input json.RawMessage, tc Context) (json.RawMessage, error)
}

// TypedHandler executes a tool call with its input decoded into T.
type TypedHandler[T, R any] func(ctx context.Context, args T) (R, error)

// RawHandler executes a tool call with its raw JSON input.
type RawHandler func(ctx context.Context, input json.RawMessage, tc Context) (json.RawMessage, error)

type typedTool[T, R any] struct {
	def ai.ToolDefinition
	fn  TypedHandler[T, R]
}

// New creates a tool whose input schema is reflected from T. Fields are
// described with the `jsonschema` struct tag; fields without omitempty are
// required. The result R is marshaled to JSON.
//
// Example:
//
//	type WeatherArgs struct {
//	    Location string `json:"location" jsonschema:"city name"`
//	    Unit     string `json:"unit,omitempty" jsonschema:"celsius or fahrenheit"`
//	}
//
//	weather, err := tool.New("get_weather", "Get current weather",
//	    func(ctx context.Context, args WeatherArgs) (string, error) {
//	        return lookup(args.Location, args.Unit)
//	    })
func New[T, R any](name, description string, fn TypedHandler[T, R]) (Tool, error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return &typedTool[T, R]{
		def: ai.ToolDefinition{Name: name, Description: description, InputSchema: schema},
		fn:  fn,
	}, nil
}

// Func is like New but panics when the schema cannot be reflected.
func Func[T, R any](name, description string, fn TypedHandler[T, R]) Tool {
	t, err := New(name, description, fn)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *typedTool[T, R]) Definition() ai.ToolDefinition {
	return t.def
}

func (t *typedTool[T, R]) Execute(ctx context.Context, input json.RawMessage, _ Context) (json.RawMessage, error) {
	var args T
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, &Error{Kind: KindInvalidInput, Tool: t.def.Name, Err: err}
	}
	out, err := t.fn(ctx, args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

type rawTool struct {
	def ai.ToolDefinition
	fn  RawHandler
}

// NewRaw creates a tool from a definition and a raw handler. The input is
// validated against def.InputSchema by the Registry before fn runs.
func NewRaw(def ai.ToolDefinition, fn RawHandler) Tool {
	return &rawTool{def: def, fn: fn}
}

func (t *rawTool) Definition() ai.ToolDefinition {
	return t.def
}

func (t *rawTool) Execute(ctx context.Context, input json.RawMessage, tc Context) (json.RawMessage, error) {
	return t.fn(ctx, input, tc)
}

// SchemaFor reflects a JSON schema from T.
func SchemaFor[T any]() (json.RawMessage, error) {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// MustSchemaFor is like SchemaFor but panics on error.
func MustSchemaFor[T any]() json.RawMessage {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// compileSchema resolves a schema document for validation. An empty schema
// yields nil: the input is then only checked for being a JSON object.
func compileSchema(raw json.RawMessage) (*jsonschema.Resolved, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s.Resolve(nil)
}
