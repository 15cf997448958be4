// Package object generates JSON values that match a schema.
//
// Generate asks the model for a complete JSON document. Stream does the same
// but reports a best-effort partial value every time the repaired prefix of
// the output changes, which lets a UI render fields as they arrive:
//
//	parts, err := object.Stream(ctx, model, messages, object.WithSchema(schema))
//	for p := range parts {
//	    switch p.Type {
//	    case object.PartPartial:
//	        render(p.Partial.Value)
//	    case object.PartFinish:
//	        save(p.Object)
//	    case object.PartError:
//	        return p.Err
//	    }
//	}
//
// The final value is parsed strictly and validated against the schema.
package object

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/retry"
	"github.com/spetersoncode/loom/stream"
	"github.com/spetersoncode/loom/tool"
)

// NoObjectError is returned when the model output is not a JSON value that
// matches the schema.
type NoObjectError struct {
	// Text is the raw model output.
	Text   string
	Reason string
	Err    error
	// Response is the model response the text came from.
	Response *ai.GenerateResponse
}

func (e *NoObjectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("object: %s: %v", e.Reason, e.Err)
	}
	return "object: " + e.Reason
}

func (e *NoObjectError) Unwrap() error {
	return e.Err
}

type config struct {
	name        string
	description string
	schema      json.RawMessage
	callOpts    []ai.Option
	retry       retry.Policy
	decoderOpts []stream.Option
	logger      *slog.Logger
}

// Option configures Generate and Stream.
type Option func(*config)

// WithSchema sets the JSON schema the value must match. Without a schema
// any JSON value is accepted.
func WithSchema(schema json.RawMessage) Option {
	return func(c *config) {
		c.schema = schema
	}
}

// WithName names the schema for providers that use it, for example as the
// name of a forced tool.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// WithDescription describes the expected value to the model.
func WithDescription(desc string) Option {
	return func(c *config) {
		c.description = desc
	}
}

// WithCallOptions adds model call options such as temperature.
func WithCallOptions(opts ...ai.Option) Option {
	return func(c *config) {
		c.callOpts = append(c.callOpts, opts...)
	}
}

// WithRetryPolicy sets the retry policy of the model call.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *config) {
		c.retry = p
	}
}

// WithDecoderOptions configures the stream decoder.
func WithDecoderOptions(opts ...stream.Option) Option {
	return func(c *config) {
		c.decoderOpts = append(c.decoderOpts, opts...)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		name:   "response",
		retry:  retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) callOptions(messages []ai.Message) (ai.CallOptions, error) {
	opts := append([]ai.Option{}, c.callOpts...)
	opts = append(opts, ai.WithResponseFormat(ai.ResponseFormat{
		Type:        ai.ResponseFormatJSON,
		Schema:      c.schema,
		Name:        c.name,
		Description: c.description,
	}))
	call := ai.ApplyOptions(messages, opts...)
	if err := call.Validate(); err != nil {
		return ai.CallOptions{}, err
	}
	return call, nil
}

// validator checks final values against the schema.
type validator struct {
	resolved *jsonschema.Resolved
}

func newValidator(schema json.RawMessage) (*validator, error) {
	if len(schema) == 0 {
		return &validator{}, nil
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil, &ai.ConfigError{Field: "schema", Reason: err.Error()}
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, &ai.ConfigError{Field: "schema", Reason: err.Error()}
	}
	return &validator{resolved: resolved}, nil
}

// parse decodes text strictly and validates the value.
func (v *validator) parse(text string, resp *ai.GenerateResponse) (json.RawMessage, any, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, nil, &NoObjectError{Text: text, Reason: "output is not valid JSON", Err: err, Response: resp}
	}
	if v.resolved != nil {
		if err := v.resolved.Validate(value); err != nil {
			return nil, nil, &NoObjectError{Text: text, Reason: "output does not match the schema", Err: err, Response: resp}
		}
	}
	return json.RawMessage(text), value, nil
}

// SchemaFor reflects the schema of T, for use with WithSchema.
func SchemaFor[T any]() (json.RawMessage, error) {
	return tool.SchemaFor[T]()
}

// Into decodes a generated object into T.
func Into[T any](obj json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(obj, &v); err != nil {
		return v, fmt.Errorf("object: decode %T: %w", v, err)
	}
	return v, nil
}
