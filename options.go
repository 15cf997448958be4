package loom

import (
	"encoding/json"
	"maps"
	"slices"
)

// ResponseFormatType selects between free text and JSON output.
type ResponseFormatType string

const (
	ResponseFormatText ResponseFormatType = "text"
	ResponseFormatJSON ResponseFormatType = "json"
)

// ResponseFormat requests a specific output format from the model.
type ResponseFormat struct {
	Type        ResponseFormatType `json:"type"`
	Schema      json.RawMessage    `json:"schema,omitempty"`
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
}

// CallOptions contains everything a single model call needs.
type CallOptions struct {
	Messages         []Message
	Tools            []ToolDefinition
	ToolChoice       ToolChoice
	MaxOutputTokens  *int
	Temperature      *float64
	TopP             *float64
	TopK             *int
	PresencePenalty  *float64
	FrequencyPenalty *float64
	StopSequences    []string
	Seed             *int
	ResponseFormat   *ResponseFormat
	// IncludeRawChunks asks adapters to forward vendor chunks as raw events.
	IncludeRawChunks bool
	Headers          map[string]string
	// ProviderOptions carries vendor specific settings keyed by provider id.
	ProviderOptions map[string]any
}

// Option is a functional option for configuring a model call.
type Option func(*CallOptions)

// WithTools sets the tools the model may call.
func WithTools(tools ...ToolDefinition) Option {
	return func(o *CallOptions) {
		o.Tools = tools
	}
}

// WithToolChoice sets how the model uses tools.
func WithToolChoice(c ToolChoice) Option {
	return func(o *CallOptions) {
		o.ToolChoice = c
	}
}

// WithMaxOutputTokens sets the maximum number of tokens to generate.
func WithMaxOutputTokens(n int) Option {
	return func(o *CallOptions) {
		o.MaxOutputTokens = &n
	}
}

// WithTemperature sets the sampling temperature (0.0 to 2.0).
func WithTemperature(t float64) Option {
	return func(o *CallOptions) {
		o.Temperature = &t
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(o *CallOptions) {
		o.TopP = &p
	}
}

// WithTopK sets top-k sampling.
func WithTopK(k int) Option {
	return func(o *CallOptions) {
		o.TopK = &k
	}
}

// WithStopSequences sets sequences that end generation.
func WithStopSequences(seq ...string) Option {
	return func(o *CallOptions) {
		o.StopSequences = seq
	}
}

// WithSeed sets the sampling seed.
func WithSeed(seed int) Option {
	return func(o *CallOptions) {
		o.Seed = &seed
	}
}

// WithResponseFormat requests a specific output format.
func WithResponseFormat(rf ResponseFormat) Option {
	return func(o *CallOptions) {
		o.ResponseFormat = &rf
	}
}

// WithJSONSchema requests JSON output matching schema.
func WithJSONSchema(name string, schema json.RawMessage) Option {
	return WithResponseFormat(ResponseFormat{Type: ResponseFormatJSON, Name: name, Schema: schema})
}

// WithHeader adds an HTTP header to the request.
func WithHeader(key, value string) Option {
	return func(o *CallOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// WithProviderOption sets a vendor specific option.
func WithProviderOption(key string, value any) Option {
	return func(o *CallOptions) {
		if o.ProviderOptions == nil {
			o.ProviderOptions = make(map[string]any)
		}
		o.ProviderOptions[key] = value
	}
}

// WithRawChunks forwards vendor chunks as raw stream parts.
func WithRawChunks() Option {
	return func(o *CallOptions) {
		o.IncludeRawChunks = true
	}
}

// ApplyOptions builds CallOptions for messages from functional options.
func ApplyOptions(messages []Message, opts ...Option) CallOptions {
	o := CallOptions{Messages: messages}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Clone returns a copy whose slices and maps can be modified without
// affecting o. Messages themselves are shared since they are immutable.
func (o CallOptions) Clone() CallOptions {
	c := o
	c.Messages = slices.Clone(o.Messages)
	c.Tools = slices.Clone(o.Tools)
	c.StopSequences = slices.Clone(o.StopSequences)
	c.Headers = maps.Clone(o.Headers)
	c.ProviderOptions = maps.Clone(o.ProviderOptions)
	if o.ResponseFormat != nil {
		rf := *o.ResponseFormat
		c.ResponseFormat = &rf
	}
	return c
}

// Validate checks the options for problems that can be detected before any
// network activity. It returns a *ConfigError.
func (o CallOptions) Validate() error {
	if len(o.Messages) == 0 {
		return &ConfigError{Field: "messages", Reason: "at least one message is required"}
	}
	if o.MaxOutputTokens != nil && *o.MaxOutputTokens <= 0 {
		return &ConfigError{Field: "maxOutputTokens", Reason: "must be positive"}
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 2) {
		return &ConfigError{Field: "temperature", Reason: "must be between 0 and 2"}
	}
	seen := make(map[string]bool, len(o.Tools))
	for _, t := range o.Tools {
		if t.Name == "" {
			return &ConfigError{Field: "tools", Reason: "tool name is required"}
		}
		if seen[t.Name] {
			return &ConfigError{Field: "tools", Reason: "duplicate tool " + t.Name}
		}
		seen[t.Name] = true
	}
	if o.ToolChoice.IsSpecific() && !seen[string(o.ToolChoice)] {
		return &ConfigError{Field: "toolChoice", Reason: "unknown tool " + string(o.ToolChoice)}
	}
	return nil
}
