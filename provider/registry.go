// Package provider resolves "provider:model" ids into language models.
//
// A Registry maps provider ids to factories. Models are constructed on first
// use and cached, so repeated lookups of the same id share one client:
//
//	reg := provider.New(provider.Config{APIKeys: provider.APIKeys{OpenAI: key}})
//	model, err := reg.LanguageModel(ctx, "openai:gpt-4o")
//
// The vendor adapters live in the openai, anthropic, google and ollama
// subpackages.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	ai "github.com/spetersoncode/loom"
	"github.com/spetersoncode/loom/provider/anthropic"
	"github.com/spetersoncode/loom/provider/google"
	"github.com/spetersoncode/loom/provider/ollama"
	"github.com/spetersoncode/loom/provider/openai"
)

// DefaultSeparator splits provider and model in a composite id.
const DefaultSeparator = ":"

// Factory builds a model of one provider.
type Factory func(ctx context.Context, modelID string) (ai.LanguageModel, error)

// NoSuchProviderError is returned for an id naming an unregistered provider.
type NoSuchProviderError struct {
	ProviderID string
	Available  []string
}

func (e *NoSuchProviderError) Error() string {
	return fmt.Sprintf("no such provider %q (available: %s)", e.ProviderID, strings.Join(e.Available, ", "))
}

// InvalidModelIDError is returned for an id without the separator or with an
// empty part.
type InvalidModelIDError struct {
	ID        string
	Separator string
}

func (e *InvalidModelIDError) Error() string {
	return fmt.Sprintf("invalid model id %q: expected \"provider%smodel\"", e.ID, e.Separator)
}

// MissingAPIKeyError is returned when a provider is used without a key.
type MissingAPIKeyError struct {
	Provider string
	Model    string
}

func (e *MissingAPIKeyError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("no API key configured for %s (required by model %q)", e.Provider, e.Model)
	}
	return fmt.Sprintf("no API key configured for %s", e.Provider)
}

// Registry resolves composite model ids. It is safe for concurrent use.
type Registry struct {
	separator string

	mu        sync.RWMutex
	factories map[string]Factory
	models    map[string]ai.LanguageModel
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithSeparator changes the provider/model separator.
func WithSeparator(sep string) RegistryOption {
	return func(r *Registry) {
		if sep != "" {
			r.separator = sep
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		separator: DefaultSeparator,
		factories: make(map[string]Factory),
		models:    make(map[string]ai.LanguageModel),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider factory. Registering an id twice is an error.
func (r *Registry) Register(id string, f Factory) error {
	if id == "" || f == nil {
		return &ai.ConfigError{Field: "provider", Reason: "id and factory are required"}
	}
	if strings.Contains(id, r.separator) {
		return &ai.ConfigError{Field: "provider", Reason: fmt.Sprintf("id %q contains the separator %q", id, r.separator)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; ok {
		return &ai.ConfigError{Field: "provider", Reason: fmt.Sprintf("provider %q already registered", id)}
	}
	r.factories[id] = f
	return nil
}

// Providers returns the registered provider ids, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// LanguageModel resolves "provider:model", constructing the model on first
// use. Failed constructions are not cached.
func (r *Registry) LanguageModel(ctx context.Context, id string) (ai.LanguageModel, error) {
	r.mu.RLock()
	if m, ok := r.models[id]; ok {
		defer r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	providerID, modelID, err := r.split(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring the write lock.
	if m, ok := r.models[id]; ok {
		return m, nil
	}
	f, ok := r.factories[providerID]
	if !ok {
		available := make([]string, 0, len(r.factories))
		for k := range r.factories {
			available = append(available, k)
		}
		slices.Sort(available)
		return nil, &NoSuchProviderError{ProviderID: providerID, Available: available}
	}
	m, err := f(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", providerID, err)
	}
	r.models[id] = m
	return m, nil
}

func (r *Registry) split(id string) (string, string, error) {
	providerID, modelID, ok := strings.Cut(id, r.separator)
	if !ok || providerID == "" || modelID == "" {
		return "", "", &InvalidModelIDError{ID: id, Separator: r.separator}
	}
	return providerID, modelID, nil
}

// APIKeys holds credentials per provider. Only providers you use need one.
type APIKeys struct {
	OpenAI    string
	Anthropic string
	Google    string
}

// Config configures the built-in providers.
type Config struct {
	APIKeys APIKeys

	// OpenAIBaseURL points the openai provider at a compatible endpoint.
	OpenAIBaseURL string

	// OllamaHost is the Ollama server; empty selects ollama.DefaultHost.
	OllamaHost string

	// HTTPClient is shared by all providers when set.
	HTTPClient *http.Client
}

// New creates a registry with the openai, anthropic, google and ollama
// providers registered. A missing key fails at resolution time, not here.
func New(cfg Config, opts ...RegistryOption) *Registry {
	r := NewRegistry(opts...)
	for id, f := range builtins(cfg) {
		// Ids are distinct constants, so registration cannot fail.
		_ = r.Register(id, f)
	}
	return r
}

func builtins(cfg Config) map[string]Factory {
	return map[string]Factory{
		openai.ProviderID: func(_ context.Context, modelID string) (ai.LanguageModel, error) {
			if cfg.APIKeys.OpenAI == "" && cfg.OpenAIBaseURL == "" {
				return nil, &MissingAPIKeyError{Provider: openai.ProviderID, Model: modelID}
			}
			var opts []openai.Option
			if cfg.OpenAIBaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
			}
			if cfg.HTTPClient != nil {
				opts = append(opts, openai.WithHTTPClient(cfg.HTTPClient))
			}
			return openai.New(cfg.APIKeys.OpenAI, modelID, opts...), nil
		},
		anthropic.ProviderID: func(_ context.Context, modelID string) (ai.LanguageModel, error) {
			if cfg.APIKeys.Anthropic == "" {
				return nil, &MissingAPIKeyError{Provider: anthropic.ProviderID, Model: modelID}
			}
			var opts []anthropic.Option
			if cfg.HTTPClient != nil {
				opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
			}
			return anthropic.New(cfg.APIKeys.Anthropic, modelID, opts...), nil
		},
		google.ProviderID: func(ctx context.Context, modelID string) (ai.LanguageModel, error) {
			if cfg.APIKeys.Google == "" {
				return nil, &MissingAPIKeyError{Provider: google.ProviderID, Model: modelID}
			}
			var opts []google.Option
			if cfg.HTTPClient != nil {
				opts = append(opts, google.WithHTTPClient(cfg.HTTPClient))
			}
			m, err := google.New(ctx, cfg.APIKeys.Google, modelID, opts...)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		ollama.ProviderID: func(_ context.Context, modelID string) (ai.LanguageModel, error) {
			var opts []ollama.Option
			if cfg.HTTPClient != nil {
				opts = append(opts, ollama.WithHTTPClient(cfg.HTTPClient))
			}
			m, err := ollama.New(cfg.OllamaHost, modelID, opts...)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}
