package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/spetersoncode/loom/provider"
	"github.com/spetersoncode/loom/provider/anthropic"
	"github.com/spetersoncode/loom/provider/google"
	"github.com/spetersoncode/loom/provider/ollama"
	"github.com/spetersoncode/loom/provider/openai"
)

// defaultModels is used when no model is configured.
var defaultModels = map[string]string{
	openai.ProviderID:    "gpt-4.1-mini",
	anthropic.ProviderID: "claude-sonnet-4-5",
	google.ProviderID:    "gemini-2.5-flash",
	ollama.ProviderID:    "llama3.2",
}

// Config holds the CLI configuration. Values come from the TOML file, then
// environment variables override them.
type Config struct {
	Provider string        `toml:"provider"`
	Model    string        `toml:"model"`
	MaxSteps int           `toml:"max_steps"`
	Timeout  time.Duration `toml:"timeout"`
	LogLevel string        `toml:"log_level"`

	// ToolTimeout bounds a single tool call.
	ToolTimeout time.Duration `toml:"tool_timeout"`

	// Workspace is the root of the file tools.
	Workspace string `toml:"workspace"`
	// DB is the SQLite file holding sessions.
	DB string `toml:"db"`
	// Addr is the listen address of `loom serve`.
	Addr string `toml:"addr"`
	// Approve lists tools that need approval in `loom serve`.
	Approve []string `toml:"approve"`

	Keys          Keys   `toml:"keys"`
	OpenAIBaseURL string `toml:"openai_base_url"`
	OllamaHost    string `toml:"ollama_host"`

	MCP []MCPServer `toml:"mcp"`
}

// Keys holds provider API keys.
type Keys struct {
	OpenAI    string `toml:"openai"`
	Anthropic string `toml:"anthropic"`
	Google    string `toml:"google"`
}

// MCPServer is a remote MCP server whose tools are added to the agent.
type MCPServer struct {
	Name    string   `toml:"name"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
	URL     string   `toml:"url"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Provider:  openai.ProviderID,
		MaxSteps:  10,
		Timeout:     2 * time.Minute,
		LogLevel:    "info",
		ToolTimeout: 30 * time.Second,
		Workspace:   ".",
		DB:          "loom.db",
		Addr:        ":8000",
	}
}

// LoadConfig loads a .env file if present, then the TOML file at path if it
// exists, then applies environment overrides. Callers validate the result.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "LOOM_PROVIDER")
	setString(&c.Model, "LOOM_MODEL")
	setString(&c.LogLevel, "LOOM_LOG_LEVEL")
	setString(&c.Workspace, "LOOM_WORKSPACE")
	setString(&c.DB, "LOOM_DB")
	setString(&c.Addr, "LOOM_ADDR")
	setString(&c.Keys.OpenAI, "OPENAI_API_KEY")
	setString(&c.Keys.Anthropic, "ANTHROPIC_API_KEY")
	setString(&c.Keys.Google, "GOOGLE_API_KEY")
	setString(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&c.OllamaHost, "OLLAMA_HOST")

	if v := os.Getenv("LOOM_MAX_STEPS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOOM_MAX_STEPS: %w", err)
		}
		c.MaxSteps = n
	}
	if v := os.Getenv("LOOM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LOOM_TIMEOUT: %w", err)
		}
		c.Timeout = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is complete for running agents.
func (c *Config) Validate() error {
	if err := c.ValidateTools(); err != nil {
		return err
	}

	switch c.Provider {
	case openai.ProviderID:
		if c.Keys.OpenAI == "" && c.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for openai provider")
		}
	case anthropic.ProviderID:
		if c.Keys.Anthropic == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required for anthropic provider")
		}
	case google.ProviderID:
		if c.Keys.Google == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for google provider")
		}
	case ollama.ProviderID:
	case "":
		return fmt.Errorf("LOOM_PROVIDER is required (openai, anthropic, google, or ollama)")
	default:
		return fmt.Errorf("unknown provider: %s (must be openai, anthropic, google, or ollama)", c.Provider)
	}

	if c.Model == "" {
		return fmt.Errorf("LOOM_MODEL is required for provider %s", c.Provider)
	}
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be at least 1, got %d", c.MaxSteps)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// ValidateTools checks the settings needed to serve tools without a model.
func (c *Config) ValidateTools() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Workspace == "" {
		return fmt.Errorf("workspace must not be empty")
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout must not be negative, got %s", c.ToolTimeout)
	}
	for i, s := range c.MCP {
		if (s.Command == "") == (s.URL == "") {
			return fmt.Errorf("mcp server %d (%s): exactly one of command and url is required", i, s.Name)
		}
	}
	return nil
}

// ModelID returns the "provider:model" id of the configured model.
func (c *Config) ModelID() string {
	return c.Provider + ":" + c.Model
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// Providers returns the provider registry configured with the keys.
func (c *Config) Providers() *provider.Registry {
	return provider.New(provider.Config{
		APIKeys: provider.APIKeys{
			OpenAI:    c.Keys.OpenAI,
			Anthropic: c.Keys.Anthropic,
			Google:    c.Keys.Google,
		},
		OpenAIBaseURL: c.OpenAIBaseURL,
		OllamaHost:    c.OllamaHost,
	})
}
