package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable LoadConfig reads. Empty values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOOM_PROVIDER", "LOOM_MODEL", "LOOM_LOG_LEVEL", "LOOM_WORKSPACE", "LOOM_DB", "LOOM_ADDR",
		"LOOM_MAX_STEPS", "LOOM_TIMEOUT",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "OPENAI_BASE_URL", "OLLAMA_HOST",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider)
	assert.Equal(t, "gpt-4.1-mini", cfg.Model)
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "openai:gpt-4.1-mini", cfg.ModelID())

	assert.ErrorContains(t, cfg.Validate(), "OPENAI_API_KEY")
	assert.NoError(t, cfg.ValidateTools())
}

func TestLoadConfigFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider = "anthropic"
max_steps = 4
timeout = "30s"
log_level = "debug"
approve = ["http_request"]

[keys]
anthropic = "sk-ant"

[[mcp]]
name = "files"
command = "mcp-files"
args = ["--root", "/tmp"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "anthropic:claude-sonnet-4-5", cfg.ModelID())
	assert.Equal(t, 4, cfg.MaxSteps)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http_request"}, cfg.Approve)
	require.Len(t, cfg.MCP, 1)
	assert.Equal(t, []string{"--root", "/tmp"}, cfg.MCP[0].Args)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider = "anthropic"
model = "claude-haiku"
`)
	t.Setenv("LOOM_PROVIDER", "ollama")
	t.Setenv("LOOM_MODEL", "qwen3")
	t.Setenv("LOOM_MAX_STEPS", "3")
	t.Setenv("LOOM_TIMEOUT", "1m")
	t.Setenv("OLLAMA_HOST", "http://gpu:11434")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ollama:qwen3", cfg.ModelID())
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.Equal(t, time.Minute, cfg.Timeout)
	assert.Equal(t, "http://gpu:11434", cfg.OllamaHost)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("malformed file", func(t *testing.T) {
		clearEnv(t)
		_, err := LoadConfig(writeConfig(t, `provider = `))
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("malformed max steps", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LOOM_MAX_STEPS", "many")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "LOOM_MAX_STEPS")
	})

	t.Run("malformed timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("LOOM_TIMEOUT", "soon")
		_, err := LoadConfig("")
		assert.ErrorContains(t, err, "LOOM_TIMEOUT")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Model = "gpt-4.1-mini"
		cfg.Keys.OpenAI = "sk"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"openai compatible endpoint without key", func(c *Config) { c.Keys.OpenAI = ""; c.OpenAIBaseURL = "http://localhost:8080/v1" }, ""},
		{"ollama needs no key", func(c *Config) { c.Provider = "ollama" }, ""},
		{"no provider", func(c *Config) { c.Provider = "" }, "LOOM_PROVIDER is required"},
		{"unknown provider", func(c *Config) { c.Provider = "mistral" }, "unknown provider"},
		{"missing google key", func(c *Config) { c.Provider = "google" }, "GOOGLE_API_KEY"},
		{"no model", func(c *Config) { c.Model = "" }, "LOOM_MODEL is required"},
		{"zero steps", func(c *Config) { c.MaxSteps = 0 }, "max_steps"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"empty workspace", func(c *Config) { c.Workspace = "" }, "workspace"},
		{"mcp server without transport", func(c *Config) { c.MCP = []MCPServer{{Name: "x"}} }, "exactly one of command and url"},
		{"mcp server with both transports", func(c *Config) {
			c.MCP = []MCPServer{{Name: "x", Command: "srv", URL: "http://localhost/sse"}}
		}, "exactly one of command and url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestProviders(t *testing.T) {
	cfg := DefaultConfig()
	assert.ElementsMatch(t, []string{"openai", "anthropic", "google", "ollama"}, cfg.Providers().Providers())
}
