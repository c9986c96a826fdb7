package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "TASK COMPLETE", cfg.CompletionPromise)
	assert.Equal(t, ".ralph-loop-output", cfg.OutputDir)
	assert.Equal(t, 180000, cfg.ContextLimit.MaxTokens)
	assert.Equal(t, 150000, cfg.ContextLimit.WarningThreshold)
	assert.Equal(t, 0, cfg.MaxIterations)
	assert.Contains(t, cfg.ClaudeArgs, "stream-json")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative iterations", func(c *Config) { c.MaxIterations = -1 }, "max_iterations"},
		{"empty promise", func(c *Config) { c.CompletionPromise = " " }, "completion_promise"},
		{"empty output", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"zero max tokens", func(c *Config) { c.ContextLimit.MaxTokens = 0 }, "max_tokens"},
		{"bad estimator", func(c *Config) { c.ContextLimit.EstimationMethod = "magic" }, "magic"},
		{"bad prompt mode", func(c *Config) { c.PromptMode = "pipe" }, "pipe"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "loud"},
		{"bad env entry", func(c *Config) { c.Env = []string{"NOEQUALS"} }, "NOEQUALS"},
		{"half pushover", func(c *Config) { c.Notify.Pushover.UserKey = "u" }, "pushover"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolvePrompt(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "PROMPT.md")
	require.NoError(t, os.WriteFile(file, []byte("from file\n"), 0o644))

	t.Run("inline", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Prompt = "inline"
		got, err := cfg.ResolvePrompt()
		require.NoError(t, err)
		assert.Equal(t, "inline", got)
	})

	t.Run("file wins", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Prompt = "inline"
		cfg.PromptFile = file
		got, err := cfg.ResolvePrompt()
		require.NoError(t, err)
		assert.Equal(t, "from file\n", got)
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PromptFile = filepath.Join(dir, "nope.md")
		_, err := cfg.ResolvePrompt()
		var pfe *PromptFileError
		require.ErrorAs(t, err, &pfe)
		assert.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DefaultConfig().ResolvePrompt()
		require.ErrorIs(t, err, ErrNoPrompt)
	})
}

func TestLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.LogLevel())
	cfg.Verbose = true
	assert.Equal(t, "debug", cfg.LogLevel())
}
