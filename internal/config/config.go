// Package config defines the ralph-loop configuration and loads it from
// defaults, a TOML file, RALPH_* environment variables and command-line
// flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/process"
	"github.com/agusx1211/ralphloop/internal/tokens"
)

// ErrNoPrompt is returned when neither a prompt nor a prompt file is set.
var ErrNoPrompt = errors.New("no prompt provided: use --prompt or --prompt-file")

// PromptFileError reports an unreadable prompt file.
type PromptFileError struct {
	Path string
	Err  error
}

func (e *PromptFileError) Error() string {
	return fmt.Sprintf("failed to read prompt file %s: %v", e.Path, e.Err)
}

func (e *PromptFileError) Unwrap() error { return e.Err }

// Config is the complete run configuration.
type Config struct {
	Prompt            string             `mapstructure:"prompt"`
	PromptFile        string             `mapstructure:"prompt_file"`
	MaxIterations     int                `mapstructure:"max_iterations"`
	CompletionPromise string             `mapstructure:"completion_promise"`
	OutputDir         string             `mapstructure:"output_dir"`
	ClaudePath        string             `mapstructure:"claude_path"`
	ClaudeArgs        []string           `mapstructure:"claude_args"`
	PromptMode        string             `mapstructure:"prompt_mode"`
	WorkDir           string             `mapstructure:"work_dir"`
	Env               []string           `mapstructure:"env"`
	ContextLimit      ContextLimitConfig `mapstructure:"context_limit"`
	Logging           LoggingConfig      `mapstructure:"logging"`
	Notify            NotifyConfig       `mapstructure:"notify"`
	Verbose           bool               `mapstructure:"verbose"`
}

// ContextLimitConfig bounds the tokens a single iteration may use.
type ContextLimitConfig struct {
	MaxTokens        int    `mapstructure:"max_tokens"`
	WarningThreshold int    `mapstructure:"warning_threshold"`
	EstimationMethod string `mapstructure:"estimation_method"`
}

// LoggingConfig configures console logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NotifyConfig configures the end-of-run notification.
type NotifyConfig struct {
	Pushover PushoverConfig `mapstructure:"pushover"`
}

// PushoverConfig holds Pushover credentials. Both keys empty disables it.
type PushoverConfig struct {
	UserKey  string `mapstructure:"user_key"`
	AppToken string `mapstructure:"app_token"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		CompletionPromise: "TASK COMPLETE",
		OutputDir:         ".ralph-loop-output",
		ClaudePath:        "claude",
		ClaudeArgs: []string{
			"--print",
			"--output-format", "stream-json",
			"--verbose",
			"--dangerously-skip-permissions",
		},
		PromptMode: string(process.ModeStdin),
		ContextLimit: ContextLimitConfig{
			MaxTokens:        180000,
			WarningThreshold: 150000,
			EstimationMethod: tokens.MethodTiktoken,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for consistency. It does not require a
// prompt; see ResolvePrompt.
func (c *Config) Validate() error {
	var errs []string

	if c.MaxIterations < 0 {
		errs = append(errs, "max_iterations must be >= 0")
	}
	if strings.TrimSpace(c.CompletionPromise) == "" {
		errs = append(errs, "completion_promise must not be empty")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, "output_dir must not be empty")
	}
	if strings.TrimSpace(c.ClaudePath) == "" {
		errs = append(errs, "claude_path must not be empty")
	}
	if c.ContextLimit.MaxTokens <= 0 {
		errs = append(errs, "context_limit.max_tokens must be > 0")
	}
	if c.ContextLimit.WarningThreshold < 0 {
		errs = append(errs, "context_limit.warning_threshold must be >= 0")
	}
	if _, err := tokens.New(c.ContextLimit.EstimationMethod); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.EnvVars(); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := process.ParseMode(c.PromptMode); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if p := c.Notify.Pushover; (p.UserKey == "") != (p.AppToken == "") {
		errs = append(errs, "notify.pushover needs both user_key and app_token")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ResolvePrompt returns the prompt text. A prompt file takes precedence over
// an inline prompt.
func (c *Config) ResolvePrompt() (string, error) {
	if c.PromptFile != "" {
		data, err := os.ReadFile(c.PromptFile)
		if err != nil {
			return "", &PromptFileError{Path: c.PromptFile, Err: err}
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", ErrNoPrompt
		}
		return string(data), nil
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return "", ErrNoPrompt
	}
	return c.Prompt, nil
}

// EnvVars parses the KEY=VALUE entries of Env. Keys keep their case.
func (c *Config) EnvVars() (map[string]string, error) {
	if len(c.Env) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(c.Env))
	for _, kv := range c.Env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("env entry %q is not KEY=VALUE", kv)
		}
		vars[k] = v
	}
	return vars, nil
}

// LogLevel returns the effective log level; verbose forces debug.
func (c *Config) LogLevel() string {
	if c.Verbose {
		return "debug"
	}
	return c.Logging.Level
}
