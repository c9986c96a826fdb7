package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultConfigName is the config file looked up in the working directory
// when --config is not given.
const DefaultConfigName = "ralph-loop"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"prompt":             "prompt",
	"prompt-file":        "prompt_file",
	"max-iterations":     "max_iterations",
	"completion-promise": "completion_promise",
	"output-dir":         "output_dir",
	"context-limit":      "context_limit.max_tokens",
	"verbose":            "verbose",
}

// Loader handles configuration loading with Viper.
type Loader struct {
	v          *viper.Viper
	configFile string
	searchDir  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), searchDir: "."}
}

// SetConfigFile sets an explicit config file path. A missing explicit file
// is an error.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetSearchDir changes where the default config file is looked up.
func (l *Loader) SetSearchDir(dir string) {
	l.searchDir = dir
}

// BindFlags lets flags that were set on the command line override every
// other source.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// Load loads configuration with proper precedence:
// defaults < config file < env vars < CLI flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setupViper(cfg)

	if err := l.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.PromptFile = expandTilde(cfg.PromptFile)
	cfg.OutputDir = expandTilde(cfg.OutputDir)
	cfg.WorkDir = expandTilde(cfg.WorkDir)
	cfg.ClaudePath = expandTilde(cfg.ClaudePath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file that was loaded, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) setupViper(cfg *Config) {
	v := l.v
	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath(l.searchDir)

	v.SetEnvPrefix("RALPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	l.setDefaults(cfg)
}

// setDefaults registers every key so AutomaticEnv and Unmarshal see it.
func (l *Loader) setDefaults(cfg *Config) {
	v := l.v
	v.SetDefault("prompt", cfg.Prompt)
	v.SetDefault("prompt_file", cfg.PromptFile)
	v.SetDefault("max_iterations", cfg.MaxIterations)
	v.SetDefault("completion_promise", cfg.CompletionPromise)
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("claude_path", cfg.ClaudePath)
	v.SetDefault("claude_args", cfg.ClaudeArgs)
	v.SetDefault("prompt_mode", cfg.PromptMode)
	v.SetDefault("work_dir", cfg.WorkDir)
	v.SetDefault("env", []string{})
	v.SetDefault("verbose", cfg.Verbose)

	v.SetDefault("context_limit.max_tokens", cfg.ContextLimit.MaxTokens)
	v.SetDefault("context_limit.warning_threshold", cfg.ContextLimit.WarningThreshold)
	v.SetDefault("context_limit.estimation_method", cfg.ContextLimit.EstimationMethod)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("notify.pushover.user_key", cfg.Notify.Pushover.UserKey)
	v.SetDefault("notify.pushover.app_token", cfg.Notify.Pushover.AppToken)
}

func (l *Loader) loadConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
		if ext := strings.TrimPrefix(filepath.Ext(l.configFile), "."); ext != "" && ext != "toml" {
			l.v.SetConfigType(ext)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && l.configFile == "" {
			return nil
		}
		if l.configFile != "" && errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", l.configFile)
		}
		return err
	}
	return nil
}

// expandTilde expands ~ to the user's home directory.
func expandTilde(path string) string {
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
