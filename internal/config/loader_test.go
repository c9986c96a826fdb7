package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("prompt", "p", "", "")
	fs.StringP("prompt-file", "f", "", "")
	fs.IntP("max-iterations", "m", 0, "")
	fs.StringP("completion-promise", "c", "TASK COMPLETE", "")
	fs.StringP("output-dir", "o", ".ralph-loop-output", "")
	fs.Int("context-limit", 180000, "")
	fs.BoolP("verbose", "v", false, "")
	return fs
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultConfigName+".toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	l := NewLoader()
	l.SetSearchDir(t.TempDir())
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), withEmptyEnv(cfg))
	assert.Empty(t, l.ConfigFileUsed())
}

// withEmptyEnv normalises an empty env list so it compares equal to the defaults.
func withEmptyEnv(cfg *Config) *Config {
	if len(cfg.Env) == 0 {
		cfg.Env = nil
	}
	return cfg
}

func TestLoadDiscoversFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
prompt = "from toml"
max_iterations = 7
completion_promise = "DONE"
claude_args = ["--print", "--output-format", "stream-json"]
prompt_mode = "arg"
env = ["FOO=bar", "EMPTY="]

[context_limit]
max_tokens = 1000
warning_threshold = 800
estimation_method = "char_ratio"

[logging]
level = "warn"
format = "json"
`)
	l := NewLoader()
	l.SetSearchDir(dir)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "from toml", cfg.Prompt)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Equal(t, "DONE", cfg.CompletionPromise)
	assert.Equal(t, []string{"--print", "--output-format", "stream-json"}, cfg.ClaudeArgs)
	assert.Equal(t, "arg", cfg.PromptMode)
	vars, err := cfg.EnvVars()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"FOO": "bar", "EMPTY": ""}, vars)
	assert.Equal(t, 1000, cfg.ContextLimit.MaxTokens)
	assert.Equal(t, 800, cfg.ContextLimit.WarningThreshold)
	assert.Equal(t, "char_ratio", cfg.ContextLimit.EstimationMethod)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ".ralph-loop-output", cfg.OutputDir)
	assert.NotEmpty(t, l.ConfigFileUsed())
}

func TestLoadExplicitMissingFile(t *testing.T) {
	l := NewLoader()
	l.SetConfigFile(filepath.Join(t.TempDir(), "absent.toml"))
	_, err := l.Load()
	require.Error(t, err)
}

func TestLoadInvalidFileFailsValidation(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "max_iterations = -3\n")
	l := NewLoader()
	l.SetConfigFile(path)
	_, err := l.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "max_iterations = 3\n[context_limit]\nmax_tokens = 500\n")
	t.Setenv("RALPH_MAX_ITERATIONS", "9")
	t.Setenv("RALPH_CONTEXT_LIMIT_MAX_TOKENS", "42")

	l := NewLoader()
	l.SetSearchDir(dir)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxIterations)
	assert.Equal(t, 42, cfg.ContextLimit.MaxTokens)
}

func TestPushoverFromEnv(t *testing.T) {
	t.Setenv("RALPH_NOTIFY_PUSHOVER_USER_KEY", "user")
	t.Setenv("RALPH_NOTIFY_PUSHOVER_APP_TOKEN", "token")
	l := NewLoader()
	l.SetSearchDir(t.TempDir())
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, PushoverConfig{UserKey: "user", AppToken: "token"}, cfg.Notify.Pushover)
}

func TestFlagsOverrideEverything(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
prompt = "file prompt"
max_iterations = 3
output_dir = "from-file"
[context_limit]
max_tokens = 500
`)
	t.Setenv("RALPH_MAX_ITERATIONS", "9")

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"-p", "flag prompt", "-m", "12", "--context-limit", "777", "-v"}))

	l := NewLoader()
	l.SetSearchDir(dir)
	require.NoError(t, l.BindFlags(fs))
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "flag prompt", cfg.Prompt)
	assert.Equal(t, 12, cfg.MaxIterations)
	assert.Equal(t, 777, cfg.ContextLimit.MaxTokens)
	assert.True(t, cfg.Verbose)
	// Unset flags do not clobber the file.
	assert.Equal(t, "from-file", cfg.OutputDir)
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, "", expandTilde(""))
	assert.Equal(t, home, expandTilde("~"))
	assert.Equal(t, filepath.Join(home, "x", "y"), expandTilde("~/x/y"))
	assert.Equal(t, "/abs", expandTilde("/abs"))
}
