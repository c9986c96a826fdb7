// Package cli implements the ralph-loop command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/ralphloop/internal/buildinfo"
	"github.com/agusx1211/ralphloop/internal/config"
	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/theme"
	"github.com/agusx1211/ralphloop/internal/tmux"
)

// Exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// exitError carries a process exit code. When silent, the message was
// already shown to the user.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

type rootOptions struct {
	configFile  string
	debug       bool
	tmux        bool
	tmuxSession string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "ralph-loop",
		Short: "Run Claude in a loop until it fulfils a completion promise",
		Long: `ralph-loop feeds the same prompt to the claude CLI over and over.

Each iteration streams Claude's JSON output, kills the process when it reaches
the context token limit, and stops once the output contains
<promise>COMPLETION PROMISE</promise> or the iteration ceiling is reached.

Run metadata is written to <output-dir>/runs/<run-id>/.ralph-meta.json and
<output-dir>/latest points at the newest run.

Examples:
  ralph-loop -p "Fix the failing tests" -m 10
  ralph-loop -f PROMPT.md -c "ALL TESTS PASS"
  ralph-loop -f PROMPT.md --tmux`,
		Version:       buildinfo.Current().String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, opts)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetVersionTemplate("ralph-loop {{.Version}}\n")

	f := cmd.Flags()
	f.StringP("prompt", "p", "", "Prompt text to send to Claude")
	f.StringP("prompt-file", "f", "", "Read the prompt from a file (overrides --prompt)")
	f.IntP("max-iterations", "m", defaults.MaxIterations, "Maximum iterations, 0 for unlimited")
	f.StringP("completion-promise", "c", defaults.CompletionPromise, "Text expected inside <promise></promise> tags")
	f.StringP("output-dir", "o", defaults.OutputDir, "Directory for run metadata")
	f.Int("context-limit", defaults.ContextLimit.MaxTokens, "Token limit per iteration before Claude is restarted")
	f.BoolP("verbose", "v", false, "Enable debug console logging")
	f.StringVar(&opts.configFile, "config", "", "Config file (TOML), defaults to ./"+config.DefaultConfigName+".toml")
	f.BoolVar(&opts.debug, "debug", false, "Write a debug trace under <output-dir>/debug/")
	f.BoolVar(&opts.tmux, "tmux", false, "Run the loop in a detached tmux session with the viewer")
	f.StringVar(&opts.tmuxSession, "tmux-session", tmux.DefaultSessionName, "tmux session name used with --tmux")

	return cmd
}

// Main runs the command line with args and returns the process exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		debug.Log("cli", "exit success")
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		debug.Logf("cli", "exit %d: %v", ee.code, ee.err)
		if !ee.silent && ee.err != nil {
			fmt.Fprintln(stderr, theme.Failure.Render("Error:"), ee.err)
		}
		return ee.code
	}

	debug.Logf("cli", "exit with error: %v", err)
	fmt.Fprintln(stderr, theme.Failure.Render("Error:"), err)
	return ExitFailure
}

// Execute runs the root command and exits the process.
func Execute() {
	code := Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	debug.Close()
	os.Exit(code)
}
