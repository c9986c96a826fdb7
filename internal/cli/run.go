package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agusx1211/ralphloop/internal/agent"
	"github.com/agusx1211/ralphloop/internal/buildinfo"
	"github.com/agusx1211/ralphloop/internal/config"
	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/loop"
	"github.com/agusx1211/ralphloop/internal/monitor"
	"github.com/agusx1211/ralphloop/internal/process"
	"github.com/agusx1211/ralphloop/internal/state"
	"github.com/agusx1211/ralphloop/internal/stream"
	"github.com/agusx1211/ralphloop/internal/theme"
	"github.com/agusx1211/ralphloop/internal/tokens"
	"github.com/agusx1211/ralphloop/internal/transcript"
)

// shutdownGrace bounds how long a signalled run may take to finalise.
var shutdownGrace = 15 * time.Second

type outcome struct {
	res loop.Result
	err error
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if opts.configFile != "" {
		loader.SetConfigFile(opts.configFile)
	}
	if err := loader.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if used := loader.ConfigFileUsed(); used != "" {
		debug.LogKV("cli", "config file loaded", "path", used)
	}
	return cfg, nil
}

func runLoop(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	if err := logging.Init(logging.Options{
		Level:  cfg.LogLevel(),
		Format: cfg.Logging.Format,
		Output: cmd.ErrOrStderr(),
	}); err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	log := logging.Component("cli")

	if opts.tmux {
		return runInTmux(cmd, cfg, opts)
	}

	prompt, err := cfg.ResolvePrompt()
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return &exitError{code: ExitFailure, err: fmt.Errorf("creating output directory %s: %w", cfg.OutputDir, err)}
	}

	if opts.debug || debug.ShouldEnableFromEnv() {
		path, err := debug.Init(filepath.Join(cfg.OutputDir, "debug"))
		if err != nil {
			return &exitError{code: ExitFailure, err: fmt.Errorf("initializing debug logger: %w", err)}
		}
		defer debug.Close()
		fmt.Fprintln(cmd.ErrOrStderr(), theme.Dim.Render("[debug] logging to "+path))
		bi := buildinfo.Current()
		debug.LogKV("cli", "ralph-loop starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
		)
	}

	estimator, err := tokens.New(cfg.ContextLimit.EstimationMethod)
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	mode, err := process.ParseMode(cfg.PromptMode)
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	env, err := cfg.EnvVars()
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}

	projectPath := cfg.WorkDir
	if projectPath == "" {
		projectPath = "."
	}
	writer, err := transcript.NewWriter(transcript.Options{
		OutputDir:         cfg.OutputDir,
		ProjectPath:       projectPath,
		Prompt:            prompt,
		PromptFile:        cfg.PromptFile,
		CompletionPromise: cfg.CompletionPromise,
	})
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}

	obs := &runObserver{writer: writer, log: log}
	if cfg.Verbose {
		obs.display = stream.NewDisplay(cmd.ErrOrStderr())
	}

	st := state.New()
	claude := agent.NewClaude(agent.ClaudeConfig{
		Command: cfg.ClaudePath,
		Args:    cfg.ClaudeArgs,
		Mode:    mode,
		WorkDir: cfg.WorkDir,
		Env:     env,
		Monitor: monitor.Config{
			Promise:          cfg.CompletionPromise,
			MaxTokens:        cfg.ContextLimit.MaxTokens,
			WarningThreshold: cfg.ContextLimit.WarningThreshold,
			Estimator:        estimator,
			Observer:         obs,
		},
	}, st)
	controller := loop.New(loop.Options{Prompt: prompt, MaxIterations: cfg.MaxIterations}, claude, st, writer)
	controller.OnIterationStart = obs.begin
	controller.OnIterationEnd = func(iteration int, res *agent.Result, reason transcript.EndReason) {
		obs.end(iteration)
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n",
			theme.Dim.Render(fmt.Sprintf("iteration %d:", iteration)),
			theme.EndReasonStyle(reason).Render(string(reason)))
	}

	ev := log.Info().
		Str("completion_promise", cfg.CompletionPromise).
		Int("context_limit", cfg.ContextLimit.MaxTokens).
		Str("run_id", writer.RunID())
	if cfg.MaxIterations > 0 {
		ev = ev.Int("max_iterations", cfg.MaxIterations)
	} else {
		ev = ev.Str("max_iterations", "unlimited")
	}
	ev.Msg("starting ralph-loop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan outcome, 1)
	go func() {
		res, err := controller.Run(ctx)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		log.Warn().Msg("shutdown signal received")
		select {
		case out = <-done:
		case <-time.After(shutdownGrace):
			log.Error().Dur("grace", shutdownGrace).Msg("loop did not stop in time")
			out = outcome{err: context.Canceled}
		}
	}

	meta := writer.Metadata()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %s %s\n",
		theme.Dim.Render("run "+meta.RunID+":"),
		theme.StatusStyle(meta.Status).Render(string(meta.Status)),
		theme.Dim.Render(writer.RunDir()))

	notify(cfg, writer.RunID(), verdictFor(out))
	return report(cmd.OutOrStdout(), out)
}

// verdict is the user-facing summary of a finished run.
type verdict struct {
	label  string
	detail string
	code   int
	// silent means the verdict line replaces the error message.
	silent bool
}

func verdictFor(out outcome) verdict {
	var (
		maxErr      *loop.MaxIterationsError
		shutdownErr *loop.ShutdownError
	)
	switch {
	case out.err == nil:
		return verdict{label: "SUCCESS:", code: ExitOK,
			detail: fmt.Sprintf("Promise '%s' fulfilled after %d iteration(s)", out.res.Promise, out.res.Iterations)}
	case errors.As(out.err, &shutdownErr):
		return verdict{label: "INTERRUPTED:", code: ExitInterrupted, silent: true,
			detail: fmt.Sprintf("Shutdown after %d iteration(s)", shutdownErr.Iterations)}
	case errors.Is(out.err, context.Canceled):
		return verdict{label: "INTERRUPTED:", code: ExitInterrupted, silent: true, detail: "Shutdown requested"}
	case errors.As(out.err, &maxErr):
		return verdict{label: "FAILED:", code: ExitFailure, silent: true,
			detail: fmt.Sprintf("Max iterations (%d) exceeded without finding promise", maxErr.Max)}
	default:
		return verdict{label: "ERROR:", code: ExitFailure, detail: out.err.Error()}
	}
}

func (v verdict) style() lipgloss.Style {
	switch v.code {
	case ExitOK:
		return theme.Success
	case ExitInterrupted:
		return theme.Interrupted
	default:
		return theme.Failure
	}
}

// report prints the verdict line and maps the outcome to an exit code.
func report(w io.Writer, out outcome) error {
	v := verdictFor(out)
	if v.silent || v.code == ExitOK {
		fmt.Fprintf(w, "\n%s %s\n", v.style().Render(v.label), v.detail)
	}
	if v.code == ExitOK {
		return nil
	}
	return &exitError{code: v.code, err: out.err, silent: v.silent}
}
