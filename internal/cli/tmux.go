package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/ralphloop/internal/config"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/theme"
	"github.com/agusx1211/ralphloop/internal/tmux"
)

// newTmuxClient is swapped in tests.
var newTmuxClient = tmux.NewLocalClient

// runInTmux relaunches this executable, minus the tmux flags, inside a
// detached tmux session and attaches to it when running in a terminal.
func runInTmux(cmd *cobra.Command, cfg *config.Config, opts *rootOptions) error {
	ctx := cmd.Context()
	log := logging.Component("cli")

	exe, err := os.Executable()
	if err != nil {
		return &exitError{code: ExitFailure, err: fmt.Errorf("resolving executable: %w", err)}
	}
	wd, err := os.Getwd()
	if err != nil {
		return &exitError{code: ExitFailure, err: err}
	}

	client := newTmuxClient()
	spec := tmux.LaunchSpec{
		Session:    opts.tmuxSession,
		Executable: exe,
		Args:       stripTmuxFlags(os.Args[1:]),
		Viewer:     tmux.FindViewer(),
		OutputDir:  cfg.OutputDir,
		WorkDir:    wd,
	}
	if spec.Viewer == "" {
		log.Info().Msg("ralph-viewer not found, starting without viewer window")
	}
	if err := client.StartLoop(ctx, spec); err != nil {
		return &exitError{code: ExitFailure, err: err}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s started in tmux session %s\n",
		theme.Success.Render("ralph-loop"), theme.Accent.Render(spec.Session))

	if client.InsideTmux() || !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(out, theme.Dim.Render("attach with: tmux attach -t "+spec.Session))
		return nil
	}
	if err := client.Attach(ctx, spec.Session); err != nil {
		return &exitError{code: ExitFailure, err: err}
	}
	return nil
}

// stripTmuxFlags removes --tmux and --tmux-session from a relaunch argument
// list so the child runs the loop directly.
func stripTmuxFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			return append(out, args[i:]...)
		case a == "--tmux", strings.HasPrefix(a, "--tmux="):
		case a == "--tmux-session":
			i++
		case strings.HasPrefix(a, "--tmux-session="):
		default:
			out = append(out, a)
		}
	}
	return out
}
