// Package tmux starts ralph-loop inside a detached tmux session with an
// optional viewer window next to it.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agusx1211/ralphloop/internal/logging"
)

// DefaultSessionName is used when --tmux-session is not given.
const DefaultSessionName = "ralph"

const (
	loopWindow   = "loop"
	viewerWindow = "viewer"
)

var (
	ErrNotAvailable    = errors.New("tmux is not installed or not on PATH")
	ErrNotInsideTmux   = errors.New("not inside a tmux session")
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Executor runs tmux commands.
type Executor interface {
	Exec(ctx context.Context, cmd string) (stdout, stderr []byte, err error)
}

// LocalExecutor executes commands locally via os/exec.
type LocalExecutor struct{}

// Exec runs a command locally and returns stdout and stderr.
func (e *LocalExecutor) Exec(ctx context.Context, cmd string) (stdout, stderr []byte, err error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdoutBuf, stderrBuf bytes.Buffer
	c.Stdout = &stdoutBuf
	c.Stderr = &stderrBuf
	err = c.Run()
	return stdoutBuf.Bytes(), stderrBuf.Bytes(), err
}

// Client wraps the tmux commands ralph-loop needs.
type Client struct {
	exec Executor

	// interactive runs a command attached to the caller's terminal.
	interactive func(ctx context.Context, cmd string) error
	getenv      func(string) string
	log         zerolog.Logger
}

// NewClient creates a new tmux client.
func NewClient(exec Executor) *Client {
	return &Client{
		exec:        exec,
		interactive: runInteractive,
		getenv:      os.Getenv,
		log:         logging.Component("tmux"),
	}
}

// NewLocalClient creates a client that executes commands locally.
func NewLocalClient() *Client {
	return NewClient(&LocalExecutor{})
}

// Available reports whether a working tmux binary is installed.
func (c *Client) Available(ctx context.Context) bool {
	_, _, err := c.exec.Exec(ctx, "tmux -V")
	return err == nil
}

// InsideTmux reports whether the current process runs inside tmux.
func (c *Client) InsideTmux() bool {
	return c.getenv("TMUX") != ""
}

// HasSession checks if a session with the given name exists.
func (c *Client) HasSession(ctx context.Context, session string) (bool, error) {
	if strings.TrimSpace(session) == "" {
		return false, fmt.Errorf("session name is required")
	}

	cmd := fmt.Sprintf("tmux has-session -t %s", escapeSessionName(session))
	_, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		if isNoServerRunning(stderr) || isSessionNotFound(stderr) {
			return false, nil
		}
		return false, fmt.Errorf("tmux has-session failed: %w", err)
	}
	return true, nil
}

// KillSession kills a tmux session.
func (c *Client) KillSession(ctx context.Context, session string) error {
	if strings.TrimSpace(session) == "" {
		return fmt.Errorf("session name is required")
	}

	cmd := fmt.Sprintf("tmux kill-session -t %s", escapeSessionName(session))
	_, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		if isNoServerRunning(stderr) || isSessionNotFound(stderr) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("tmux kill-session failed: %w", err)
	}
	return nil
}

// LaunchSpec describes what StartLoop runs.
type LaunchSpec struct {
	Session    string
	Executable string
	Args       []string
	// Viewer is the viewer binary; empty skips the viewer window.
	Viewer    string
	OutputDir string
	WorkDir   string
}

// StartLoop replaces any existing session of the same name with a detached
// one running the loop in window "loop". When a viewer is given it opens in a
// second window; failing to start it is logged and otherwise ignored.
func (c *Client) StartLoop(ctx context.Context, spec LaunchSpec) error {
	if strings.TrimSpace(spec.Session) == "" {
		return fmt.Errorf("session name is required")
	}
	if !c.Available(ctx) {
		return ErrNotAvailable
	}

	exists, err := c.HasSession(ctx, spec.Session)
	if err != nil {
		return err
	}
	if exists {
		c.log.Info().Str("session", spec.Session).Msg("replacing existing tmux session")
		if err := c.KillSession(ctx, spec.Session); err != nil && !errors.Is(err, ErrSessionNotFound) {
			return err
		}
	}

	cmd := fmt.Sprintf("tmux new-session -d -s %s -n %s", escapeSessionName(spec.Session), loopWindow)
	if spec.WorkDir != "" {
		cmd += " -c " + escapeArg(spec.WorkDir)
	}
	cmd += " " + escapeArg(shellCommand(spec.Executable, spec.Args...))

	_, stderr, err := c.exec.Exec(ctx, cmd)
	if err != nil {
		if isDuplicateSession(stderr) {
			return ErrSessionExists
		}
		return fmt.Errorf("tmux new-session failed: %s: %w", strings.TrimSpace(string(stderr)), err)
	}

	if spec.Viewer == "" {
		return nil
	}
	viewerCmd := fmt.Sprintf("tmux new-window -t %s -n %s %s",
		escapeArg(spec.Session+":"), viewerWindow,
		escapeArg(shellCommand(spec.Viewer, "--dir", spec.OutputDir)))
	if _, stderr, err := c.exec.Exec(ctx, viewerCmd); err != nil {
		c.log.Warn().Err(err).
			Str("stderr", strings.TrimSpace(string(stderr))).
			Msg("failed to start viewer window")
	}
	return nil
}

// StartViewerWindow opens the viewer in a new window of the current session.
func (c *Client) StartViewerWindow(ctx context.Context, viewer, outputDir string) error {
	if !c.InsideTmux() {
		return ErrNotInsideTmux
	}
	cmd := fmt.Sprintf("tmux new-window -n %s %s", viewerWindow,
		escapeArg(shellCommand(viewer, "--dir", outputDir)))
	if _, stderr, err := c.exec.Exec(ctx, cmd); err != nil {
		return fmt.Errorf("tmux new-window failed: %s: %w", strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// Attach attaches the caller's terminal to an existing session.
func (c *Client) Attach(ctx context.Context, session string) error {
	exists, err := c.HasSession(ctx, session)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("attach %q: %w", session, ErrSessionNotFound)
	}
	if err := c.interactive(ctx, "tmux attach-session -t "+escapeSessionName(session)); err != nil {
		return fmt.Errorf("tmux attach-session failed: %w", err)
	}
	return nil
}

func runInteractive(ctx context.Context, cmd string) error {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}

// shellCommand joins an executable and its arguments into one shell command.
func shellCommand(exe string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, escapeArg(exe))
	for _, a := range args {
		parts = append(parts, escapeArg(a))
	}
	return strings.Join(parts, " ")
}

func isNoServerRunning(stderr []byte) bool {
	s := strings.ToLower(string(stderr))
	return strings.Contains(s, "no server running") ||
		strings.Contains(s, "error connecting to")
}

func isSessionNotFound(stderr []byte) bool {
	s := strings.ToLower(string(stderr))
	return strings.Contains(s, "session not found") ||
		strings.Contains(s, "can't find session")
}

func isDuplicateSession(stderr []byte) bool {
	return strings.Contains(strings.ToLower(string(stderr)), "duplicate session")
}

// escapeSessionName escapes a session name for use in tmux commands.
func escapeSessionName(name string) string {
	if strings.ContainsAny(name, " \t\n'\"\\$`!") {
		return fmt.Sprintf("'%s'", strings.ReplaceAll(name, "'", "'\\''"))
	}
	return name
}

// escapeArg escapes an argument for shell use.
func escapeArg(arg string) string {
	return fmt.Sprintf("'%s'", strings.ReplaceAll(arg, "'", "'\\''"))
}
