package tmux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	stdout      []byte
	stderr      []byte
	err         error
	stdoutQueue [][]byte
	stderrQueue [][]byte
	errQueue    []error
	lastCmd     string
	commands    []string
}

func (f *fakeExecutor) Exec(ctx context.Context, cmd string) ([]byte, []byte, error) {
	f.lastCmd = cmd
	f.commands = append(f.commands, cmd)

	stdout := f.stdout
	stderr := f.stderr
	err := f.err

	if len(f.stdoutQueue) > 0 {
		stdout = f.stdoutQueue[0]
		f.stdoutQueue = f.stdoutQueue[1:]
	}
	if len(f.stderrQueue) > 0 {
		stderr = f.stderrQueue[0]
		f.stderrQueue = f.stderrQueue[1:]
	}
	if len(f.errQueue) > 0 {
		err = f.errQueue[0]
		f.errQueue = f.errQueue[1:]
	}

	return stdout, stderr, err
}

var errExit = errors.New("exit status 1")

func TestAvailable(t *testing.T) {
	exec := &fakeExecutor{}
	assert.True(t, NewClient(exec).Available(context.Background()))
	assert.Equal(t, "tmux -V", exec.lastCmd)

	assert.False(t, NewClient(&fakeExecutor{err: errExit}).Available(context.Background()))
}

func TestInsideTmux(t *testing.T) {
	c := NewClient(&fakeExecutor{})
	c.getenv = func(string) string { return "" }
	assert.False(t, c.InsideTmux())
	c.getenv = func(k string) string {
		if k == "TMUX" {
			return "/tmp/tmux-0/default,1,0"
		}
		return ""
	}
	assert.True(t, c.InsideTmux())
}

func TestHasSession(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		err    error
		want   bool
		errOK  bool
	}{
		{name: "exists", want: true},
		{name: "no server", stderr: "no server running on /tmp/tmux", err: errExit},
		{name: "missing", stderr: "can't find session: ralph", err: errExit},
		{name: "other failure", stderr: "boom", err: errExit, errOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{stderr: []byte(tt.stderr), err: tt.err}
			got, err := NewClient(exec).HasSession(context.Background(), "ralph")
			if tt.errOK {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "tmux has-session -t ralph", exec.lastCmd)
		})
	}

	_, err := NewClient(&fakeExecutor{}).HasSession(context.Background(), " ")
	require.Error(t, err)
}

func TestKillSessionNotFound(t *testing.T) {
	exec := &fakeExecutor{stderr: []byte("session not found: x"), err: errExit}
	err := NewClient(exec).KillSession(context.Background(), "x")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStartLoopFreshSession(t *testing.T) {
	exec := &fakeExecutor{
		// tmux -V, has-session (missing), new-session, new-window
		errQueue:    []error{nil, errExit, nil, nil},
		stderrQueue: [][]byte{nil, []byte("can't find session"), nil, nil},
	}
	c := NewClient(exec)
	err := c.StartLoop(context.Background(), LaunchSpec{
		Session:    "ralph",
		Executable: "/usr/local/bin/ralph-loop",
		Args:       []string{"-p", "fix the bug", "-m", "3"},
		Viewer:     "/usr/local/bin/ralph-viewer",
		OutputDir:  ".ralph-loop-output",
	})
	require.NoError(t, err)
	require.Len(t, exec.commands, 4)

	newSession := exec.commands[2]
	assert.True(t, strings.HasPrefix(newSession, "tmux new-session -d -s ralph -n loop "), newSession)
	assert.Contains(t, newSession, `'\''fix the bug'\''`)

	newWindow := exec.commands[3]
	assert.True(t, strings.HasPrefix(newWindow, "tmux new-window -t 'ralph:' -n viewer "), newWindow)
	assert.Contains(t, newWindow, `'\''--dir'\'' '\''.ralph-loop-output'\''`)
}

func TestStartLoopReplacesExistingSession(t *testing.T) {
	exec := &fakeExecutor{}
	err := NewClient(exec).StartLoop(context.Background(), LaunchSpec{Session: "ralph", Executable: "ralph-loop"})
	require.NoError(t, err)
	require.Len(t, exec.commands, 4)
	assert.Equal(t, "tmux kill-session -t ralph", exec.commands[2])
	assert.Contains(t, exec.commands[3], "tmux new-session")
}

func TestStartLoopViewerFailureIsNotFatal(t *testing.T) {
	exec := &fakeExecutor{
		errQueue:    []error{nil, errExit, nil, errExit},
		stderrQueue: [][]byte{nil, []byte("no server running"), nil, []byte("bad viewer")},
	}
	err := NewClient(exec).StartLoop(context.Background(), LaunchSpec{
		Session: "ralph", Executable: "ralph-loop", Viewer: "viewer", OutputDir: "out",
	})
	require.NoError(t, err)
	assert.Len(t, exec.commands, 4)
}

func TestStartLoopWithoutTmux(t *testing.T) {
	exec := &fakeExecutor{err: errExit}
	err := NewClient(exec).StartLoop(context.Background(), LaunchSpec{Session: "ralph", Executable: "x"})
	require.ErrorIs(t, err, ErrNotAvailable)
}

func TestStartLoopNewSessionFailure(t *testing.T) {
	exec := &fakeExecutor{
		errQueue:    []error{nil, errExit, errExit},
		stderrQueue: [][]byte{nil, []byte("can't find session"), []byte("duplicate session: ralph")},
	}
	err := NewClient(exec).StartLoop(context.Background(), LaunchSpec{Session: "ralph", Executable: "x"})
	require.ErrorIs(t, err, ErrSessionExists)
}

func TestStartViewerWindow(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewClient(exec)
	c.getenv = func(string) string { return "" }
	require.ErrorIs(t, c.StartViewerWindow(context.Background(), "v", "out"), ErrNotInsideTmux)
	assert.Empty(t, exec.commands)

	c.getenv = func(string) string { return "set" }
	require.NoError(t, c.StartViewerWindow(context.Background(), "v", "out"))
	assert.True(t, strings.HasPrefix(exec.lastCmd, "tmux new-window -n viewer "))
}

func TestAttach(t *testing.T) {
	var ran string
	c := NewClient(&fakeExecutor{})
	c.interactive = func(ctx context.Context, cmd string) error {
		ran = cmd
		return nil
	}
	require.NoError(t, c.Attach(context.Background(), "my session"))
	assert.Equal(t, "tmux attach-session -t 'my session'", ran)

	missing := NewClient(&fakeExecutor{stderr: []byte("can't find session"), err: errExit})
	missing.interactive = func(context.Context, string) error {
		t.Fatal("attach must not run for a missing session")
		return nil
	}
	require.ErrorIs(t, missing.Attach(context.Background(), "gone"), ErrSessionNotFound)
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, "plain", escapeSessionName("plain"))
	assert.Equal(t, "'a b'", escapeSessionName("a b"))
	assert.Equal(t, `'it'\''s'`, escapeArg("it's"))
	assert.Equal(t, `'ralph-loop' '-p' 'a b'`, shellCommand("ralph-loop", "-p", "a b"))
}

func TestFindViewer(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "ralph-loop")
	noPath := func(string) (string, error) { return "", errors.New("not found") }

	assert.Equal(t, "", findViewer(exe, noPath))

	onPath := func(name string) (string, error) { return "/opt/bin/" + name, nil }
	assert.Equal(t, "/opt/bin/ralph-viewer", findViewer(exe, onPath))

	sibling := filepath.Join(dir, ViewerName)
	require.NoError(t, os.WriteFile(sibling, []byte("#!/bin/sh\n"), 0o755))
	assert.Equal(t, sibling, findViewer(exe, onPath))
}
