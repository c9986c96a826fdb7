// Package process spawns the agent CLI with piped stdout and stderr and
// supervises its lifetime.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/logging"
)

// Mode selects how the prompt reaches the child.
type Mode string

const (
	// ModeStdin writes the prompt to stdin and then closes it.
	ModeStdin Mode = "stdin"
	// ModeArg appends "-p <prompt>" to the arguments; stdin is the null device.
	ModeArg Mode = "arg"
)

// ParseMode validates a prompt mode name. Empty means ModeStdin.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStdin:
		return ModeStdin, nil
	case ModeArg:
		return ModeArg, nil
	default:
		return "", fmt.Errorf("unknown prompt mode %q (want stdin or arg)", s)
	}
}

// Spec describes one child process.
type Spec struct {
	Command string
	Args    []string
	Prompt  string
	Mode    Mode
	WorkDir string
	Env     map[string]string // overlaid on the current environment
}

// SpawnError reports that the child could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Process is a running child. Its stdout and stderr readers stay open until
// Close, independently of Wait, so monitors can drain them to EOF.
type Process struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
	log    zerolog.Logger

	waitOnce sync.Once
	exitCode int
	waitErr  error

	closeOnce sync.Once
}

// Spawn starts the child described by spec. Cancelling ctx kills the
// child's whole process group.
func Spawn(ctx context.Context, spec Spec) (*Process, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, &SpawnError{Command: spec.Command, Err: errors.New("empty command")}
	}

	args := append([]string(nil), spec.Args...)
	if spec.Mode == ModeArg {
		args = append(args, "-p", spec.Prompt)
	}

	cmd := exec.CommandContext(ctx, spec.Command, args...)
	cmd.Dir = spec.WorkDir
	setupProcessGroup(cmd)
	cmd.WaitDelay = 5 * time.Second
	setupEnv(cmd, spec.Env)
	if spec.Mode != ModeArg {
		cmd.Stdin = strings.NewReader(spec.Prompt)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		outR.Close()
		outW.Close()
		return nil, &SpawnError{Command: spec.Command, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends; ours must be closed
	// for the readers to observe EOF.
	outW.Close()
	errW.Close()
	if startErr != nil {
		outR.Close()
		errR.Close()
		return nil, &SpawnError{Command: spec.Command, Err: startErr}
	}

	debug.LogKV("process", "spawned",
		"pid", cmd.Process.Pid,
		"command", spec.Command,
		"args", strings.Join(args, " "),
		"mode", string(spec.Mode),
		"workdir", spec.WorkDir,
		"prompt_len", len(spec.Prompt),
	)

	return &Process{
		cmd:    cmd,
		stdout: outR,
		stderr: errR,
		log:    logging.Component("process"),
	}, nil
}

// Stdout returns the child's stdout stream.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the child's stderr stream.
func (p *Process) Stderr() io.Reader { return p.stderr }

// PID returns the child's process ID.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Wait blocks until the child exits and returns its exit code. A non-zero
// exit is not an error; only failures to observe the exit are. Repeated
// calls return the first result.
func (p *Process) Wait() (int, error) {
	p.waitOnce.Do(func() {
		p.exitCode, p.waitErr = extractExitCode(p.cmd.Wait())
		debug.LogKV("process", "exited", "pid", p.cmd.Process.Pid, "exit_code", p.exitCode, "err", p.waitErr)
	})
	return p.exitCode, p.waitErr
}

// Kill forcibly terminates the child and its process group. Failures are
// logged and otherwise ignored.
func (p *Process) Kill() {
	if p.cmd.Process == nil {
		return
	}
	pid := p.cmd.Process.Pid
	if err := killGroup(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Warn().Err(err).Int("pid", pid).Msg("failed to kill agent process")
		return
	}
	debug.LogKV("process", "killed", "pid", pid)
}

// Close releases the read ends of the output pipes. Readers blocked on them
// return with an error.
func (p *Process) Close() {
	p.closeOnce.Do(func() {
		p.stdout.Close()
		p.stderr.Close()
	})
}

// setupEnv inherits the current environment and overlays extra variables.
func setupEnv(cmd *exec.Cmd, env map[string]string) {
	if len(env) == 0 {
		return
	}
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
}

// extractExitCode interprets a process error as an exit code.
// Returns (0, nil) for a clean exit, (code, nil) for an ExitError,
// or (-1, err) for any other error.
func extractExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
