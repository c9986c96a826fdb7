package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/eventq"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/monitor"
	"github.com/agusx1211/ralphloop/internal/process"
	"github.com/agusx1211/ralphloop/internal/state"
)

const (
	defaultDrainTimeout  = 10 * time.Second
	defaultShutdownGrace = 2 * time.Second
)

// ClaudeConfig configures the live claude CLI invocation.
type ClaudeConfig struct {
	Command string // path to the CLI binary, "claude" when empty
	Args    []string
	Mode    process.Mode
	WorkDir string
	Env     map[string]string
	Monitor monitor.Config

	// DrainTimeout bounds how long the output streams are read after the
	// process exits; helpers that inherited the pipes can keep them open.
	DrainTimeout time.Duration
	// ShutdownGrace bounds stream draining after an interrupt.
	ShutdownGrace time.Duration
}

// Claude runs the claude CLI in stream-json mode and supervises it with the
// stdout and stderr monitors.
type Claude struct {
	cfg   ClaudeConfig
	state *state.RunState
	log   zerolog.Logger
}

// NewClaude returns a Claude agent that records into st.
func NewClaude(cfg ClaudeConfig, st *state.RunState) *Claude {
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	return &Claude{cfg: cfg, state: st, log: logging.Component("agent")}
}

type waitResult struct {
	code int
	err  error
}

// Run spawns the CLI, waits for it to exit, be killed for exceeding the
// token budget, or be interrupted through ctx, and then assembles the
// iteration result from the monitors and the shared state.
func (c *Claude) Run(ctx context.Context, prompt string) (*Result, error) {
	commands := eventq.NewSlot[monitor.Command]()

	proc, err := process.Spawn(ctx, process.Spec{
		Command: c.cfg.Command,
		Args:    c.cfg.Args,
		Prompt:  prompt,
		Mode:    c.cfg.Mode,
		WorkDir: c.cfg.WorkDir,
		Env:     c.cfg.Env,
	})
	if err != nil {
		return nil, err
	}
	defer proc.Close()

	c.log.Debug().
		Int("pid", proc.PID()).
		Str("command", c.cfg.Command).
		Str("args", strings.Join(c.cfg.Args, " ")).
		Msg("agent started")

	mon := monitor.Start(c.cfg.Monitor, c.state, commands, proc.Stdout(), proc.Stderr())

	waitCh := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		waitCh <- waitResult{code: code, err: err}
	}()

	reason := Natural
	drain := c.cfg.DrainTimeout
	var wr waitResult
	select {
	case wr = <-waitCh:
		if cmd, ok := commands.Drain(); ok {
			debug.LogKV("agent", "discarding command after exit", "command", cmd)
		}
	case cmd := <-commands.C():
		debug.LogKV("agent", "command received", "command", cmd, "pid", proc.PID())
		proc.Kill()
		wr = <-waitCh
		reason = ContextLimit
	case <-ctx.Done():
		debug.LogKV("agent", "shutdown requested", "pid", proc.PID())
		proc.Kill()
		wr = <-waitCh
		reason = Shutdown
		drain = c.cfg.ShutdownGrace
	}

	if wr.err != nil {
		// exec reports the context error when cancellation raced a clean exit.
		if ctx.Err() == nil || !errors.Is(wr.err, ctx.Err()) {
			return nil, fmt.Errorf("waiting for %s: %w", c.cfg.Command, wr.err)
		}
		reason = Shutdown
		drain = c.cfg.ShutdownGrace
	}

	monRes, monErr := c.waitMonitors(mon, proc, drain)
	if monErr != nil {
		c.log.Debug().Err(monErr).Msg("output monitor ended with error")
	}

	text, found := c.state.PromiseText()
	res := &Result{
		Output:       c.state.Output(),
		Promise:      text,
		PromiseFound: found,
		TokenCount:   c.state.TokenCount(),
		ExitReason:   reason,
		ExitCode:     wr.code,
		SessionID:    monRes.SessionID,
		TokenUsage:   monRes.TokenUsage,
	}
	c.log.Debug().
		Stringer("exit_reason", reason).
		Int("exit_code", wr.code).
		Int("tokens", res.TokenCount).
		Bool("promise_found", found).
		Str("session_id", res.SessionID).
		Msg("agent finished")
	return res, nil
}

// waitMonitors waits for both monitors, closing the pipes once timeout
// passes so a lingering writer cannot block the loop.
func (c *Claude) waitMonitors(mon *monitor.Handle, proc *process.Process, timeout time.Duration) (monitor.Result, error) {
	type monitorDone struct {
		res monitor.Result
		err error
	}
	done := make(chan monitorDone, 1)
	go func() {
		res, err := mon.Wait()
		done <- monitorDone{res: res, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-done:
		return d.res, d.err
	case <-timer.C:
		c.log.Warn().Dur("timeout", timeout).Msg("agent output still open after exit, closing")
		proc.Close()
		d := <-done
		return d.res, d.err
	}
}
