// Package loop drives the agent iteration by iteration until the completion
// promise appears, the iteration ceiling is hit or the run is interrupted.
package loop

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/agusx1211/ralphloop/internal/agent"
	"github.com/agusx1211/ralphloop/internal/debug"
	"github.com/agusx1211/ralphloop/internal/logging"
	"github.com/agusx1211/ralphloop/internal/state"
	"github.com/agusx1211/ralphloop/internal/transcript"
)

// MaxIterationsError is returned when the ceiling is reached without the
// promise being found.
type MaxIterationsError struct {
	Max int
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("max iterations (%d) exceeded without finding promise", e.Max)
}

// ShutdownError is returned when the run was interrupted.
type ShutdownError struct {
	Iterations int
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown requested after %d iteration(s)", e.Iterations)
}

// Recorder persists run progress. *transcript.Writer implements it.
type Recorder interface {
	StartIteration() (int, error)
	SetSessionID(sessionID string) error
	EndIteration(reason transcript.EndReason, input, output int) error
	Complete(reason transcript.ExitReason) error
}

// Options configures a Loop.
type Options struct {
	Prompt string
	// MaxIterations is the iteration ceiling. Zero means no ceiling.
	MaxIterations int
}

// Result describes a fulfilled run.
type Result struct {
	Iterations int
	Promise    string
}

// Loop is the loop controller. It owns the iteration counter in State and
// is the only writer of the Recorder.
type Loop struct {
	Options  Options
	Agent    agent.Agent
	State    *state.RunState
	Recorder Recorder // optional

	// OnIterationStart is called before the agent runs.
	OnIterationStart func(iteration int)
	// OnIterationEnd is called after the iteration record is closed.
	OnIterationEnd func(iteration int, res *agent.Result, reason transcript.EndReason)

	log zerolog.Logger
}

// New returns a Loop. rec may be nil.
func New(opts Options, a agent.Agent, st *state.RunState, rec Recorder) *Loop {
	if st == nil {
		st = state.New()
	}
	return &Loop{
		Options:  opts,
		Agent:    a,
		State:    st,
		Recorder: rec,
		log:      logging.Component("loop"),
	}
}

// Run executes iterations until a terminal state. It returns a Result when
// the promise is fulfilled, *MaxIterationsError when the ceiling is hit,
// *ShutdownError when ctx is cancelled, and any agent error as is.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	for {
		if ctx.Err() != nil {
			done := l.State.Iteration()
			l.log.Info().Int("iterations", done).Msg("shutdown requested, stopping loop")
			l.complete(transcript.ExitUserInterrupt)
			return Result{}, &ShutdownError{Iterations: done}
		}

		iteration := l.State.IncrementIteration()
		if max := l.Options.MaxIterations; max > 0 && iteration > max {
			l.log.Warn().Int("max", max).Msg("max iterations exceeded")
			l.complete(transcript.ExitMaxIterationsExceeded)
			return Result{}, &MaxIterationsError{Max: max}
		}

		l.log.Info().Int("iteration", iteration).Msg("starting iteration")
		debug.LogKV("loop", "iteration starting", "iteration", iteration, "prompt_len", len(l.Options.Prompt))
		if l.Recorder != nil {
			if _, err := l.Recorder.StartIteration(); err != nil {
				l.log.Warn().Err(err).Int("iteration", iteration).Msg("failed to record iteration start")
			}
		}
		if l.OnIterationStart != nil {
			l.OnIterationStart(iteration)
		}

		l.State.Reset()
		res, err := l.Agent.Run(ctx, l.Options.Prompt)
		if err != nil {
			l.endIteration(iteration, nil, transcript.EndError)
			l.complete(transcript.ExitError)
			return Result{}, fmt.Errorf("iteration %d: %w", iteration, err)
		}

		if res.SessionID != "" && l.Recorder != nil {
			if err := l.Recorder.SetSessionID(res.SessionID); err != nil {
				l.log.Warn().Err(err).Str("session_id", res.SessionID).Msg("failed to record session id")
			}
		}

		reason := endReason(res)
		l.endIteration(iteration, res, reason)

		debug.LogKV("loop", "iteration finished",
			"iteration", iteration,
			"exit_reason", res.ExitReason,
			"end_reason", reason,
			"tokens", res.TokenCount,
			"session_id", res.SessionID,
		)

		if res.ExitReason == agent.Shutdown {
			l.log.Info().Int("iteration", iteration).Msg("iteration interrupted")
			l.complete(transcript.ExitUserInterrupt)
			return Result{}, &ShutdownError{Iterations: iteration}
		}

		if res.PromiseFound {
			l.log.Info().Int("iterations", iteration).Str("promise", res.Promise).Msg("promise fulfilled")
			l.complete(transcript.ExitPromiseFulfilled)
			return Result{Iterations: iteration, Promise: res.Promise}, nil
		}

		l.log.Info().
			Int("iteration", iteration).
			Stringer("exit_reason", res.ExitReason).
			Int("tokens", res.TokenCount).
			Msg("iteration complete, no promise found; continuing")
	}
}

// endReason classifies how an iteration ended.
func endReason(res *agent.Result) transcript.EndReason {
	switch res.ExitReason {
	case agent.ContextLimit:
		return transcript.EndContextLimit
	case agent.Shutdown:
		return transcript.EndInterrupted
	default:
		if res.PromiseFound {
			return transcript.EndPromiseFound
		}
		return transcript.EndNormal
	}
}

func (l *Loop) endIteration(iteration int, res *agent.Result, reason transcript.EndReason) {
	if l.Recorder != nil {
		var input, output int
		if res != nil && res.TokenUsage != nil {
			input, output = res.TokenUsage.InputTokens, res.TokenUsage.OutputTokens
		}
		if err := l.Recorder.EndIteration(reason, input, output); err != nil {
			l.log.Warn().Err(err).Int("iteration", iteration).Msg("failed to record iteration end")
		}
	}
	if l.OnIterationEnd != nil {
		l.OnIterationEnd(iteration, res, reason)
	}
}

func (l *Loop) complete(reason transcript.ExitReason) {
	if l.Recorder == nil {
		return
	}
	if err := l.Recorder.Complete(reason); err != nil {
		l.log.Warn().Err(err).Str("exit_reason", string(reason)).Msg("failed to record run completion")
	}
}
