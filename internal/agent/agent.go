package agent

import (
	"context"

	"github.com/agusx1211/ralphloop/internal/stream"
)

// ExitReason describes why a single agent invocation ended.
type ExitReason int

const (
	// Natural means the agent process exited on its own.
	Natural ExitReason = iota
	// ContextLimit means the process was killed after exceeding the token budget.
	ContextLimit
	// Shutdown means the process was killed because the run was interrupted.
	Shutdown
)

func (r ExitReason) String() string {
	switch r {
	case Natural:
		return "natural"
	case ContextLimit:
		return "context_limit"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single agent invocation.
type Result struct {
	Output       string // raw stdout lines, newline terminated
	Promise      string // promise text, valid when PromiseFound
	PromiseFound bool
	TokenCount   int
	ExitReason   ExitReason
	ExitCode     int
	SessionID    string             // empty when the agent never reported one
	TokenUsage   *stream.TokenUsage // nil when no result event was seen
}

// Agent runs one iteration of the loop with the given prompt.
type Agent interface {
	// Run blocks until the iteration ends. Cancelling ctx ends it with
	// ExitReason Shutdown. Errors are reserved for failures to run the
	// agent at all.
	Run(ctx context.Context, prompt string) (*Result, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, prompt string) (*Result, error)

// Run calls f.
func (f Func) Run(ctx context.Context, prompt string) (*Result, error) {
	return f(ctx, prompt)
}
