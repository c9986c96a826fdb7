package agent

import (
	"context"
	"sync"
)

// Scripted replays a fixed list of results, one per call. Once the list is
// exhausted the last result is repeated. It never spawns a process.
type Scripted struct {
	mu      sync.Mutex
	results []Result
	prompts []string
}

// NewScripted returns a Scripted agent. With no results every call returns
// an empty natural exit.
func NewScripted(results ...Result) *Scripted {
	return &Scripted{results: results}
}

// Run returns the next scripted result. A cancelled ctx turns it into a
// Shutdown exit, the same way a live process would be interrupted.
func (s *Scripted) Run(ctx context.Context, prompt string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res Result
	if n := len(s.results); n > 0 {
		idx := len(s.prompts)
		if idx >= n {
			idx = n - 1
		}
		res = s.results[idx]
	}
	s.prompts = append(s.prompts, prompt)

	if ctx.Err() != nil {
		res.ExitReason = Shutdown
	}
	return &res, nil
}

// Calls returns the number of Run calls so far.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

// Prompts returns the prompts passed to Run, in order.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
