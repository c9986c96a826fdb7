// Package transcript persists run metadata under the output directory:
//
//	<output_dir>/runs/<run_id>/.ralph-meta.json
//	<output_dir>/latest -> runs/<run_id>
//
// The agent's own transcripts live wherever the agent stores them; this
// package only records the mapping from iterations to agent session ids.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"
)

// MetaFileName is the metadata file inside each run directory.
const MetaFileName = ".ralph-meta.json"

const previewLimit = 100

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// ExitReason explains why a run finished.
type ExitReason string

const (
	ExitPromiseFulfilled      ExitReason = "promise_fulfilled"
	ExitMaxIterationsExceeded ExitReason = "max_iterations_exceeded"
	ExitUserInterrupt         ExitReason = "user_interrupt"
	ExitContextLimit          ExitReason = "context_limit"
	ExitError                 ExitReason = "error"
)

// Status maps a run exit reason to the final run status.
func (r ExitReason) Status() Status {
	switch r {
	case ExitPromiseFulfilled:
		return StatusCompleted
	case ExitUserInterrupt:
		return StatusInterrupted
	default:
		return StatusFailed
	}
}

// EndReason explains why a single iteration ended.
type EndReason string

const (
	EndContextLimit EndReason = "context_limit"
	EndPromiseFound EndReason = "promise_found"
	EndNormal       EndReason = "normal"
	EndInterrupted  EndReason = "interrupted"
	EndError        EndReason = "error"
)

// Tokens is the token usage recorded for an iteration.
type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// IterationMetadata describes one agent invocation.
type IterationMetadata struct {
	Iteration int        `json:"iteration"`
	SessionID *string    `json:"session_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason EndReason  `json:"end_reason,omitempty"`
	Tokens    *Tokens    `json:"tokens,omitempty"`
}

// RunMetadata is the persisted document for a run.
type RunMetadata struct {
	RunID             string              `json:"run_id"`
	Status            Status              `json:"status"`
	StartedAt         time.Time           `json:"started_at"`
	CompletedAt       *time.Time          `json:"completed_at,omitempty"`
	ProjectPath       string              `json:"project_path"`
	PromptFile        string              `json:"prompt_file,omitempty"`
	PromptPreview     string              `json:"prompt_preview"`
	CompletionPromise string              `json:"completion_promise"`
	ExitReason        ExitReason          `json:"exit_reason,omitempty"`
	Iterations        []IterationMetadata `json:"iterations"`
}

// CurrentIteration is the number of iterations started so far.
func (m *RunMetadata) CurrentIteration() int {
	return len(m.Iterations)
}

// TotalTokens sums input and output tokens over iterations that recorded usage.
func (m *RunMetadata) TotalTokens() int {
	total := 0
	for _, it := range m.Iterations {
		if it.Tokens != nil {
			total += it.Tokens.Input + it.Tokens.Output
		}
	}
	return total
}

// PromptPreview returns the first 100 characters of prompt, with "..."
// appended when it was truncated.
func PromptPreview(prompt string) string {
	if utf8.RuneCountInString(prompt) <= previewLimit {
		return prompt
	}
	runes := []rune(prompt)
	return string(runes[:previewLimit]) + "..."
}

// Load reads the metadata document of a run directory.
func Load(runDir string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(runDir, MetaFileName))
	if err != nil {
		return nil, err
	}
	var m RunMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", MetaFileName, err)
	}
	return &m, nil
}
