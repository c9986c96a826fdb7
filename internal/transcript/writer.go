package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agusx1211/ralphloop/internal/debug"
)

// Options describe a new run.
type Options struct {
	OutputDir         string
	ProjectPath       string
	Prompt            string
	PromptFile        string
	CompletionPromise string
	RunID             string // generated when empty
}

// Writer owns the metadata document of one run. Every mutation rewrites the
// whole document atomically.
type Writer struct {
	mu        sync.Mutex
	outputDir string
	runDir    string
	meta      RunMetadata
	now       func() time.Time
}

// NewWriter creates the run directory, writes the initial metadata and
// points <output_dir>/latest at the new run.
func NewWriter(opts Options) (*Writer, error) {
	runID := opts.RunID
	if runID == "" {
		runID = NewRunID(time.Now())
	}

	runDir := filepath.Join(opts.OutputDir, "runs", runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory %s: %w", runDir, err)
	}

	projectPath := opts.ProjectPath
	if abs, err := filepath.Abs(projectPath); err == nil {
		projectPath = abs
	}
	if resolved, err := filepath.EvalSymlinks(projectPath); err == nil {
		projectPath = resolved
	}

	w := &Writer{
		outputDir: opts.OutputDir,
		runDir:    runDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
	w.meta = RunMetadata{
		RunID:             runID,
		Status:            StatusRunning,
		StartedAt:         w.now(),
		ProjectPath:       projectPath,
		PromptFile:        opts.PromptFile,
		PromptPreview:     PromptPreview(opts.Prompt),
		CompletionPromise: opts.CompletionPromise,
		Iterations:        []IterationMetadata{},
	}

	if err := w.write(); err != nil {
		return nil, err
	}
	if err := updateLatest(opts.OutputDir, runID); err != nil {
		return nil, fmt.Errorf("updating latest link: %w", err)
	}
	debug.LogKV("transcript", "run created", "run_id", runID, "dir", runDir)
	return w, nil
}

// NewRunID formats YYYYMMDD-HHMMSS-<8 hex chars> from t in UTC.
func NewRunID(t time.Time) string {
	return fmt.Sprintf("%s-%s", t.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// RunID returns the run identifier.
func (w *Writer) RunID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.meta.RunID
}

// RunDir returns the run directory.
func (w *Writer) RunDir() string { return w.runDir }

// Metadata returns a copy of the current document.
func (w *Writer) Metadata() RunMetadata {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.meta
	m.Iterations = append([]IterationMetadata(nil), w.meta.Iterations...)
	return m
}

// StartIteration appends a new iteration and returns its 1-based number.
func (w *Writer) StartIteration() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.meta.Iterations) + 1
	w.meta.Iterations = append(w.meta.Iterations, IterationMetadata{
		Iteration: n,
		StartedAt: w.now(),
	})
	return n, w.write()
}

// SetSessionID records the agent session of the latest iteration. It is a
// no-op before the first iteration.
func (w *Writer) SetSessionID(sessionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it := w.last()
	if it == nil {
		return nil
	}
	it.SessionID = &sessionID
	return w.write()
}

// EndIteration closes the latest iteration. It is a no-op before the first
// iteration.
func (w *Writer) EndIteration(reason EndReason, input, output int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	it := w.last()
	if it == nil {
		return nil
	}
	ended := w.now()
	it.EndedAt = &ended
	it.EndReason = reason
	it.Tokens = &Tokens{Input: input, Output: output}
	return w.write()
}

// Complete finalises the run with the given exit reason.
func (w *Writer) Complete(reason ExitReason) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	completed := w.now()
	w.meta.Status = reason.Status()
	w.meta.CompletedAt = &completed
	w.meta.ExitReason = reason
	return w.write()
}

func (w *Writer) last() *IterationMetadata {
	if len(w.meta.Iterations) == 0 {
		return nil
	}
	return &w.meta.Iterations[len(w.meta.Iterations)-1]
}

// write replaces the metadata file via a synced temp file and rename, so a
// reader never observes a partial document.
func (w *Writer) write() error {
	data, err := json.MarshalIndent(&w.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run metadata: %w", err)
	}
	path := filepath.Join(w.runDir, MetaFileName)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("writing temp run metadata: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing temp run metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing temp run metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp run metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing run metadata: %w", err)
	}
	return nil
}
