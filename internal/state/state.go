// Package state holds the per-run counters shared between the loop
// controller and the stream monitors of the current iteration.
package state

import (
	"strings"
	"sync"
)

// RunState is safe for concurrent use. All readers and writers go through a
// single lock, so the promise flag and its text are always observed together.
type RunState struct {
	mu           sync.RWMutex
	iteration    int
	tokenCount   int
	promiseFound bool
	promiseText  string
	output       strings.Builder
}

// New returns an empty RunState.
func New() *RunState {
	return &RunState{}
}

// Reset clears per-iteration data: token count, promise flag and text, and
// captured output. The iteration counter is preserved.
func (s *RunState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCount = 0
	s.promiseFound = false
	s.promiseText = ""
	s.output.Reset()
}

// IncrementIteration bumps the iteration counter and returns the new value.
func (s *RunState) IncrementIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iteration++
	return s.iteration
}

func (s *RunState) Iteration() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.iteration
}

// AddTokens adds a provisional estimate to the token count.
func (s *RunState) AddTokens(n int) {
	s.mu.Lock()
	s.tokenCount += n
	s.mu.Unlock()
}

// SetTokens replaces the token count with an authoritative total.
func (s *RunState) SetTokens(n int) {
	s.mu.Lock()
	s.tokenCount = n
	s.mu.Unlock()
}

func (s *RunState) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokenCount
}

// SetPromiseFound records the detected promise text.
func (s *RunState) SetPromiseFound(text string) {
	s.mu.Lock()
	s.promiseFound = true
	s.promiseText = text
	s.mu.Unlock()
}

func (s *RunState) PromiseFound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promiseFound
}

// PromiseText returns the detected promise and whether one was found.
func (s *RunState) PromiseText() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.promiseText, s.promiseFound
}

// AppendOutput appends raw stdout text for the current iteration.
func (s *RunState) AppendOutput(text string) {
	s.mu.Lock()
	s.output.WriteString(text)
	s.mu.Unlock()
}

func (s *RunState) Output() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.output.String()
}
