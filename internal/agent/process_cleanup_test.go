//go:build !windows

package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/agusx1211/ralphloop/internal/state"
)

// childPIDScript spawns a long-lived background child, records its PID and
// then either exceeds the token budget or just sleeps.
func childPIDScript(pidFile string, overBudget bool) string {
	result := ""
	if overBudget {
		result = `printf '{"type":"result","usage":{"input_tokens":5000}}\n'`
	}
	return fmt.Sprintf(`#!/usr/bin/env sh
(sleep 300 & echo $! > %s)
while [ ! -s %s ]; do sleep 0.01; done
%s
sleep 300
`, pidFile, pidFile, result)
}

func assertChildGone(t *testing.T, pidFile string) {
	t.Helper()
	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("ReadFile(%s) error = %v", pidFile, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parse child PID %q: %v", data, err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := syscall.Kill(pid, 0)
		if err == syscall.ESRCH || isZombie(pid) {
			return
		}
		if time.Now().After(deadline) {
			_ = syscall.Kill(pid, syscall.SIGKILL)
			t.Fatalf("child process %d still running after agent was killed", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestContextLimitKillReapsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cmd := writeFakeAgent(t, childPIDScript(pidFile, true))

	res, err := NewClaude(testClaudeConfig(cmd), state.New()).Run(context.Background(), "p")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitReason != ContextLimit {
		t.Fatalf("ExitReason = %v, want %v", res.ExitReason, ContextLimit)
	}
	assertChildGone(t, pidFile)
}

func TestShutdownReapsProcessGroup(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cmd := writeFakeAgent(t, childPIDScript(pidFile, false))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	res, err := NewClaude(testClaudeConfig(cmd), state.New()).Run(ctx, "p")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitReason != Shutdown {
		t.Fatalf("ExitReason = %v, want %v", res.ExitReason, Shutdown)
	}
	assertChildGone(t, pidFile)
}

// isZombie reports whether pid has exited but not been reaped yet, which
// happens when the orphan's new parent does not reap promptly.
func isZombie(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	s := string(data)
	idx := strings.LastIndex(s, ")")
	return idx >= 0 && idx+2 < len(s) && s[idx+2] == 'Z'
}
