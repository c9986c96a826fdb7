// Package debug provides an opt-in trace file for diagnosing a loop run.
//
// When enabled via --debug (or RALPH_DEBUG_ENABLED), every process spawn,
// stream event, kill request and metadata write is appended to a single
// .log file with nanosecond timestamps, goroutine IDs and caller locations,
// so the interleaving of the monitors and the loop can be reconstructed.
//
// When disabled (the default), all logging functions are no-ops.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	logger   *Logger
	loggerMu sync.RWMutex
)

const (
	// EnvEnabled toggles the trace file without the --debug flag.
	EnvEnabled = "RALPH_DEBUG_ENABLED"
	// EnvLogPath forces the trace to be appended to a specific file.
	EnvLogPath = "RALPH_DEBUG_LOG_PATH"
)

// Logger writes trace lines to a file.
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	startedAt time.Time
	pid       int
}

// Init opens the trace file and returns its path. The file is created under
// dir (typically <output_dir>/debug) unless EnvLogPath names one. Calling
// Init twice returns the already open path.
func Init(dir string) (string, error) {
	loggerMu.RLock()
	if logger != nil {
		p := logger.path
		loggerMu.RUnlock()
		return p, nil
	}
	loggerMu.RUnlock()

	path, err := resolveLogPath(dir)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("debug: open log %s: %w", path, err)
	}

	now := time.Now()
	l := &Logger{file: f, path: path, startedAt: now, pid: os.Getpid()}
	fmt.Fprintf(f, "=== RALPH-LOOP DEBUG LOG ===\nStarted: %s\nPID: %d\nGOMAXPROCS: %d\nArgs: %s\n===\n\n",
		now.Format(time.RFC3339Nano), l.pid, runtime.GOMAXPROCS(0), strings.Join(os.Args, " "))

	loggerMu.Lock()
	if logger != nil {
		p := logger.path
		loggerMu.Unlock()
		_ = f.Close()
		return p, nil
	}
	logger = l
	loggerMu.Unlock()
	return path, nil
}

// Close flushes and closes the trace file. Safe to call when not initialized.
func Close() {
	loggerMu.Lock()
	l := logger
	logger = nil
	loggerMu.Unlock()
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "\n=== DEBUG LOG CLOSED === (pid=%d duration=%s)\n", l.pid, time.Since(l.startedAt))
	l.file.Close()
}

// Enabled returns true if the trace file is open.
func Enabled() bool {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger != nil
}

// Path returns the trace file path, or "" if not enabled.
func Path() string {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return ""
	}
	return logger.path
}

// ShouldEnableFromEnv reports whether the environment asks for tracing.
func ShouldEnableFromEnv() bool {
	path := strings.TrimSpace(os.Getenv(EnvLogPath))
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvEnabled))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return path != ""
	}
}

// Log writes a trace line. No-op when disabled.
func Log(component, msg string) {
	if l := current(); l != nil {
		l.write(component, msg, 2)
	}
}

// Logf writes a formatted trace line. No-op when disabled.
func Logf(component, format string, args ...any) {
	if l := current(); l != nil {
		l.write(component, fmt.Sprintf(format, args...), 2)
	}
}

// LogKV writes a trace line with key-value context pairs.
// Usage: debug.LogKV("monitor", "kill requested", "tokens", 181000, "pid", 4242)
func LogKV(component, msg string, kvs ...any) {
	l := current()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kvs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kvs[i], kvs[i+1])
	}
	l.write(component, b.String(), 2)
}

func current() *Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

func (l *Logger) write(component, msg string, callerSkip int) {
	now := time.Now()

	_, file, line, ok := runtime.Caller(callerSkip)
	caller := "??:0"
	if ok {
		if idx := strings.LastIndex(file, "/internal/"); idx >= 0 {
			file = file[idx+1:]
		} else if idx := strings.LastIndex(file, "/cmd/"); idx >= 0 {
			file = file[idx+1:]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	// TIMESTAMP +ELAPSED [PID] [GID] [COMPONENT] CALLER | MESSAGE
	out := fmt.Sprintf("%s +%12s [P%-6d] [G%-6d] [%-12s] %-34s | %s\n",
		now.Format("15:04:05.000000000"),
		now.Sub(l.startedAt).Truncate(time.Microsecond),
		l.pid,
		goroutineID(),
		component,
		caller,
		msg,
	)

	l.mu.Lock()
	l.file.WriteString(out)
	l.mu.Unlock()
}

func resolveLogPath(dir string) (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvLogPath)); p != "" {
		if d := filepath.Dir(p); d != "." {
			if err := os.MkdirAll(d, 0755); err != nil {
				return "", fmt.Errorf("debug: create dir %s: %w", d, err)
			}
		}
		return p, nil
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("debug: create dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", time.Now().Format("20060102T150405"), uuid.NewString()[:8])
	return filepath.Join(dir, name), nil
}

// goroutineID extracts the goroutine ID from runtime.Stack output.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := string(buf[:n])
	if !strings.HasPrefix(s, "goroutine ") {
		return 0
	}
	var id int64
	for _, c := range s[len("goroutine "):] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
