package debug

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestShouldEnableFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		enabled string
		path    string
		want    bool
	}{
		{name: "disabled by default", enabled: "", path: "", want: false},
		{name: "enabled explicit", enabled: "1", path: "", want: true},
		{name: "enabled via path", enabled: "", path: "/tmp/ralph.log", want: true},
		{name: "explicit off wins", enabled: "0", path: "/tmp/ralph.log", want: false},
		{name: "unknown toggle without path", enabled: "maybe", path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvEnabled, tt.enabled)
			t.Setenv(EnvLogPath, tt.path)
			if got := ShouldEnableFromEnv(); got != tt.want {
				t.Fatalf("ShouldEnableFromEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDisabledIsNoop(t *testing.T) {
	Close()
	LogKV("test", "dropped", "k", "v")
	if Enabled() {
		t.Fatal("Enabled() = true before Init")
	}
	if Path() != "" {
		t.Fatalf("Path() = %q, want empty", Path())
	}
}

func TestInitCreatesFileInDir(t *testing.T) {
	defer Close()
	t.Setenv(EnvLogPath, "")

	dir := filepath.Join(t.TempDir(), "debug")
	path, err := Init(dir)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("Init() path = %q, want file in %q", path, dir)
	}
	again, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("second Init() error = %v", err)
	}
	if again != path {
		t.Fatalf("second Init() path = %q, want %q", again, path)
	}

	LogKV("monitor", "kill requested", "tokens", 181000)
	Logf("loop", "iteration %d", 3)
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{
		"=== RALPH-LOOP DEBUG LOG ===",
		"[monitor",
		"kill requested tokens=181000",
		"iteration 3",
		"debug/debug_test.go:",
		"=== DEBUG LOG CLOSED ===",
	} {
		if !strings.Contains(s, want) {
			t.Fatalf("log missing %q:\n%s", want, s)
		}
	}
}

func TestInitUsesEnvPath(t *testing.T) {
	defer Close()

	logPath := filepath.Join(t.TempDir(), "nested", "trace.log")
	t.Setenv(EnvLogPath, logPath)

	got, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got != logPath {
		t.Fatalf("Init() path = %q, want %q", got, logPath)
	}
	if !Enabled() {
		t.Fatal("Enabled() = false after Init")
	}
}
