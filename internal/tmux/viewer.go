package tmux

import (
	"os"
	"os/exec"
	"path/filepath"
)

// ViewerName is the binary name of the transcript viewer.
const ViewerName = "ralph-viewer"

// FindViewer locates the viewer next to the running executable, then on
// PATH. It returns "" when neither exists.
func FindViewer() string {
	exe, err := os.Executable()
	if err != nil {
		exe = ""
	}
	return findViewer(exe, exec.LookPath)
}

func findViewer(exe string, lookPath func(string) (string, error)) string {
	if exe != "" {
		candidate := filepath.Join(filepath.Dir(exe), ViewerName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	if p, err := lookPath(ViewerName); err == nil {
		return p
	}
	return ""
}
