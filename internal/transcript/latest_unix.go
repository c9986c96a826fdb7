//go:build !windows

package transcript

import (
	"os"
	"path/filepath"
)

// updateLatest replaces <outputDir>/latest with a relative symlink to
// runs/<runID>.
func updateLatest(outputDir, runID string) error {
	link := filepath.Join(outputDir, "latest")
	if _, err := os.Lstat(link); err == nil {
		_ = os.Remove(link)
	}
	return os.Symlink(filepath.Join("runs", runID), link)
}
