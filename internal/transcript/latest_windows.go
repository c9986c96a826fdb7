//go:build windows

package transcript

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// updateLatest points <outputDir>/latest at runs/<runID>. Directory symlinks
// need a privilege most users lack, so a junction is the fallback.
func updateLatest(outputDir, runID string) error {
	link := filepath.Join(outputDir, "latest")
	if _, err := os.Lstat(link); err == nil {
		_ = os.Remove(link)
	}
	if err := os.Symlink(filepath.Join("runs", runID), link); err == nil {
		return nil
	}
	target, err := filepath.Abs(filepath.Join(outputDir, "runs", runID))
	if err != nil {
		return err
	}
	if out, err := exec.Command("cmd", "/c", "mklink", "/J", link, target).CombinedOutput(); err != nil {
		return fmt.Errorf("mklink /J: %w: %s", err, out)
	}
	return nil
}
