//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts the command in its own process group so that a
// kill reaches the helpers the agent CLI spawns; orphans would otherwise
// hold the output pipes open.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killGroup(cmd)
	}
}

func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == syscall.ESRCH {
		return nil
	}
	return err
}
