//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configureProcess puts the engine in its own process group so that a
// timeout also kills helpers it forked (zap.sh starts a JVM, for example).
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
