//go:build !windows

package scraper

import (
	"os/exec"
	"sync/atomic"
	"syscall"
)

// configureProcess puts the child in its own process group so that browser
// processes started by the scraper are terminated with it.
func configureProcess(cmd *exec.Cmd, killed *atomic.Bool) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killed.Store(true)
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
			return cmd.Process.Signal(syscall.SIGTERM)
		}
		return nil
	}
}
