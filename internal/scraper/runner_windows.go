//go:build windows

package scraper

import (
	"os/exec"
	"sync/atomic"
)

func configureProcess(cmd *exec.Cmd, killed *atomic.Bool) {
	cmd.Cancel = func() error {
		killed.Store(true)
		return cmd.Process.Kill()
	}
}
