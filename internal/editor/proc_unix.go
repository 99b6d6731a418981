//go:build !windows

package editor

import (
	"os/exec"
	"syscall"
)

func terminateProcess(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}
