//go:build windows

package editor

import "os/exec"

// Windows has no SIGTERM; Kill is the only forced option.
func terminateProcess(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
