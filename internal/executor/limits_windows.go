//go:build windows

package executor

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

// killProcessGroup kills the process directly; Expand-Archive does not
// spawn children we need to chase.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
