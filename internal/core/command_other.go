//go:build !unix

package core

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

// terminateGroup kills the shell; process groups are a unix notion.
func terminateGroup(process *os.Process) {
	if process != nil {
		_ = process.Kill()
	}
}

func killGroup(*os.Process) {}
