//go:build unix

package core

import (
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateGroup sends SIGTERM to the group led by process.
func terminateGroup(process *os.Process) {
	signalGroup(process, syscall.SIGTERM)
}

// killGroup sends SIGKILL to whatever is left of the group.
func killGroup(process *os.Process) {
	signalGroup(process, syscall.SIGKILL)
}

func signalGroup(process *os.Process, sig syscall.Signal) {
	if process == nil || process.Pid <= 0 {
		return
	}
	_ = syscall.Kill(-process.Pid, sig)
}
