// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

//go:build !windows
// +build !windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// sysProcAttr puts the child in its own process group so signals aimed at
// the shell do not reach it directly and we can signal the whole group.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// terminate sends SIGTERM to the child's process group.
func terminate(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// kill sends SIGKILL to the child's process group.
func kill(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
