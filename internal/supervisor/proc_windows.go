// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

//go:build windows
// +build windows

package supervisor

import (
	"os/exec"
	"syscall"
)

// CREATE_NEW_PROCESS_GROUP detaches the child from our console's Ctrl+C
// handling.
const createNewProcessGroup = 0x00000200

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: createNewProcessGroup}
}

// terminate has no polite equivalent of SIGTERM on Windows; Kill is the
// termination path and the grace period never helps here.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
