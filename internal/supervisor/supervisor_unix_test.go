// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

//go:build !windows
// +build !windows

package supervisor

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndStopRealChild(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	s := New(sleepBin, []string{"60"}, filepath.Join(t.TempDir(), "server.port"))
	require.NoError(t, s.Start())

	select {
	case <-s.Exited():
		t.Fatal("child exited immediately")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, s.Stop())

	select {
	case <-s.Exited():
	default:
		t.Fatal("child still running after Stop")
	}
}

func TestStartRemovesStalePortFile(t *testing.T) {
	sleepBin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	dir := t.TempDir()
	portFile := filepath.Join(dir, "server.port")
	require.NoError(t, os.WriteFile(portFile, []byte("9999"), 0o600))

	s := New(sleepBin, []string{"60"}, portFile)
	require.NoError(t, s.Start())
	defer s.Stop()

	_, err = readPortFile(portFile)
	assert.Error(t, err, "stale port file should be gone")
}
