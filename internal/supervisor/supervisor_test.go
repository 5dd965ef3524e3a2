// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/util"
)

// newStartedStub builds a Supervisor in the started state without a real
// child, so port discovery is testable in isolation.
func newStartedStub(portFile string) *Supervisor {
	return &Supervisor{
		portFile: portFile,
		grace:    time.Second,
		exited:   make(chan struct{}),
	}
}

func TestReadPortFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	tests := []struct {
		name    string
		path    string
		want    int
		wantErr bool
	}{
		{"plain", write("a", "3000"), 3000, false},
		{"trailing newline", write("b", "45123\n"), 45123, false},
		{"padded", write("c", "  8080  "), 8080, false},
		{"malformed", write("d", "not-a-port"), 0, true},
		{"zero", write("e", "0"), 0, true},
		{"out of range", write("f", "70000"), 0, true},
		{"missing", filepath.Join(dir, "nope"), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPortFile(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServerPortAlreadyAnnounced(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "server.port")
	require.NoError(t, os.WriteFile(portFile, []byte("3000"), 0o600))

	s := newStartedStub(portFile)
	port, err := s.ServerPort(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3000, port)
}

func TestServerPortAppearsLater(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "server.port")
	s := newStartedStub(portFile)

	go func() {
		time.Sleep(50 * time.Millisecond)
		// The server writes the port file atomically, which lands as a
		// rename in the watched directory.
		_ = util.AtomicWriteFile(portFile, []byte("45123"), 0o600)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	port, err := s.ServerPort(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45123, port)
}

func TestServerPortChildExitsFirst(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "server.port")
	s := newStartedStub(portFile)
	s.exitErr = errors.New("exit status 1")
	close(s.exited)

	_, err := s.ServerPort(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before announcing")
}

func TestServerPortContextCancelled(t *testing.T) {
	portFile := filepath.Join(t.TempDir(), "server.port")
	s := newStartedStub(portFile)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.ServerPort(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServerPortBeforeStart(t *testing.T) {
	s := New("server-bin", nil, filepath.Join(t.TempDir(), "server.port"))
	_, err := s.ServerPort(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStopBeforeStart(t *testing.T) {
	s := New("server-bin", nil, filepath.Join(t.TempDir(), "server.port"))
	assert.ErrorIs(t, s.Stop(), ErrNotStarted)
}
