// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

// Package supervisor runs the API server as a child process and manages its
// lifecycle: spawn, port discovery, and termination.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultGracePeriod is how long Stop waits after the polite termination
// signal before killing the child outright.
const DefaultGracePeriod = 5 * time.Second

// ErrNotStarted is returned by methods that need a running child.
var ErrNotStarted = errors.New("supervisor: not started")

// Supervisor spawns the server binary in its own process group, forwards
// its stdio, and discovers the port it bound through the runtime port file.
type Supervisor struct {
	binPath  string
	args     []string
	portFile string
	grace    time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	exited  chan struct{}
	exitErr error
}

// New creates a Supervisor for the server binary at binPath. portFile is
// where the child announces its bound port.
func New(binPath string, args []string, portFile string) *Supervisor {
	return &Supervisor{
		binPath:  binPath,
		args:     args,
		portFile: portFile,
		grace:    DefaultGracePeriod,
	}
}

// Start spawns the child. Any stale port file from a previous run is
// removed first so ServerPort cannot pick up an old port.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return errors.New("supervisor: already started")
	}

	if err := os.Remove(s.portFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale port file: %w", err)
	}

	cmd := exec.Command(s.binPath, s.args...)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Printf("SUPERVISOR_SPAWNED | pid=%d bin=%s", cmd.Process.Pid, s.binPath)

	s.cmd = cmd
	s.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		log.Printf("SUPERVISOR_CHILD_EXITED | pid=%d err=%v", cmd.Process.Pid, err)
		close(s.exited)
	}()
	return nil
}

// ServerPort blocks until the child has announced its port, then returns
// it. It fails when the child exits first or ctx is cancelled. Callers must
// resolve the port before issuing any HTTP request.
func (s *Supervisor) ServerPort(ctx context.Context) (int, error) {
	s.mu.Lock()
	exited := s.exited
	s.mu.Unlock()
	if exited == nil {
		return 0, ErrNotStarted
	}

	// The file may already be there from a fast-starting child.
	if port, err := readPortFile(s.portFile); err == nil {
		return port, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return 0, fmt.Errorf("watch port file: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the file appears via an atomic rename, which
	// the directory sees as a create.
	if err := watcher.Add(filepath.Dir(s.portFile)); err != nil {
		return 0, fmt.Errorf("watch port file: %w", err)
	}

	// Re-check after the watch is in place to close the gap where the file
	// landed between the first read and watcher.Add.
	if port, err := readPortFile(s.portFile); err == nil {
		return port, nil
	}

	for {
		select {
		case event := <-watcher.Events:
			if event.Name != s.portFile {
				continue
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			port, err := readPortFile(s.portFile)
			if err != nil {
				// Partial write; wait for the next event.
				continue
			}
			return port, nil
		case err := <-watcher.Errors:
			return 0, fmt.Errorf("watch port file: %w", err)
		case <-exited:
			s.mu.Lock()
			exitErr := s.exitErr
			s.mu.Unlock()
			return 0, fmt.Errorf("server exited before announcing a port: %w", exitErr)
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Exited returns a channel closed when the child exits.
func (s *Supervisor) Exited() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

// Stop terminates the child: polite signal first, hard kill after the
// grace period. Returns once the child is gone.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	exited := s.exited
	s.mu.Unlock()

	if cmd == nil {
		return ErrNotStarted
	}

	select {
	case <-exited:
		return nil
	default:
	}

	log.Printf("SUPERVISOR_STOP | pid=%d", cmd.Process.Pid)
	if err := terminate(cmd); err != nil {
		log.Printf("SUPERVISOR_TERM_FAILED | pid=%d err=%v", cmd.Process.Pid, err)
	}

	select {
	case <-exited:
		return nil
	case <-time.After(s.grace):
		log.Printf("SUPERVISOR_KILL | pid=%d grace=%v", cmd.Process.Pid, s.grace)
		if err := kill(cmd); err != nil {
			return err
		}
		<-exited
		return nil
	}
}

// readPortFile parses the announced port. The file holds the decimal port
// number and nothing else.
func readPortFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed port file %s: %w", path, err)
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}
