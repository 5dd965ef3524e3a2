// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/ollama"
)

// ErrStateClosed is returned by Ensure after Close.
var ErrStateClosed = errors.New("model state closed")

// ensureRequest is one queued change-model request.
type ensureRequest struct {
	model string
	reply chan error
}

// ModelState owns the active model, the per-model download progress
// counters, and a single worker goroutine that serializes ensure-model
// requests. Concurrent change-model calls queue behind each other instead of
// racing two pulls of the same model.
//
// Readers (the progress and chat endpoints) never block on the worker.
type ModelState struct {
	client *ollama.Client

	mu       sync.RWMutex
	active   string
	progress map[string]int

	requests chan ensureRequest
	closing  sync.Once
	done     chan struct{}
}

// NewModelState creates a ModelState with the given initial active model and
// starts the worker.
func NewModelState(client *ollama.Client, initial string) *ModelState {
	ms := &ModelState{
		client:   client,
		active:   initial,
		progress: make(map[string]int),
		requests: make(chan ensureRequest),
		done:     make(chan struct{}),
	}
	go ms.worker()
	return ms
}

// Active returns the current active model.
func (ms *ModelState) Active() string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.active
}

// Progress returns the last recorded download progress for model, 0-100.
// Unknown models report 0.
func (ms *ModelState) Progress(model string) int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.progress[model]
}

// Ensure makes model the active model, pulling it first when the runtime
// does not have it. Requests are serialized through the worker; Ensure
// blocks until this request completes or ctx is cancelled. A cancelled
// waiter does not abort the pull already in flight.
func (ms *ModelState) Ensure(ctx context.Context, model string) error {
	req := ensureRequest{model: model, reply: make(chan error, 1)}

	select {
	case ms.requests <- req:
	case <-ms.done:
		return ErrStateClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Pending Ensure calls receive ErrStateClosed.
func (ms *ModelState) Close() {
	ms.closing.Do(func() { close(ms.done) })
}

// worker drains the request queue one ensure at a time.
func (ms *ModelState) worker() {
	for {
		select {
		case <-ms.done:
			return
		case req := <-ms.requests:
			req.reply <- ms.ensure(req.model)
		}
	}
}

// ensure performs one serialized ensure-model. The pull runs on a background
// context so a disconnected requester does not abandon a half-finished
// download.
func (ms *ModelState) ensure(model string) error {
	ctx := context.Background()

	exists, err := ms.client.ModelExists(ctx, model)
	if err != nil {
		log.Printf("MODEL_CHECK_FAILED | model=%s error=%v", model, err)
		return err
	}

	if !exists {
		log.Printf("MODEL_PULL_START | model=%s", model)
		err := ms.client.Pull(ctx, model, func(pct int) {
			ms.setProgress(model, pct)
		})
		if err != nil {
			log.Printf("MODEL_PULL_FAILED | model=%s error=%v", model, err)
			return err
		}
		log.Printf("MODEL_PULL_DONE | model=%s", model)
	}

	ms.mu.Lock()
	ms.active = model
	ms.mu.Unlock()
	log.Printf("MODEL_ACTIVE | model=%s", model)
	return nil
}

func (ms *ModelState) setProgress(model string, pct int) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.progress[model] = pct
}
