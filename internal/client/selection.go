// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"log"
	"sync"
)

// SelectionState is the model selection lifecycle state.
type SelectionState int

const (
	// SelectionUnselected means no model has been chosen yet.
	SelectionUnselected SelectionState = iota

	// SelectionChecking means the chosen model's presence is being probed.
	SelectionChecking

	// SelectionDownloading means the runtime is pulling the chosen model.
	SelectionDownloading

	// SelectionReady means the chosen model is active and usable.
	SelectionReady
)

// String returns the state name.
func (s SelectionState) String() string {
	switch s {
	case SelectionUnselected:
		return "unselected"
	case SelectionChecking:
		return "checking"
	case SelectionDownloading:
		return "downloading"
	case SelectionReady:
		return "ready"
	default:
		return "unknown"
	}
}

// SelectionEvents carries the callbacks a Select call can fire. Nil
// callbacks are skipped.
type SelectionEvents struct {
	// OnProgress fires for each in-progress download observation.
	OnProgress func(progress int)

	// OnDownloaded fires once when a download completes. Models that were
	// already present never fire it.
	OnDownloaded func()

	// OnReady fires when the model is active and usable.
	OnReady func()
}

// Selection drives the model selection flow:
//
//	unselected -> checking -> ready            (model already present)
//	unselected -> checking -> downloading -> ready
//
// Present models go straight to ready with zero progress events. Absent
// models enter downloading, a Poller tracks the pull, and the blocking
// change-model call marks the end.
type Selection struct {
	client *Client

	// makePoller builds the poller for a downloading Select. Overridable
	// so tests can shrink the poll interval.
	makePoller func() *Poller

	mu     sync.Mutex
	state  SelectionState
	model  string
	poller *Poller
}

// NewSelection creates a Selection over client.
func NewSelection(client *Client) *Selection {
	s := &Selection{client: client}
	s.makePoller = func() *Poller { return NewPoller(client) }
	return s
}

// State returns the current selection state.
func (s *Selection) State() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Model returns the selected model, or "" before the first Select.
func (s *Selection) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Select makes model the active model, downloading it first when the
// runtime does not have it. Select blocks until the model is ready or the
// attempt fails; a failure rolls the state back to unselected.
func (s *Selection) Select(ctx context.Context, model string, events SelectionEvents) error {
	s.set(SelectionChecking, model)

	_, exists, err := s.client.DownloadProgress(ctx, model)
	if err != nil {
		s.set(SelectionUnselected, "")
		return err
	}

	if exists {
		if _, err := s.client.ChangeModel(ctx, model); err != nil {
			s.set(SelectionUnselected, "")
			return err
		}
		s.set(SelectionReady, model)
		if events.OnReady != nil {
			events.OnReady()
		}
		return nil
	}

	s.set(SelectionDownloading, model)
	log.Printf("MODEL_DOWNLOAD_START | model=%s", model)

	poller := s.newPoller()
	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(pollCtx, model, events.OnProgress, events.OnDownloaded)
	}()

	// Blocks for the duration of the pull.
	_, err = s.client.ChangeModel(ctx, model)
	if err != nil {
		// A failed pull never reaches a terminal progress state; cut the
		// poller loose instead of waiting on it.
		cancelPoll()
		<-pollerDone
		s.set(SelectionUnselected, "")
		return err
	}

	// Let the poller observe the terminal state before moving on, so the
	// one-time downloaded notification lands before ready does.
	<-pollerDone

	s.set(SelectionReady, model)
	log.Printf("MODEL_DOWNLOAD_READY | model=%s", model)
	if events.OnReady != nil {
		events.OnReady()
	}
	return nil
}

// newPoller creates the poller for one downloading Select and remembers it
// for State inspection.
func (s *Selection) newPoller() *Poller {
	p := s.makePoller()
	s.mu.Lock()
	s.poller = p
	s.mu.Unlock()
	return p
}

func (s *Selection) set(state SelectionState, model string) {
	s.mu.Lock()
	s.state = state
	s.model = model
	s.mu.Unlock()
}
