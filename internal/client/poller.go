// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"sync"
	"time"
)

// PollInterval is the delay between download-progress polls.
const PollInterval = time.Second

// PollerState is the poller's lifecycle state.
type PollerState int

const (
	// PollerIdle means the poller has not started, or stopped because
	// there was nothing to track.
	PollerIdle PollerState = iota

	// PollerPolling means a download is being tracked.
	PollerPolling

	// PollerComplete means the download finished. Terminal.
	PollerComplete

	// PollerFailed means a poll failed and polling stopped. Terminal;
	// failures are silent, no further events fire.
	PollerFailed
)

// String returns the state name.
func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerPolling:
		return "polling"
	case PollerComplete:
		return "complete"
	case PollerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Poller tracks a model download by polling the download-progress endpoint
// once per PollInterval until it reaches a terminal state.
//
// The wait between polls goes through an injectable after function so tests
// run without real timers.
type Poller struct {
	client   *Client
	interval time.Duration
	after    func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	state     PollerState
	completed bool
}

// NewPoller creates a Poller against client with the default interval.
func NewPoller(client *Client) *Poller {
	return &Poller{
		client:   client,
		interval: PollInterval,
		after:    time.After,
	}
}

// State returns the current poller state.
func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run polls until terminal, invoking onTick for every in-progress
// observation and onComplete exactly once when the download finishes.
// Run blocks; callers run it on their own goroutine.
//
// Transitions:
//   - progress 100 and model present: complete, one-time onComplete.
//   - progress over 0, or model absent: in-progress tick, keep polling.
//   - progress 0 and model present: nothing to track, back to idle.
//   - poll failure: failed, stop silently.
func (p *Poller) Run(ctx context.Context, model string, onTick func(progress int), onComplete func()) {
	p.setState(PollerPolling)

	for {
		progress, exists, err := p.client.DownloadProgress(ctx, model)
		if err != nil {
			p.setState(PollerFailed)
			return
		}

		switch {
		case progress == 100 && exists:
			p.complete(onComplete)
			return
		case progress == 0 && exists:
			p.setState(PollerIdle)
			return
		default:
			if onTick != nil {
				onTick(progress)
			}
		}

		select {
		case <-ctx.Done():
			p.setState(PollerFailed)
			return
		case <-p.after(p.interval):
		}
	}
}

// complete marks the poller complete and fires onComplete at most once
// across the poller's lifetime, however many runs observe completion.
func (p *Poller) complete(onComplete func()) {
	p.mu.Lock()
	first := !p.completed
	p.completed = true
	p.state = PollerComplete
	p.mu.Unlock()

	if first && onComplete != nil {
		onComplete()
	}
}

func (p *Poller) setState(s PollerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}
