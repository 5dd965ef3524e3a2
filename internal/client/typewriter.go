// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultCharsPerSecond is the default typewriter display rate.
const DefaultCharsPerSecond = 40

// Typewriter smooths bursty stream fragments into a steady per-character
// display feed. Producers push whole fragments with Write; a consumer
// goroutine drains them one character at a time through a rate limiter and
// hands each character to the emit callback.
//
// Flush bypasses the limiter and drains everything pending at once, for
// stream completion or teardown.
type Typewriter struct {
	limiter *rate.Limiter
	emit    func(string)

	mu        sync.Mutex
	cond      *sync.Cond
	buf       []rune
	pending   bool
	flushing  bool
	closed    bool
	pacerCtx  context.Context
	pacerStop context.CancelFunc
	drained   chan struct{}
}

// NewTypewriter creates a Typewriter emitting charsPerSec characters per
// second through emit and starts its consumer.
func NewTypewriter(charsPerSec float64, emit func(string)) *Typewriter {
	return NewTypewriterRate(rate.Limit(charsPerSec), emit)
}

// NewTypewriterRate is NewTypewriter with an explicit rate.Limit. Use
// rate.Inf for unthrottled output.
func NewTypewriterRate(limit rate.Limit, emit func(string)) *Typewriter {
	tw := &Typewriter{
		limiter: rate.NewLimiter(limit, 1),
		emit:    emit,
		drained: make(chan struct{}),
	}
	tw.cond = sync.NewCond(&tw.mu)
	tw.pacerCtx, tw.pacerStop = context.WithCancel(context.Background())
	go tw.consume()
	return tw
}

// Write queues a fragment for display. Safe after Close; the fragment is
// silently dropped.
func (tw *Typewriter) Write(fragment string) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.closed {
		return
	}
	tw.buf = append(tw.buf, []rune(fragment)...)
	tw.cond.Broadcast()
}

// Flush emits everything pending immediately and blocks until the buffer is
// empty. A consumer parked in the limiter is released at once. The rate
// limit applies again to characters written afterwards.
func (tw *Typewriter) Flush() {
	tw.mu.Lock()
	tw.flushing = true
	stop := tw.pacerStop
	tw.cond.Broadcast()
	tw.mu.Unlock()

	stop()

	tw.mu.Lock()
	defer tw.mu.Unlock()
	for (len(tw.buf) > 0 || tw.pending) && !tw.closed {
		tw.cond.Wait()
	}
	tw.flushing = false
	tw.pacerCtx, tw.pacerStop = context.WithCancel(context.Background())
}

// Close flushes pending output and stops the consumer.
func (tw *Typewriter) Close() {
	tw.Flush()

	tw.mu.Lock()
	if tw.closed {
		tw.mu.Unlock()
		return
	}
	tw.closed = true
	tw.cond.Broadcast()
	tw.mu.Unlock()

	<-tw.drained
}

// consume is the consumer loop: pop one character, pace it unless a flush
// is in progress, emit it.
func (tw *Typewriter) consume() {
	defer close(tw.drained)

	for {
		tw.mu.Lock()
		for len(tw.buf) == 0 && !tw.closed {
			tw.cond.Wait()
		}
		if len(tw.buf) == 0 && tw.closed {
			tw.mu.Unlock()
			return
		}

		ch := string(tw.buf[0])
		tw.buf = tw.buf[1:]
		tw.pending = true
		flushing := tw.flushing
		pacer := tw.pacerCtx
		tw.mu.Unlock()

		if !flushing {
			// A cancelled wait means a flush started mid-pause; emit the
			// character immediately in that case.
			_ = tw.limiter.Wait(pacer)
		}
		tw.emit(ch)

		tw.mu.Lock()
		tw.pending = false
		if len(tw.buf) == 0 {
			// Wake a Flush waiting on the drain.
			tw.cond.Broadcast()
		}
		tw.mu.Unlock()
	}
}
