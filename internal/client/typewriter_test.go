// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

// collector gathers emitted characters.
type collector struct {
	mu  sync.Mutex
	out strings.Builder
}

func (c *collector) emit(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.WriteString(s)
}

func (c *collector) text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func TestTypewriterPreservesOrder(t *testing.T) {
	var col collector
	tw := NewTypewriterRate(rate.Inf, col.emit)

	tw.Write("Hel")
	tw.Write("lo, ")
	tw.Write("world")
	tw.Close()

	assert.Equal(t, "Hello, world", col.text())
}

func TestTypewriterFlushDrains(t *testing.T) {
	var col collector
	// One character per hour: without Flush this would never finish.
	tw := NewTypewriterRate(rate.Limit(1.0/3600), col.emit)
	defer tw.Close()

	tw.Write("instant")
	done := make(chan struct{})
	go func() {
		tw.Flush()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Flush did not drain")
	}
	assert.Equal(t, "instant", col.text())
}

func TestTypewriterWriteAfterCloseIsDropped(t *testing.T) {
	var col collector
	tw := NewTypewriterRate(rate.Inf, col.emit)
	tw.Write("kept")
	tw.Close()

	tw.Write("dropped")
	assert.Equal(t, "kept", col.text())
}

func TestTypewriterHandlesMultibyte(t *testing.T) {
	var col collector
	tw := NewTypewriterRate(rate.Inf, col.emit)

	tw.Write("héllo 世界")
	tw.Close()

	assert.Equal(t, "héllo 世界", col.text())
}
