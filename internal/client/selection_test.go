// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFastSelection(cli *Client) *Selection {
	sel := NewSelection(cli)
	sel.makePoller = func() *Poller {
		p := NewPoller(cli)
		p.after = immediateAfter
		return p
	}
	return sel
}

func TestSelectPresentModelReadyWithoutTicks(t *testing.T) {
	api := newFakeAPI()
	api.progressSeq = []progressResp{{100, true}}
	cli := newTestClient(t, api)
	sel := newFastSelection(cli)

	var ticks, downloaded, ready int
	err := sel.Select(context.Background(), "gemma3:1b", SelectionEvents{
		OnProgress:   func(int) { ticks++ },
		OnDownloaded: func() { downloaded++ },
		OnReady:      func() { ready++ },
	})
	require.NoError(t, err)

	assert.Equal(t, SelectionReady, sel.State())
	assert.Equal(t, "gemma3:1b", sel.Model())
	assert.Equal(t, 0, ticks, "present model must not produce progress ticks")
	assert.Equal(t, 0, downloaded)
	assert.Equal(t, 1, ready)
}

func TestSelectAbsentModelDownloadsThenReady(t *testing.T) {
	api := newFakeAPI()
	// Probe sees the model absent, the poller watches the pull climb, and
	// the final state repeats as present at 100.
	api.progressSeq = []progressResp{
		{0, false},
		{25, false},
		{60, false},
		{100, true},
	}
	api.changeDelay = 20 * time.Millisecond
	cli := newTestClient(t, api)
	sel := newFastSelection(cli)

	var ticks []int
	var downloaded, ready int
	err := sel.Select(context.Background(), "qwen2.5:1.5b", SelectionEvents{
		OnProgress:   func(p int) { ticks = append(ticks, p) },
		OnDownloaded: func() { downloaded++ },
		OnReady:      func() { ready++ },
	})
	require.NoError(t, err)

	assert.Equal(t, SelectionReady, sel.State())
	assert.NotEmpty(t, ticks, "an absent model must produce at least one progress tick")
	assert.Equal(t, 1, downloaded)
	assert.Equal(t, 1, ready)
}

func TestSelectChangeFailureRollsBack(t *testing.T) {
	api := newFakeAPI()
	api.progressSeq = []progressResp{{100, true}}
	api.changeFail = true
	cli := newTestClient(t, api)
	sel := newFastSelection(cli)

	err := sel.Select(context.Background(), "gemma3:1b", SelectionEvents{})
	require.Error(t, err)
	assert.Equal(t, SelectionUnselected, sel.State())
	assert.Empty(t, sel.Model())
}

func TestSelectAbsentModelPullFailure(t *testing.T) {
	api := newFakeAPI()
	api.progressSeq = []progressResp{{0, false}}
	api.changeFail = true
	cli := newTestClient(t, api)
	sel := newFastSelection(cli)

	var downloaded int
	err := sel.Select(context.Background(), "missing:1b", SelectionEvents{
		OnDownloaded: func() { downloaded++ },
	})
	require.Error(t, err)

	// The poller never reaches a terminal progress state on a failed pull;
	// Select must still return instead of waiting on it.
	assert.Equal(t, SelectionUnselected, sel.State())
	assert.Equal(t, 0, downloaded)
}

func TestPollerCompletesOnce(t *testing.T) {
	api := newFakeAPI()
	api.progressSeq = []progressResp{{40, false}, {100, true}}
	cli := newTestClient(t, api)

	p := NewPoller(cli)
	p.after = immediateAfter

	var completions int
	p.Run(context.Background(), "m", nil, func() { completions++ })
	assert.Equal(t, PollerComplete, p.State())
	assert.Equal(t, 1, completions)

	// A second run observing completion again must not re-fire.
	p.Run(context.Background(), "m", nil, func() { completions++ })
	assert.Equal(t, 1, completions)
}

func TestPollerStopsWhenNothingToTrack(t *testing.T) {
	api := newFakeAPI()
	// Present model with a zero counter: nothing in flight.
	api.progressSeq = []progressResp{{0, true}}
	cli := newTestClient(t, api)

	p := NewPoller(cli)
	p.after = immediateAfter

	var ticks int
	p.Run(context.Background(), "m", func(int) { ticks++ }, nil)
	assert.Equal(t, PollerIdle, p.State())
	assert.Equal(t, 0, ticks)
}

func TestPollerFailsSilently(t *testing.T) {
	api := newFakeAPI()
	cli := newTestClient(t, api)
	api.srv.Close() // every poll now errors

	p := NewPoller(cli)
	p.after = immediateAfter

	var ticks, completions int
	p.Run(context.Background(), "m", func(int) { ticks++ }, func() { completions++ })
	assert.Equal(t, PollerFailed, p.State())
	assert.Equal(t, 0, ticks)
	assert.Equal(t, 0, completions)
}
