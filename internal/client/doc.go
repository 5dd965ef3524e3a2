// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

// Package client is the UI-facing side of the app: it talks to the local
// API server, owns the session store, and drives the model selection and
// chat flows.
//
// # Key Types
//
//   - Client: loopback HTTP client for the local API.
//   - Selection: model selection state machine. Present models go straight
//     to ready; absent ones download first, tracked by a Poller.
//   - Poller: 1 Hz download-progress poller with an injectable timer.
//   - Typewriter: rate-limited per-character display feed for streamed
//     responses.
//
// # Chat Flow
//
//	text, err := cli.Send(ctx, sessionID, input, tw.Write)
//
// Send appends the user message first, posts the full trimmed history, and
// relays response fragments in arrival order. Failures surface the fixed
// message in SendFailedMessage and leave the user message in history.
package client
