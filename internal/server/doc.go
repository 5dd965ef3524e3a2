// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

// Package server implements the loopback HTTP API between the chat UI and
// the Ollama runtime.
//
// # Endpoints
//
//   - GET  /active-model       current model and whether the runtime has it
//   - POST /change-model       switch models, pulling the new one if absent
//   - GET  /download-progress  pull progress for a model, 0-100
//   - POST /chat               one streamed completion, relayed as chunked
//     text/plain with a flush per fragment
//
// The server is stateless across chat calls: the client sends its full
// trimmed history each time. Change-model requests serialize through a
// single ModelState worker, and in-flight chat streams keep the model
// snapshot taken when the request started.
//
// # Usage
//
//	srv := server.New(cfg, ollamaClient)
//	go srv.Start()
//	...
//	srv.Shutdown(ctx)
//
// Start announces the bound port on stdout ("SERVER_LISTENING | port=N")
// and writes it to the runtime port file for the process supervisor.
package server
