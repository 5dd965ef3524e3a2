// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/config"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/ollama"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/util"
)

// ============================================================================
// Server
// ============================================================================

// Server is the local HTTP API bridging the chat UI to the Ollama runtime.
// It binds to loopback only.
type Server struct {
	cfg    *config.Config
	client *ollama.Client
	state  *ModelState

	router     *http.ServeMux
	httpServer *http.Server
	port       int
}

// New creates a Server. The active model starts at the configured default.
func New(cfg *config.Config, client *ollama.Client) *Server {
	s := &Server{
		cfg:    cfg,
		client: client,
		state:  NewModelState(client, cfg.DefaultModel),
		router: http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /active-model", s.handleActiveModel)
	s.router.HandleFunc("POST /change-model", s.handleChangeModel)
	s.router.HandleFunc("GET /download-progress", s.handleDownloadProgress)
	s.router.HandleFunc("POST /chat", s.handleChat)
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		CORSMiddleware(DefaultCORSConfig()),
		RateLimitMiddleware(DefaultRateLimiter()),
	)(s.router)
}

// Start binds and serves. The preferred port is tried first; if the bind
// fails the server falls back to an ephemeral port. After binding, the port
// is written to the runtime port file and announced on stdout so the
// supervisor can discover it.
//
// Start blocks until the listener is closed.
func (s *Server) Start() error {
	host := s.cfg.Server.Host

	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, s.cfg.Server.PreferredPort))
	if err != nil {
		log.Printf("PORT_FALLBACK | preferred=%d error=%v", s.cfg.Server.PreferredPort, err)
		ln, err = net.Listen("tcp", fmt.Sprintf("%s:0", host))
		if err != nil {
			return fmt.Errorf("bind failed: %w", err)
		}
	}
	s.port = ln.Addr().(*net.TCPAddr).Port

	if portFile := s.cfg.PortFilePath(); portFile != "" {
		if err := util.AtomicWriteFile(portFile, []byte(strconv.Itoa(s.port)), 0o600); err != nil {
			log.Printf("PORT_FILE_WRITE_FAILED | path=%s error=%v", portFile, err)
		}
	}

	// The supervisor scrapes this line from stdout as a fallback when the
	// port file is unreadable.
	fmt.Printf("SERVER_LISTENING | port=%d\n", s.port)
	log.Printf("SERVER_START | addr=%s:%d", host, s.port)

	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// No write timeout: change-model blocks on pulls and /chat streams
		// for as long as the model keeps generating.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	err = s.httpServer.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Port returns the bound port, valid after Start has bound the listener.
func (s *Server) Port() int {
	return s.port
}

// Shutdown drains in-flight requests and stops the model worker.
func (s *Server) Shutdown(ctx context.Context) error {
	s.state.Close()
	if s.httpServer == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | port=%d", s.port)
	return s.httpServer.Shutdown(ctx)
}

// ============================================================================
// Handlers
// ============================================================================

// handleActiveModel reports the active model and whether the runtime has it.
func (s *Server) handleActiveModel(w http.ResponseWriter, r *http.Request) {
	model := s.state.Active()

	exists, err := s.client.ModelExists(r.Context(), model)
	if err != nil {
		log.Printf("MODEL_LIST_FAILED | error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch model list")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model":       model,
		"modelExists": exists,
	})
}

// handleChangeModel switches the active model, pulling it first when absent.
// The request blocks for the duration of the pull.
func (s *Server) handleChangeModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "Model name is required")
		return
	}

	if err := s.state.Ensure(r.Context(), req.Model); err != nil {
		log.Printf("MODEL_CHANGE_FAILED | model=%s error=%v", req.Model, err)
		writeError(w, http.StatusInternalServerError, "Failed to change model")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":     fmt.Sprintf("Model changed to %s", req.Model),
		"activeModel": req.Model,
	})
}

// handleDownloadProgress reports pull progress for the queried model. A
// model the runtime already has always reports 100, whatever the counter
// says; the counter only describes an in-flight pull.
func (s *Server) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")

	exists, err := s.client.ModelExists(r.Context(), model)
	if err != nil {
		log.Printf("MODEL_LIST_FAILED | error=%v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch model list")
		return
	}

	progress := s.state.Progress(model)
	if exists {
		progress = 100
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"progress":    progress,
		"model":       model,
		"modelExists": exists,
	})
}

// chatRequest is the /chat request body. Messages stays a concrete slice so
// a non-list payload fails decoding and lands in the 400 path.
type chatRequest struct {
	SessionID string           `json:"sessionId"`
	Messages  []ollama.Message `json:"messages"`
}

// handleChat relays one streamed completion as chunked text/plain. Each
// fragment is written and flushed as soon as the runtime produces it. The
// server holds no conversation state; the client sends its full trimmed
// history every call.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Messages == nil {
		writeError(w, http.StatusBadRequest, "sessionId and messages are required")
		return
	}

	// Snapshot the active model now; a concurrent change-model does not
	// affect this stream.
	model := s.state.Active()
	log.Printf("CHAT_START | session=%s model=%s messages=%d", req.SessionID, model, len(req.Messages))

	flusher, canFlush := w.(http.Flusher)

	streaming := false
	err := s.client.ChatStream(r.Context(), model, req.Messages, func(chunk ollama.StreamChunk) {
		if chunk.Content == "" {
			return
		}
		if !streaming {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}
		if _, werr := w.Write([]byte(chunk.Content)); werr != nil {
			return
		}
		if canFlush {
			flusher.Flush()
		}
	})
	if err != nil {
		log.Printf("CHAT_FAILED | session=%s model=%s streaming=%v error=%v", req.SessionID, model, streaming, err)
		if !streaming {
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		// Mid-stream failure: the body is already partially written, the
		// truncation itself is the signal.
		return
	}

	if !streaming {
		// Empty completion. Still a success with an empty body.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
	log.Printf("CHAT_DONE | session=%s model=%s", req.SessionID, model)
}

// ============================================================================
// Response Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_FAILED | error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
