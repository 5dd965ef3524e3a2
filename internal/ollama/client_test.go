// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(url string) *Client {
	return NewClientWithConfig(&ClientConfig{BaseURL: url})
}

func TestCheckRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Ollama is running"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if err := client.CheckRunning(context.Background()); err != nil {
		t.Errorf("CheckRunning failed: %v", err)
	}
}

func TestCheckRunningDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := newTestClient(srv.URL)
	err := client.CheckRunning(context.Background())
	if err == nil {
		t.Fatal("expected error against closed server")
	}
	if !IsNotRunning(err) {
		t.Errorf("expected not-running error, got %v", err)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"gemma3:1b","size":815319791},{"name":"llama3.2:latest"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("got %d models, want 2", len(models))
	}
	if models[0].Name != "gemma3:1b" {
		t.Errorf("first model = %q", models[0].Name)
	}
}

func TestContainsModel(t *testing.T) {
	listing := []ModelInfo{
		{Name: "gemma3:1b"},
		{Name: "llama3.2:latest"},
		{Name: "mistral"},
	}

	tests := []struct {
		name  string
		model string
		want  bool
	}{
		{"exact tag match", "gemma3:1b", true},
		{"bare name against latest tag", "llama3.2", true},
		{"latest tag against bare name", "mistral:latest", true},
		{"bare name exact", "mistral", true},
		{"different tag", "gemma3:4b", false},
		{"absent model", "qwen2.5:1.5b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsModel(listing, tt.model); got != tt.want {
				t.Errorf("containsModel(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestModelExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"gemma3:1b"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	exists, err := client.ModelExists(context.Background(), "gemma3:1b")
	if err != nil {
		t.Fatalf("ModelExists failed: %v", err)
	}
	if !exists {
		t.Error("gemma3:1b should exist")
	}

	exists, err = client.ModelExists(context.Background(), "missing:1b")
	if err != nil {
		t.Fatalf("ModelExists failed: %v", err)
	}
	if exists {
		t.Error("missing:1b should not exist")
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"model":"gemma3:1b","message":{"role":"assistant","content":"Hel"},"done":false}` + "\n"))
		w.Write([]byte(`{"model":"gemma3:1b","message":{"role":"assistant","content":"lo"},"done":false}` + "\n"))
		w.Write([]byte(`{"model":"gemma3:1b","message":{"role":"assistant","content":""},"done":true,"done_reason":"stop"}` + "\n"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	var got []string
	var done bool
	err := client.ChatStream(context.Background(), "gemma3:1b", []Message{NewUserMessage("hi")}, func(chunk StreamChunk) {
		if chunk.Content != "" {
			got = append(got, chunk.Content)
		}
		if chunk.Done {
			done = true
		}
	})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	if strings.Join(got, "") != "Hello" {
		t.Errorf("accumulated %q, want Hello", strings.Join(got, ""))
	}
	if !done {
		t.Error("final chunk should be marked done")
	}
}

func TestChatStreamUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model runner crashed"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "gemma3:1b", nil, func(StreamChunk) {})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model runner crashed") {
		t.Errorf("error should carry upstream message, got %v", err)
	}
}

func TestChatStreamModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.ChatStream(context.Background(), "nope:1b", nil, func(StreamChunk) {})
	if !IsModelNotFound(err) {
		t.Errorf("expected model-not-found, got %v", err)
	}
}

func TestPullProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pull" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		lines := []string{
			`{"status":"pulling manifest"}`,
			`{"status":"pulling abc","digest":"sha256:abc","total":1000,"completed":250}`,
			`{"status":"pulling abc","digest":"sha256:abc","total":1000,"completed":500}`,
			`{"status":"pulling abc","digest":"sha256:abc","total":1000,"completed":1000}`,
			`{"status":"verifying sha256 digest"}`,
			`{"status":"success"}`,
		}
		for _, l := range lines {
			w.Write([]byte(l + "\n"))
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)

	var seen []int
	err := client.Pull(context.Background(), "gemma3:1b", func(pct int) {
		seen = append(seen, pct)
	})
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}

	if len(seen) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Errorf("progress went backwards: %v", seen)
		}
	}
	if seen[len(seen)-1] != 100 {
		t.Errorf("final progress = %d, want 100", seen[len(seen)-1])
	}
}

func TestPullError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pulling manifest"}` + "\n"))
		w.Write([]byte(`{"error":"pull model manifest: file does not exist"}` + "\n"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	err := client.Pull(context.Background(), "missing:1b", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "file does not exist") {
		t.Errorf("error should carry upstream message, got %v", err)
	}
}

func TestPullStatusPercent(t *testing.T) {
	tests := []struct {
		name   string
		status PullStatus
		want   int
	}{
		{"no totals", PullStatus{Status: "pulling manifest"}, 0},
		{"halfway", PullStatus{Status: "pulling", Total: 200, Completed: 100}, 50},
		{"complete layer", PullStatus{Status: "pulling", Total: 200, Completed: 200}, 100},
		{"overshoot clamped", PullStatus{Status: "pulling", Total: 100, Completed: 150}, 100},
		{"success", PullStatus{Status: "success"}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Percent(); got != tt.want {
				t.Errorf("Percent() = %d, want %d", got, tt.want)
			}
		})
	}
}
