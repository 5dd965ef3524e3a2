// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/config"
	"github.com/pranaigiri/offlineai-ai-chat-assistant/internal/store"
)

// Client is the UI-side client of the local API server. All calls go over
// loopback HTTP; the base URL is resolved by the supervisor once the server
// announces its port.
type Client struct {
	baseURL string
	store   *store.Store
	models  []config.ModelDescriptor

	// No overall timeout: /chat streams and /change-model blocks through
	// model pulls. Per-call deadlines come from the caller's context.
	httpClient *http.Client
}

// New creates a Client against baseURL. The model catalog is static,
// loaded once from configuration.
func New(baseURL string, st *store.Store, models []config.ModelDescriptor) *Client {
	return &Client{
		baseURL:    baseURL,
		store:      st,
		models:     models,
		httpClient: &http.Client{},
	}
}

// Store exposes the session store backing this client.
func (c *Client) Store() *store.Store {
	return c.store
}

// Models returns the configured model catalog.
func (c *Client) Models() []config.ModelDescriptor {
	out := make([]config.ModelDescriptor, len(c.models))
	copy(out, c.models)
	return out
}

// ActiveModel reports the server's active model and whether the runtime
// has it.
func (c *Client) ActiveModel(ctx context.Context) (model string, exists bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/active-model", nil)
	if err != nil {
		return "", false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("active-model: status %d", resp.StatusCode)
	}

	var body struct {
		Model       string `json:"model"`
		ModelExists bool   `json:"modelExists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, err
	}
	return body.Model, body.ModelExists, nil
}

// ChangeModel asks the server to switch models. When the model is absent
// the call blocks while the server pulls it; track progress with a Poller
// in the meantime.
func (c *Client) ChangeModel(ctx context.Context, model string) (string, error) {
	payload, err := json.Marshal(map[string]string{"model": model})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/change-model", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("change-model: status %d", resp.StatusCode)
	}

	var body struct {
		Message     string `json:"message"`
		ActiveModel string `json:"activeModel"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.ActiveModel, nil
}

// DownloadProgress reports pull progress for model, 0-100, and whether the
// runtime already has it.
func (c *Client) DownloadProgress(ctx context.Context, model string) (progress int, exists bool, err error) {
	query := url.Values{"model": {model}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/download-progress?"+query.Encode(), nil)
	if err != nil {
		return 0, false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, false, fmt.Errorf("download-progress: status %d", resp.StatusCode)
	}

	var body struct {
		Progress    int    `json:"progress"`
		Model       string `json:"model"`
		ModelExists bool   `json:"modelExists"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false, err
	}
	return body.Progress, body.ModelExists, nil
}
