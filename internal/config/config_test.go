// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DefaultModel == "" {
		t.Error("default model should not be empty")
	}
	if len(cfg.Models) == 0 {
		t.Error("default models list should not be empty")
	}
	if !cfg.HasModel(cfg.DefaultModel) {
		t.Errorf("default model %q should be in the models list", cfg.DefaultModel)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.PreferredPort != 3000 {
		t.Errorf("default preferred port = %d, want 3000", cfg.Server.PreferredPort)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromPathTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
default_model = "llama3.2:1b"

[server]
preferred_port = 4100

[ollama]
url = "http://localhost:12000"

[[models]]
value = "llama3.2:1b"
label = "Llama 3.2 1B"

[[models]]
value = "gemma3:1b"
label = "Gemma 3 1B"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if cfg.DefaultModel != "llama3.2:1b" {
		t.Errorf("default model = %q, want llama3.2:1b", cfg.DefaultModel)
	}
	if cfg.Server.PreferredPort != 4100 {
		t.Errorf("preferred port = %d, want 4100", cfg.Server.PreferredPort)
	}
	if cfg.Ollama.URL != "http://localhost:12000" {
		t.Errorf("ollama url = %q", cfg.Ollama.URL)
	}
	if len(cfg.Models) != 2 {
		t.Errorf("models = %d, want 2", len(cfg.Models))
	}
	// Unset fields fall back to defaults.
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host should default to 127.0.0.1, got %q", cfg.Server.Host)
	}
	if cfg.Ollama.TimeoutSecs != 30 {
		t.Errorf("timeout should default to 30, got %d", cfg.Ollama.TimeoutSecs)
	}
}

func TestLoadFromPathJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
  "default_model": "gemma3:1b",
  "models": [{"value": "gemma3:1b", "label": "Gemma 3 1B"}],
  "server": {"preferred_port": 4200}
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Server.PreferredPort != 4200 {
		t.Errorf("preferred port = %d, want 4200", cfg.Server.PreferredPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid default",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "empty default model",
			mutate:  func(c *Config) { c.DefaultModel = "" },
			wantErr: "default_model",
		},
		{
			name:    "default model not listed",
			mutate:  func(c *Config) { c.DefaultModel = "missing:1b" },
			wantErr: "not in the models list",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.PreferredPort = 70000 },
			wantErr: "server.preferred_port",
		},
		{
			name:    "bad ollama url",
			mutate:  func(c *Config) { c.Ollama.URL = "not a url" },
			wantErr: "ollama.url",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Ollama.TimeoutSecs = -1 },
			wantErr: "ollama.timeout_secs",
		},
		{
			name: "empty model value",
			mutate: func(c *Config) {
				c.Models = append(c.Models, ModelDescriptor{Label: "Broken"})
			},
			wantErr: "models[",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("OFFLINEAI_DEFAULT_MODEL", "qwen2.5:1.5b")
	t.Setenv("OFFLINEAI_PORT", "5123")
	t.Setenv("OFFLINEAI_OLLAMA_URL", "http://localhost:21434")
	t.Setenv("OFFLINEAI_DATA_DIR", "/tmp/offlineai-test")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.DefaultModel != "qwen2.5:1.5b" {
		t.Errorf("default model = %q", cfg.DefaultModel)
	}
	if cfg.Server.PreferredPort != 5123 {
		t.Errorf("port = %d", cfg.Server.PreferredPort)
	}
	if cfg.Ollama.URL != "http://localhost:21434" {
		t.Errorf("ollama url = %q", cfg.Ollama.URL)
	}
	if cfg.Storage.DataDir != "/tmp/offlineai-test" {
		t.Errorf("data dir = %q", cfg.Storage.DataDir)
	}
}

func TestApplyEnvOverridesBadPort(t *testing.T) {
	t.Setenv("OFFLINEAI_PORT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.PreferredPort != 3000 {
		t.Errorf("bad port override should be ignored, got %d", cfg.Server.PreferredPort)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	if got := ExpandHome("~/.offlineai"); got != filepath.Join(home, ".offlineai") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.DataDir = "/data/offlineai"

	if got := cfg.SessionsPath(); got != filepath.Join("/data/offlineai", "sessions.json") {
		t.Errorf("SessionsPath = %q", got)
	}
	if got := cfg.PortFilePath(); got != filepath.Join("/data/offlineai", "server.port") {
		t.Errorf("PortFilePath = %q", got)
	}
}

func TestGlobalRespectsSetGlobal(t *testing.T) {
	t.Setenv("HOME", t.TempDir()) // keep Load away from a real user config
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	custom := Default()
	custom.DefaultModel = "llama3.2:1b"
	SetGlobal(custom)

	if Global() != custom {
		t.Error("Global should return the instance installed by SetGlobal")
	}
	// The lazy load must not clobber an installed config on first access.
	if Global() != custom {
		t.Error("repeated Global calls should keep returning the installed instance")
	}
}

func TestGlobalLazyLoadsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	cfg := Global()
	if cfg == nil {
		t.Fatal("Global returned nil")
	}
	if cfg.DefaultModel != Default().DefaultModel {
		t.Errorf("default model = %q, want %q", cfg.DefaultModel, Default().DefaultModel)
	}
	if again := Global(); again != cfg {
		t.Error("Global should be stable across calls")
	}
}

func TestSaveAndReloadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.DefaultModel = "llama3.2:1b"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.DefaultModel != "llama3.2:1b" {
		t.Errorf("reloaded default model = %q", loaded.DefaultModel)
	}
	if len(loaded.Models) != len(cfg.Models) {
		t.Errorf("reloaded models = %d, want %d", len(loaded.Models), len(cfg.Models))
	}
}
