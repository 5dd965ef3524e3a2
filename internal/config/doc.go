// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

// Package config provides unified configuration loading and management for
// the OfflineAI chat assistant.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ModelDescriptor: One selectable model ({value, label})
//   - ServerConfig: Local API server bind settings
//   - OllamaConfig: Connection settings for the local runtime
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (OFFLINEAI_*)
//   - ~/.offlineai/config.toml
//   - ~/.offlineai/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	model := cfg.DefaultModel
//	port := cfg.Server.PreferredPort
package config
