// Copyright (c) 2025 Pranai Giri
// SPDX-License-Identifier: MIT

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete application configuration.
type Config struct {
	// DefaultModel is the model selected when no prior choice is persisted.
	DefaultModel string `toml:"default_model" json:"default_model"`

	// Models is the static list of selectable models. Loaded once at
	// startup, never hot-reloaded.
	Models []ModelDescriptor `toml:"models" json:"models"`

	Server  ServerConfig  `toml:"server" json:"server"`
	Ollama  OllamaConfig  `toml:"ollama" json:"ollama"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
}

// ModelDescriptor is one selectable model: the runtime identifier plus a
// human-readable label for display.
type ModelDescriptor struct {
	Value string `toml:"value" json:"value"`
	Label string `toml:"label" json:"label"`
}

// ServerConfig contains local API server configuration.
type ServerConfig struct {
	// Host is the bind address. Loopback only; the server is a local
	// companion process, never an exposed service.
	Host string `toml:"host" json:"host"`
	// PreferredPort is tried first; if it is already bound the server
	// falls back to an ephemeral port.
	PreferredPort int `toml:"preferred_port" json:"preferred_port"`
}

// OllamaConfig contains the connection settings for the local Ollama runtime.
type OllamaConfig struct {
	// URL is the base URL of the Ollama server.
	URL string `toml:"url" json:"url"`
	// TimeoutSecs applies to non-streaming requests. Streaming chat and
	// model pulls run without a client timeout.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig contains local persistence settings.
type StorageConfig struct {
	// DataDir holds the session document and the runtime port file.
	// A leading "~" expands to the user home directory.
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// LoggingConfig contains server log rotation settings.
type LoggingConfig struct {
	// File is the rotating log file path. Empty disables file logging
	// (stderr only). A leading "~" expands to the user home directory.
	File string `toml:"file" json:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups"`
	// MaxAgeDays is the maximum age of a rotated file before deletion.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DefaultModel: "gemma3:1b",

		Models: []ModelDescriptor{
			{Value: "gemma3:1b", Label: "Gemma 3 1B"},
			{Value: "llama3.2:1b", Label: "Llama 3.2 1B"},
			{Value: "qwen2.5:1.5b", Label: "Qwen 2.5 1.5B"},
			{Value: "deepseek-r1:1.5b", Label: "DeepSeek R1 1.5B"},
		},

		Server: ServerConfig{
			Host:          "127.0.0.1",
			PreferredPort: 3000,
		},

		Ollama: OllamaConfig{
			URL:         "http://localhost:11434",
			TimeoutSecs: 30,
		},

		Storage: StorageConfig{
			DataDir: "~/.offlineai",
		},

		Logging: LoggingConfig{
			File:       "~/.offlineai/offlineai.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the application configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".offlineai"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// ExpandHome expands a leading "~" in path to the user home directory.
// Returns the path unchanged when it does not start with "~" or the home
// directory cannot be determined.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last, then validation.
func Load() (*Config, error) {
	cfg := Default()

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. JSON is used for paths ending in .json, TOML otherwise.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := loadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := loadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	cfg.ApplyEnvOverrides()
	fillDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

func loadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}
	if len(cfg.Models) == 0 {
		cfg.Models = defaults.Models
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = defaults.Server.Host
	}
	if cfg.Server.PreferredPort == 0 {
		cfg.Server.PreferredPort = defaults.Server.PreferredPort
	}

	if cfg.Ollama.URL == "" {
		cfg.Ollama.URL = defaults.Ollama.URL
	}
	if cfg.Ollama.TimeoutSecs == 0 {
		cfg.Ollama.TimeoutSecs = defaults.Ollama.TimeoutSecs
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = defaults.Storage.DataDir
	}

	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = defaults.Logging.MaxAgeDays
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# OfflineAI configuration file")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.DefaultModel == "" {
		errs = append(errs, ValidationError{
			Field:   "default_model",
			Message: "must not be empty",
		})
	}

	for i, m := range c.Models {
		if m.Value == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("models[%d].value", i),
				Message: "must not be empty",
			})
		}
	}

	// The default model must be one of the listed models, otherwise the
	// selector and the server disagree about what is selectable.
	if c.DefaultModel != "" && len(c.Models) > 0 && !c.HasModel(c.DefaultModel) {
		errs = append(errs, ValidationError{
			Field:   "default_model",
			Message: fmt.Sprintf("'%s' is not in the models list", c.DefaultModel),
		})
	}

	if c.Server.PreferredPort < 0 || c.Server.PreferredPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.preferred_port",
			Message: fmt.Sprintf("must be 0-65535, got %d", c.Server.PreferredPort),
		})
	}

	if c.Ollama.URL != "" {
		if u, err := url.Parse(c.Ollama.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "ollama.url",
				Message: fmt.Sprintf("invalid URL '%s'", c.Ollama.URL),
			})
		}
	}

	if c.Ollama.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "ollama.timeout_secs",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - OFFLINEAI_DEFAULT_MODEL: overrides default_model
//   - OFFLINEAI_PORT: overrides server.preferred_port
//   - OFFLINEAI_OLLAMA_URL: overrides ollama.url
//   - OFFLINEAI_DATA_DIR: overrides storage.data_dir
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("OFFLINEAI_DEFAULT_MODEL"); model != "" {
		c.DefaultModel = model
	}

	if port := os.Getenv("OFFLINEAI_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.PreferredPort = p
		}
	}

	if u := os.Getenv("OFFLINEAI_OLLAMA_URL"); u != "" {
		c.Ollama.URL = u
	}

	if dir := os.Getenv("OFFLINEAI_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// HasModel reports whether value is one of the configured models.
func (c *Config) HasModel(value string) bool {
	for _, m := range c.Models {
		if m.Value == value {
			return true
		}
	}
	return false
}

// DataDir returns the storage directory with "~" expanded.
func (c *Config) DataDir() string {
	return ExpandHome(c.Storage.DataDir)
}

// LogFile returns the log file path with "~" expanded, or "" when file
// logging is disabled.
func (c *Config) LogFile() string {
	if c.Logging.File == "" {
		return ""
	}
	return ExpandHome(c.Logging.File)
}

// SessionsPath returns the path of the session store document.
func (c *Config) SessionsPath() string {
	return filepath.Join(c.DataDir(), "sessions.json")
}

// PortFilePath returns the path of the runtime port file the server writes
// after binding and the supervisor reads to discover the chosen port.
func (c *Config) PortFilePath() string {
	return filepath.Join(c.DataDir(), "server.port")
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access; an earlier SetGlobal wins over the
// lazy load. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		globalConfigMu.Lock()
		defer globalConfigMu.Unlock()
		if globalConfig != nil {
			return
		}
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
