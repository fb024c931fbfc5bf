package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config structure
type Config struct {
	LLMProvider string `json:"llmProvider"` // Provider label, informational; all providers use the OpenAI-compatible API
	APIKey      string `json:"apiKey"`
	BaseURL     string `json:"baseUrl"` // Empty means the provider's default endpoint
	ModelName   string `json:"modelName"`
	MaxTokens   int    `json:"maxTokens"`

	DatabaseType string `json:"databaseType"` // mysql, postgres, sqlserver, sqlite, snowflake, ...
	DatabaseName string `json:"databaseName"`
	DSN          string `json:"dsn"` // Driver-specific connection string

	MaxRows     int  `json:"maxRows"`     // Row cap injected into unlimited queries
	MaxRetries  int  `json:"maxRetries"`  // SQL retry-and-repair attempts after the first failure
	SchemaTopK  int  `json:"schemaTopK"`  // Candidate tables retrieved per question
	DetailedLog bool `json:"detailedLog"` // Log full prompts and SQL payloads

	DataDir string `json:"dataDir"` // Storage dir for logs and exports; defaults to ~/DataChat
}

// StorageDir returns the configured data directory, falling back to
// ~/DataChat.
func (c *Config) StorageDir() (string, error) {
	if c.DataDir != "" {
		return c.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, "DataChat"), nil
}

// applyDefaults fills zero-valued tuning fields. Credentials are never
// defaulted.
func (c *Config) applyDefaults() {
	if c.LLMProvider == "" {
		c.LLMProvider = "OpenAI"
	}
	if c.ModelName == "" {
		c.ModelName = "gpt-4o"
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
	if c.MaxRows <= 0 {
		c.MaxRows = 1000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.SchemaTopK <= 0 {
		c.SchemaTopK = 5
	}
}

// Load reads the config file at path. A missing file yields the defaults
// rather than an error, so first runs work without setup.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.applyDefaults()
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config as indented JSON, creating the parent directory
// when needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultPath returns ~/DataChat/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, "DataChat", "config.json"), nil
}
