package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLMProvider != "OpenAI" || cfg.ModelName != "gpt-4o" {
		t.Errorf("defaults = %q %q", cfg.LLMProvider, cfg.ModelName)
	}
	if cfg.MaxRows != 1000 || cfg.MaxRetries != 2 || cfg.SchemaTopK != 5 {
		t.Errorf("tuning defaults = %d %d %d", cfg.MaxRows, cfg.MaxRetries, cfg.SchemaTopK)
	}
	if cfg.APIKey != "" {
		t.Error("credentials must never be defaulted")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	in := Config{
		LLMProvider:  "OpenAI",
		APIKey:       "sk-test",
		ModelName:    "gpt-4o-mini",
		DatabaseType: "mysql",
		DatabaseName: "sales",
		DSN:          "user:pass@tcp(localhost:3306)/sales",
		MaxRows:      200,
	}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.APIKey != in.APIKey || out.DSN != in.DSN || out.MaxRows != 200 {
		t.Errorf("round trip mismatch: %+v", out)
	}
	// Unset tuning fields still pick up defaults on load.
	if out.MaxRetries != 2 {
		t.Errorf("maxRetries = %d", out.MaxRetries)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config must fail to load")
	}
}
