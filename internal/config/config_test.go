package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigLoad(t *testing.T) {
	// Test loading default configuration
	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	// Verify default values
	if cfg.Download.BatchSize != 10 {
		t.Errorf("Expected batch size 10, got %d", cfg.Download.BatchSize)
	}

	if cfg.Output.Mode != ModeFile {
		t.Errorf("Expected output mode %q, got %q", ModeFile, cfg.Output.Mode)
	}

	if cfg.HTTP.Origin != "https://www.ruv.is" {
		t.Errorf("Expected origin https://www.ruv.is, got %s", cfg.HTTP.Origin)
	}

	if len(cfg.Resolver.Templates) == 0 {
		t.Error("Expected default resolver templates")
	}

	if cfg.Download.SegmentRetries != 0 {
		t.Errorf("Expected fail-fast segment retries by default, got %d", cfg.Download.SegmentRetries)
	}
}

func TestConfigSaveLoad(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load("nonexistent.yaml")
	if err != nil {
		t.Fatalf("Failed to load default config: %v", err)
	}

	// Modify some values
	cfg.Output.Mode = ModeFolder
	cfg.Download.BatchSize = 4
	cfg.Resolver.Templates = []string{"https://cdn.example.com/{id}/master.m3u8"}

	if err := cfg.Save(tmpFile); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loadedCfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loadedCfg.Output.Mode != ModeFolder {
		t.Errorf("Expected mode to be preserved, got %s", loadedCfg.Output.Mode)
	}

	if loadedCfg.Download.BatchSize != 4 {
		t.Errorf("Expected batch size 4, got %d", loadedCfg.Download.BatchSize)
	}

	if len(loadedCfg.Resolver.Templates) != 1 {
		t.Errorf("Expected templates to be replaced, got %v", loadedCfg.Resolver.Templates)
	}
}

func TestConfigPartialOverlayKeepsDefaults(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "partial.yaml")
	if err := os.WriteFile(tmpFile, []byte("download:\n  batch_size: 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpFile)
	if err != nil {
		t.Fatalf("Failed to load partial config: %v", err)
	}

	if cfg.Download.BatchSize != 1 {
		t.Errorf("Expected batch size 1, got %d", cfg.Download.BatchSize)
	}
	if cfg.HTTP.Timeout != 30 {
		t.Errorf("Expected default timeout to survive overlay, got %d", cfg.HTTP.Timeout)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero batch", func(c *Config) { c.Download.BatchSize = 0 }, "batch_size"},
		{"bad mode", func(c *Config) { c.Output.Mode = "zip" }, "output.mode"},
		{"redis without addr", func(c *Config) { c.Resolver.Cache.Backend = "redis" }, "redis.addr"},
		{"unknown cache", func(c *Config) { c.Resolver.Cache.Backend = "disk" }, "cache.backend"},
		{"metadata without field", func(c *Config) { c.Resolver.MetadataAPI.URLTemplate = "https://api/{id}" }, "manifest_field"},
		{"negative retries", func(c *Config) { c.Download.SegmentRetries = -1 }, "segment_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestHeadersAndDurations(t *testing.T) {
	cfg := Default()

	headers := cfg.HTTP.Headers()
	for _, key := range []string{"Origin", "Referer", "User-Agent"} {
		if headers[key] == "" {
			t.Errorf("Expected header %s to be set", key)
		}
	}
	if _, ok := headers["Cookie"]; ok {
		t.Error("Cookie header must never be configured")
	}

	if cfg.HTTP.RequestTimeout() != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.HTTP.RequestTimeout())
	}
	if cfg.Resolver.Cache.CacheTTL() != 6*time.Hour {
		t.Errorf("Expected 6h cache ttl, got %v", cfg.Resolver.Cache.CacheTTL())
	}
}
