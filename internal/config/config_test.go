package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scope.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  path: /tmp/test.db\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Listen.Port != 8490 {
		t.Errorf("default port = %d, want 8490", cfg.Listen.Port)
	}
	if cfg.Model.Provider != "ollama" {
		t.Errorf("default provider = %q, want ollama", cfg.Model.Provider)
	}
	if cfg.Model.MaxIterations != 8 {
		t.Errorf("default max_iterations = %d, want 8", cfg.Model.MaxIterations)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
listen:
  address: 0.0.0.0
  port: 9000
model:
  provider: anthropic
  name: claude-sonnet-4-20250514
sessions:
  ttl: 30m
log_level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Listen.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Listen.Port)
	}
	if cfg.Model.Provider != "anthropic" {
		t.Errorf("provider = %q, want anthropic", cfg.Model.Provider)
	}
	if cfg.Sessions.TTL != 30*time.Minute {
		t.Errorf("sessions.ttl = %v, want 30m", cfg.Sessions.TTL)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Listen.Port = -1 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"unknown provider", func(c *Config) { c.Model.Provider = "gemini" }},
		{"negative iterations", func(c *Config) { c.Model.MaxIterations = -2 }},
		{"negative ttl", func(c *Config) { c.Sessions.TTL = -time.Minute }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/scope.yaml"); err == nil {
		t.Error("FindConfig() should fail for missing explicit path")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"Debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
