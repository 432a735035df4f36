package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig_Success(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
  host: "0.0.0.0"

auth:
  token: "secret"

repo:
  path: "/srv/site"
  command_timeout: 30s

policy:
  allowed_prefixes: ["docs/", "site/**/*.md"]
  max_patch_bytes: 1000

store:
  driver: sqlite
  path: "/var/lib/patchgate/proposals.db"

log:
  level: "debug"
  format: "json"
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host '0.0.0.0', got '%s'", cfg.Server.Host)
	}
	if cfg.Repo.Path != "/srv/site" {
		t.Errorf("Expected repo path, got '%s'", cfg.Repo.Path)
	}
	if cfg.Repo.CommandTimeout != 30*time.Second {
		t.Errorf("Expected command timeout 30s, got %v", cfg.Repo.CommandTimeout)
	}
	if len(cfg.Policy.AllowedPrefixes) != 2 || cfg.Policy.AllowedPrefixes[1] != "site/**/*.md" {
		t.Errorf("Unexpected allowed prefixes: %v", cfg.Policy.AllowedPrefixes)
	}
	if cfg.Policy.MaxPatchBytes != 1000 {
		t.Errorf("Expected max patch bytes 1000, got %d", cfg.Policy.MaxPatchBytes)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Expected sqlite driver, got '%s'", cfg.Store.Driver)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Expected json log format, got '%s'", cfg.Log.Format)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host 127.0.0.1, got '%s'", cfg.Server.Host)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port %d, got %d", DefaultPort, cfg.Server.Port)
	}
	if strings.Join(cfg.Policy.AllowedPrefixes, ",") != "frontend/,README.md,.gitignore" {
		t.Errorf("Unexpected default allow-list: %v", cfg.Policy.AllowedPrefixes)
	}
	if cfg.Store.Path != DefaultStorePath {
		t.Errorf("Expected default store path, got '%s'", cfg.Store.Path)
	}
	if cfg.Policy.MaxPatchBytes != DefaultMaxPatchBytes {
		t.Errorf("Expected default max patch bytes, got %d", cfg.Policy.MaxPatchBytes)
	}
	if cfg.Retention.Schedule != "@hourly" {
		t.Errorf("Expected @hourly retention schedule, got '%s'", cfg.Retention.Schedule)
	}
	if *cfg.Retention.MaxCount != DefaultRetentionMax {
		t.Errorf("Expected retention max count %d, got %d", DefaultRetentionMax, *cfg.Retention.MaxCount)
	}
	if cfg.Addr() != "127.0.0.1:18888" {
		t.Errorf("Unexpected addr: %s", cfg.Addr())
	}
}

func TestLoadConfig_MissingFileIsOptional(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != DefaultPort {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadConfig_WithEnvVars(t *testing.T) {
	t.Setenv("ADMIN_PORT", "9999")
	t.Setenv("ADMIN_TOKEN", "env-token")
	t.Setenv("REPO_PATH", "/env/repo")
	t.Setenv("ALLOWED_PREFIXES", "a/, b.txt ,,")
	t.Setenv("PROPOSALS_PATH", "/env/proposals.json")
	t.Setenv("MAX_PATCH_BYTES", "42")

	configPath := writeConfig(t, `
server:
  port: 8080
auth:
  token: "file-token"
policy:
  allowed_prefixes: ["docs/"]
`)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// 環境変数が優先される
	if cfg.Server.Port != 9999 {
		t.Errorf("Expected port from env 9999, got %d", cfg.Server.Port)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("Expected token from env, got '%s'", cfg.Auth.Token)
	}
	if cfg.Repo.Path != "/env/repo" {
		t.Errorf("Expected repo path from env, got '%s'", cfg.Repo.Path)
	}
	if strings.Join(cfg.Policy.AllowedPrefixes, ",") != "a/,b.txt" {
		t.Errorf("Expected trimmed allow-list from env, got %v", cfg.Policy.AllowedPrefixes)
	}
	if cfg.Store.Path != "/env/proposals.json" {
		t.Errorf("Expected store path from env, got '%s'", cfg.Store.Path)
	}
	if cfg.Policy.MaxPatchBytes != 42 {
		t.Errorf("Expected max patch bytes 42, got %d", cfg.Policy.MaxPatchBytes)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [unclosed")

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Auth.Token = "" }, "auth token is required"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"negative max patch", func(c *Config) { c.Policy.MaxPatchBytes = -1 }, "invalid max_patch_bytes"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "redis" }, "unknown store driver"},
		{"bad schedule", func(c *Config) { c.Retention.Schedule = "every tuesday" }, "invalid retention schedule"},
		{"openai without base url", func(c *Config) { c.Author.Provider = "openai" }, "base_url is required"},
		{"anthropic without key", func(c *Config) { c.Author.Provider = "anthropic" }, "api_key is required"},
		{"unknown author", func(c *Config) { c.Author.Provider = "ollama" }, "unknown author provider"},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }, "invalid rate_limit.rps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Auth: AuthConfig{Token: "secret"}}
			cfg.setDefaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
