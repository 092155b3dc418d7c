// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

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
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

registry:
  url: "https://registry.example/dni"
  token: "abcd1234efgh5678"
  timeout: "10s"

webauthn:
  rp_display_name: "test gateway"
  base_url: "https://verify.example"
  ceremony_timeout: "45s"
  session_ttl: "15m"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("unexpected http_addr: %s", cfg.Server.HTTPAddr)
	}
	if cfg.Registry.Timeout != 10*time.Second {
		t.Errorf("unexpected registry timeout: %v", cfg.Registry.Timeout)
	}
	if cfg.WebAuthn.CeremonyTimeout != 45*time.Second {
		t.Errorf("unexpected ceremony timeout: %v", cfg.WebAuthn.CeremonyTimeout)
	}
	if cfg.WebAuthn.SessionTTL != 15*time.Minute {
		t.Errorf("unexpected session ttl: %v", cfg.WebAuthn.SessionTTL)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging format: %s", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
registry:
  url: "https://registry.example/dni"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Registry.Timeout != DefaultRegistryTimeout {
		t.Errorf("expected default registry timeout, got %v", cfg.Registry.Timeout)
	}
	if cfg.WebAuthn.CeremonyTimeout != DefaultCeremonyTimeout {
		t.Errorf("expected default ceremony timeout, got %v", cfg.WebAuthn.CeremonyTimeout)
	}
	if cfg.WebAuthn.SessionTTL != DefaultSessionTTL {
		t.Errorf("expected default session ttl, got %v", cfg.WebAuthn.SessionTTL)
	}
	if cfg.WebAuthn.RPDisplayName != "dni-gateway" {
		t.Errorf("expected default rp display name, got %q", cfg.WebAuthn.RPDisplayName)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_REGISTRY_TOKEN", "secret-from-env")

	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
registry:
  url: "https://registry.example/dni"
  token: "${TEST_REGISTRY_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Registry.Token != "secret-from-env" {
		t.Errorf("env expansion failed, got %q", cfg.Registry.Token)
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
registry:
  url: "https://registry.example/dni"
`,
			wantErr: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: ":8080"
registry:
  url: "https://registry.example/dni"
`,
			wantErr: "database.path",
		},
		{
			name: "missing registry url",
			content: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`,
			wantErr: "registry.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
registry:
  url: "https://registry.example/dni"
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
