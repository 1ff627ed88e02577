package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: 127.0.0.1
  port: 9090
rlm:
  rants_one:
    name: rants_one_name
    max_iterations: 5
    max_depth: 2
auth:
  enabled: true
  api_keys:
    - key: sk-test
      tenant_id: acme
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9090 {
		t.Fatalf("server section not parsed: %+v", cfg.Server)
	}
	if cfg.RLM.RantsOne.Name != "rants_one_name" || cfg.RLM.RantsOne.MaxDepth != 2 {
		t.Fatalf("rlm section not parsed: %+v", cfg.RLM)
	}
	if !cfg.Auth.Enabled || len(cfg.Auth.APIKeys) != 1 || cfg.Auth.APIKeys[0].TenantID != "acme" {
		t.Fatalf("auth section not parsed: %+v", cfg.Auth)
	}
	// Fields absent from the file keep Default()'s values.
	if cfg.RateLimits.Burst != 20 {
		t.Fatalf("expected default burst to survive partial yaml, got %d", cfg.RateLimits.Burst)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("RANTS_TEST_BASE_URL", "https://upstream.example/v1")
	path := writeTempConfig(t, `
models:
  generator:
    base_url: ${RANTS_TEST_BASE_URL}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Models.Generator.BaseURL != "https://upstream.example/v1" {
		t.Fatalf("expected expanded base_url, got %q", cfg.Models.Generator.BaseURL)
	}
}

func TestApplyEnvOverridesNestedKey(t *testing.T) {
	path := writeTempConfig(t, `
server:
  host: 0.0.0.0
  port: 8080
`)
	t.Setenv("RANTS_SERVER__PORT", "9999")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected env override to win, got %d", cfg.Server.Port)
	}
}

func TestApplyEnvOverridesIndexedSlice(t *testing.T) {
	path := writeTempConfig(t, `
auth:
  enabled: true
  api_keys:
    - key: sk-one
      tenant_id: tenant-a
`)
	t.Setenv("RANTS_AUTH__API_KEYS__0__TENANT_ID", "tenant-b")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Auth.APIKeys[0].TenantID != "tenant-b" {
		t.Fatalf("expected indexed override to apply, got %q", cfg.Auth.APIKeys[0].TenantID)
	}
}

func TestApplyEnvOverridesUnknownKeyIsNoop(t *testing.T) {
	path := writeTempConfig(t, `server: {host: h, port: 1}`)
	t.Setenv("RANTS_NOSUCH__THING", "value")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
