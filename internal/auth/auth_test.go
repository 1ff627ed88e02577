package auth

import (
	"testing"

	"github.com/silverfisk/rants/internal/config"
)

func TestResolveDisabledAlwaysAnonymous(t *testing.T) {
	r := New(config.AuthConfig{Enabled: false})
	tenant, ok := r.Resolve("")
	if !ok || tenant != AnonymousTenant {
		t.Fatalf("expected anonymous tenant when disabled, got %q ok=%v", tenant, ok)
	}
	tenant, ok = r.Resolve("Bearer anything")
	if !ok || tenant != AnonymousTenant {
		t.Fatalf("expected anonymous tenant ignoring header when disabled, got %q ok=%v", tenant, ok)
	}
}

func TestResolveEnabledValidKey(t *testing.T) {
	r := New(config.AuthConfig{Enabled: true, APIKeys: []config.APIKeyConfig{
		{Key: "sk-acme", TenantID: "acme"},
	}})
	tenant, ok := r.Resolve("Bearer sk-acme")
	if !ok || tenant != "acme" {
		t.Fatalf("expected tenant acme, got %q ok=%v", tenant, ok)
	}
}

func TestResolveEnabledCaseInsensitiveScheme(t *testing.T) {
	r := New(config.AuthConfig{Enabled: true, APIKeys: []config.APIKeyConfig{
		{Key: "sk-acme", TenantID: "acme"},
	}})
	if tenant, ok := r.Resolve("BEARER sk-acme"); !ok || tenant != "acme" {
		t.Fatalf("expected case-insensitive bearer scheme match, got %q ok=%v", tenant, ok)
	}
}

func TestResolveEnabledUnknownKey(t *testing.T) {
	r := New(config.AuthConfig{Enabled: true, APIKeys: []config.APIKeyConfig{
		{Key: "sk-acme", TenantID: "acme"},
	}})
	if _, ok := r.Resolve("Bearer nope"); ok {
		t.Fatal("expected unknown key to fail resolution")
	}
}

func TestResolveEnabledMissingHeader(t *testing.T) {
	r := New(config.AuthConfig{Enabled: true, APIKeys: []config.APIKeyConfig{
		{Key: "sk-acme", TenantID: "acme"},
	}})
	if _, ok := r.Resolve(""); ok {
		t.Fatal("expected missing header to fail resolution when auth is enabled")
	}
}
