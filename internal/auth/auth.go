// Package auth implements bearer-token tenant resolution (spec §6, §8;
// SPEC_FULL.md §4.13), grounded structurally on the teacher's
// internal/web.AuthMiddleware bearer-token lookup, generalized to the
// spec's static auth.api_keys[].{key,tenant_id} config shape instead of
// JWT/session validation.
package auth

import (
	"strings"

	"github.com/silverfisk/rants/internal/config"
)

// AnonymousTenant is used for every request when auth is disabled.
const AnonymousTenant = "anonymous"

// Resolver maps a bearer token to a tenant id.
type Resolver struct {
	enabled bool
	keys    map[string]string // key -> tenant_id
}

// New builds a Resolver from the configured API keys. When cfg.Enabled is
// false, every token (including none) resolves to AnonymousTenant.
func New(cfg config.AuthConfig) *Resolver {
	keys := make(map[string]string, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k.Key == "" {
			continue
		}
		keys[k.Key] = k.TenantID
	}
	return &Resolver{enabled: cfg.Enabled, keys: keys}
}

// Resolve extracts the bearer token from an Authorization header value and
// returns its tenant id, or ("", false) if auth is enabled and the token is
// missing or unknown.
func (r *Resolver) Resolve(authorizationHeader string) (tenantID string, ok bool) {
	if r == nil || !r.enabled {
		return AnonymousTenant, true
	}

	token := strings.TrimSpace(authorizationHeader)
	const prefix = "bearer "
	if len(token) >= len(prefix) && strings.EqualFold(token[:len(prefix)], prefix) {
		token = strings.TrimSpace(token[len(prefix):])
	}
	if token == "" {
		return "", false
	}
	tenantID, found := r.keys[token]
	if !found {
		return "", false
	}
	if tenantID == "" {
		tenantID = AnonymousTenant
	}
	return tenantID, true
}
