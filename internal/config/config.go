// Package config implements the Config Loader (spec §6, SPEC_FULL.md
// §4.9): YAML parsing of config.yaml plus RANTS_<SECTION>__<KEY> env
// overrides, grounded on the teacher's internal/config.Load
// (os.ExpandEnv + yaml.Unmarshal) generalized to a reflection-based
// override walker since the spec's env scheme isn't a fixed name list.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig binds the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LimitsConfig bounds the orchestrator's loop (spec §4.6, §5).
type LimitsConfig struct {
	MaxToolIterations  int `yaml:"max_tool_iterations"`
	MaxWallclockSeconds int `yaml:"max_wallclock_seconds"`
}

// RantsOneConfig names the single virtual model this gateway exposes
// (spec §6: rlm.rants_one.name) and its recursion caps.
type RantsOneConfig struct {
	Name        string `yaml:"name"`
	MaxIterations int  `yaml:"max_iterations"`
	MaxDepth    int    `yaml:"max_depth"`
}

// RLMConfig wraps the virtual model's identity and caps.
type RLMConfig struct {
	RantsOne RantsOneConfig `yaml:"rants_one"`
}

// ModelConfig configures routing to one upstream backend (spec §6:
// models.{generator,tool_compiler,vision}).
type ModelConfig struct {
	Provider     string            `yaml:"provider"`
	BaseURL      string            `yaml:"base_url"`
	Model        string            `yaml:"model"`
	APIKey       string            `yaml:"api_key"`
	Capabilities []string          `yaml:"capabilities"`
	Parameters   map[string]string `yaml:"parameters"`
}

// ModelsConfig names the three backend roles C3 may route to. Vision is
// carried for config-shape completeness (spec §1: "optional vision
// backend") even though no core component invokes it yet — see
// DESIGN.md.
type ModelsConfig struct {
	Generator    ModelConfig `yaml:"generator"`
	ToolCompiler ModelConfig `yaml:"tool_compiler"`
	Vision       ModelConfig `yaml:"vision"`
}

// APIKeyConfig maps one bearer token to a tenant.
type APIKeyConfig struct {
	Key      string `yaml:"key"`
	TenantID string `yaml:"tenant_id"`
}

// AuthConfig configures bearer-token tenant resolution (spec §6, §4.13).
type AuthConfig struct {
	Enabled bool           `yaml:"enabled"`
	APIKeys []APIKeyConfig `yaml:"api_keys"`
}

// RateLimitsConfig configures the per-tenant token bucket (spec §4.11).
type RateLimitsConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// ResilienceConfig configures the Model Backend Port's retry policy
// (spec §4.3).
type ResilienceConfig struct {
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	MaxRetries            int     `yaml:"max_retries"`
	BackoffSeconds        float64 `yaml:"backoff_seconds"`
}

// StoreConfig points at the embedded SQLite database file (spec §6:
// "Persisted state layout").
type StoreConfig struct {
	Path string `yaml:"path"`
}

// WorkspaceConfig fixes the sandbox root every tool executor is pinned to
// (spec §6).
type WorkspaceConfig struct {
	Root string `yaml:"root"`
}

// TracingConfig configures the OpenTelemetry exporter, grounded on the
// teacher's internal/config.TracingConfig. Carried as an ambient concern the
// same way metrics are (SPEC_FULL.md observability) — disabled by default,
// since most deployments of this gateway won't run a collector.
type TracingConfig struct {
	Enabled        bool              `yaml:"enabled"`
	Endpoint       string            `yaml:"endpoint"`
	ServiceName    string            `yaml:"service_name"`
	ServiceVersion string            `yaml:"service_version"`
	Environment    string            `yaml:"environment"`
	SamplingRate   float64           `yaml:"sampling_rate"`
	Insecure       bool              `yaml:"insecure"`
	Attributes     map[string]string `yaml:"attributes"`
}

// ObservabilityConfig groups the gateway's operational-visibility surfaces
// beyond the always-on /metrics endpoint (spec §6).
type ObservabilityConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// Config is the top-level shape of config.yaml (spec §6).
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Limits        LimitsConfig        `yaml:"limits"`
	RLM           RLMConfig           `yaml:"rlm"`
	Models        ModelsConfig        `yaml:"models"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimits    RateLimitsConfig    `yaml:"rate_limits"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Store         StoreConfig         `yaml:"store"`
	Workspace     WorkspaceConfig     `yaml:"workspace"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Default returns a Config populated with the spec's documented defaults,
// mirroring orchestrator.DefaultConfig / ratelimit.DefaultConfig.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Limits: LimitsConfig{MaxToolIterations: 10, MaxWallclockSeconds: 120},
		RLM: RLMConfig{RantsOne: RantsOneConfig{
			Name: "rants_one_name", MaxIterations: 10, MaxDepth: 3,
		}},
		RateLimits: RateLimitsConfig{Enabled: true, RequestsPerMinute: 600, Burst: 20},
		Resilience: ResilienceConfig{RequestTimeoutSeconds: 30, MaxRetries: 3, BackoffSeconds: 1},
		Store:      StoreConfig{Path: "rants.db"},
		Workspace:  WorkspaceConfig{Root: "./workspace"},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{Enabled: false, SamplingRate: 1.0, ServiceName: "rants"},
		},
	}
}

// Load reads path, expands ${VAR}-style environment references the way the
// teacher's internal/config.Load does (os.ExpandEnv over the raw bytes
// before unmarshal), parses it over Default(), then applies RANTS_*
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides walks cfg's yaml-tagged fields and applies any
// RANTS_<SECTION>__<KEY>[__INDEX__<SUBKEY>] environment variable found,
// generalized from the teacher's applyEnvOverrides (which hardcodes ~10
// named vars) because the spec's scheme must cover arbitrary nested keys,
// not a fixed list — see DESIGN.md.
func applyEnvOverrides(cfg *Config) {
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(name, "RANTS_") {
			continue
		}
		path := strings.Split(strings.TrimPrefix(name, "RANTS_"), "__")
		if len(path) == 0 {
			continue
		}
		setByPath(reflect.ValueOf(cfg).Elem(), path, value)
	}
}

// setByPath descends v (a struct, slice, or map reflect.Value) following
// path segments matched case-insensitively against yaml struct tags, and
// assigns value at the leaf. A numeric segment on a slice field is
// interpreted as an index. Unresolvable paths are silently ignored — an
// env var naming a key this Config doesn't have is a no-op, not a fatal
// error, matching the teacher's tolerant override style.
func setByPath(v reflect.Value, path []string, value string) {
	if len(path) == 0 || !v.IsValid() {
		return
	}
	segment := path[0]
	rest := path[1:]

	switch v.Kind() {
	case reflect.Struct:
		field := fieldByYAMLTag(v, segment)
		if !field.IsValid() {
			return
		}
		if len(rest) == 0 {
			setScalar(field, value)
			return
		}
		setByPath(field, rest, value)

	case reflect.Slice:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= v.Len() {
			return
		}
		elem := v.Index(idx)
		if len(rest) == 0 {
			setScalar(elem, value)
			return
		}
		setByPath(elem, rest, value)

	case reflect.Map:
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		if len(rest) != 0 {
			return
		}
		v.SetMapIndex(reflect.ValueOf(segment), reflect.ValueOf(value))
	}
}

func fieldByYAMLTag(v reflect.Value, name string) reflect.Value {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("yaml")
		tag, _, _ = strings.Cut(tag, ",")
		if strings.EqualFold(tag, name) {
			return v.Field(i)
		}
	}
	return reflect.Value{}
}

func setScalar(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(n)
		}
	case reflect.Float32, reflect.Float64:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			field.SetFloat(f)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			field.Set(reflect.ValueOf(strings.Split(value, ",")))
		}
	}
}
