// Package ratelimit implements the per-tenant rate limiter (spec §4.8,
// §6): a token bucket keyed by tenant id, refilled at requests_per_minute
// and capped at burst. Grounded directly on the teacher's
// internal/ratelimit.Bucket/Limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures the token bucket applied to every tenant.
type Config struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfig mirrors the spec's documented defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, RequestsPerMinute: 600, Burst: 20}
}

// bucket is a single tenant's token bucket.
type bucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

func newBucket(cfg Config) *bucket {
	refillPerSecond := cfg.RequestsPerMinute / 60
	if refillPerSecond <= 0 {
		refillPerSecond = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(refillPerSecond * 2)
	}
	return &bucket{
		tokens:     float64(burst),
		maxTokens:  float64(burst),
		refillRate: refillPerSecond,
		lastRefill: time.Now(),
	}
}

func (b *bucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

func (b *bucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (b *bucket) waitTime() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	if b.tokens >= 1 {
		return 0
	}
	needed := 1 - b.tokens
	return time.Duration(needed / b.refillRate * float64(time.Second))
}

// Limiter enforces Config's token bucket independently per tenant.
type Limiter struct {
	buckets sync.Map // tenant id -> *bucket
	config  Config
}

// New returns a Limiter bound to cfg.
func New(cfg Config) *Limiter {
	return &Limiter{config: cfg}
}

func (l *Limiter) getBucket(tenantID string) *bucket {
	if b, ok := l.buckets.Load(tenantID); ok {
		return b.(*bucket)
	}
	b, _ := l.buckets.LoadOrStore(tenantID, newBucket(l.config))
	return b.(*bucket)
}

// Allow reports whether tenantID may make one more request right now,
// consuming a token if so. Always true when rate limiting is disabled.
func (l *Limiter) Allow(tenantID string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(tenantID).allow()
}

// RetryAfter reports how long tenantID should wait before its next request
// would be allowed, used to populate the Retry-After header on a 429.
func (l *Limiter) RetryAfter(tenantID string) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	return l.getBucket(tenantID).waitTime()
}
