package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/silverfisk/rants/internal/auth"
	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/orchestrator"
	"github.com/silverfisk/rants/internal/ratelimit"
	"github.com/silverfisk/rants/internal/store"
	"github.com/silverfisk/rants/internal/tools"
)

// healthProbeInterval is how often the background prober refreshes each
// backend's reachability.
const healthProbeInterval = 30 * time.Second

// Server bundles the components the HTTP Surface dispatches into: the
// Transcript Store, the orchestrator (the single virtual model, "rants
// one"), the shim-only compiler path, auth and rate-limit enforcement, and
// the set of named backends exposed for health probing. Grounded on the
// teacher's gateway struct that threads the same dependencies into
// startHTTPServer's handlers.
type Server struct {
	Store        store.Store
	Orchestrator *orchestrator.Orchestrator
	Compiler     *compiler.Compiler
	Registry     *tools.Registry
	Auth         *auth.Resolver
	RateLimit    *ratelimit.Limiter
	ModelName    string
	Logger       *slog.Logger
	// MaxWallclock is the wallclock budget given to every depth-0 session
	// opened by /v1/responses or /v1/chat/completions (spec §3:
	// deadline_at = created_at + max_wallclock_seconds, config key
	// limits.max_wallclock_seconds).
	MaxWallclock time.Duration

	startedAt time.Time
	version   string
	backends  map[string]backend.Backend
	prober    *healthProber
}

// defaultMaxWallclock is used when a caller constructs a Server without
// setting MaxWallclock (e.g. existing tests), matching
// config.Default's limits.max_wallclock_seconds default.
const defaultMaxWallclock = 120 * time.Second

// NewServer wires the Server. backends is the named set of upstream Model
// Backend Ports probed by GET /health (spec §6's "generator",
// "tool_compiler", and, when configured, "vision"). maxWallclock bounds
// every depth-0 session's deadline_at; a non-positive value falls back to
// defaultMaxWallclock.
func NewServer(
	st store.Store,
	orc *orchestrator.Orchestrator,
	comp *compiler.Compiler,
	reg *tools.Registry,
	authResolver *auth.Resolver,
	limiter *ratelimit.Limiter,
	modelName string,
	version string,
	backends map[string]backend.Backend,
	logger *slog.Logger,
	maxWallclock time.Duration,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWallclock <= 0 {
		maxWallclock = defaultMaxWallclock
	}
	return &Server{
		Store:        st,
		Orchestrator: orc,
		Compiler:     comp,
		Registry:     reg,
		Auth:         authResolver,
		RateLimit:    limiter,
		ModelName:    modelName,
		Logger:       logger,
		MaxWallclock: maxWallclock,
		startedAt:    time.Now(),
		version:      version,
		backends:     backends,
		prober:       newHealthProber(backends),
	}
}

// StartHealthProbing runs the background reachability prober until ctx is
// cancelled. Callers run this in its own goroutine alongside the HTTP
// server.
func (s *Server) StartHealthProbing(ctx context.Context) {
	s.prober.Run(ctx, healthProbeInterval)
}

// Mux builds the request router, wiring every endpoint through the
// auth -> rate-limit middleware chain except /health and /metrics, which
// are operator-facing and unauthenticated, mirroring the teacher's
// http_server.go registration of /healthz and /metrics outside
// web.AuthMiddleware.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()

	protected := func(h http.HandlerFunc) http.Handler {
		return withAuth(s.Auth, withRateLimit(s.RateLimit, h))
	}

	mux.Handle("/v1/responses", protected(s.handleResponses))
	mux.Handle("/v1/chat/completions", protected(s.handleChatCompletions))
	mux.Handle("/v1/models", protected(s.handleModels))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
