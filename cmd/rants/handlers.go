package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"
	"github.com/spf13/cobra"

	"github.com/silverfisk/rants/internal/audit"
	"github.com/silverfisk/rants/internal/auth"
	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/config"
	"github.com/silverfisk/rants/internal/httpapi"
	"github.com/silverfisk/rants/internal/observability"
	"github.com/silverfisk/rants/internal/orchestrator"
	"github.com/silverfisk/rants/internal/ratelimit"
	"github.com/silverfisk/rants/internal/store"
	"github.com/silverfisk/rants/internal/tools"
)

// runServe loads configuration, wires every component, and serves the HTTP
// surface until a shutdown signal arrives. Grounded on the teacher's
// runServe/handlers_serve.go (debug log-level override, signal.NotifyContext
// shutdown, structured startup logging) and http_server.go's listen +
// goroutine Serve + graceful Shutdown pattern.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("starting rants gateway",
		"version", version, "commit", commit, "config", configPath, "model", cfg.RLM.RantsOne.Name)

	st, err := store.Open(cfg.Store.Path, slog.Default())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    cfg.Observability.Tracing.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       tracingEndpoint(cfg.Observability.Tracing),
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		EnableInsecure: cfg.Observability.Tracing.Insecure,
	})
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown error", "error", err)
		}
	}()
	st.Tracer = tracer

	retry := backend.RetryConfig{
		MaxRetries:     cfg.Resilience.MaxRetries,
		BackoffSeconds: cfg.Resilience.BackoffSeconds,
		RequestTimeout: time.Duration(cfg.Resilience.RequestTimeoutSeconds) * time.Second,
	}

	generatorBackend := backend.NewHTTPClient(cfg.Models.Generator.BaseURL, cfg.Models.Generator.APIKey, retry)
	generatorBackend.Role = "generator"
	generatorBackend.Tracer = tracer
	toolCompilerBackend := backend.NewHTTPClient(cfg.Models.ToolCompiler.BaseURL, cfg.Models.ToolCompiler.APIKey, retry)
	toolCompilerBackend.Role = "tool_compiler"
	toolCompilerBackend.Tracer = tracer

	backends := map[string]backend.Backend{
		"generator":     generatorBackend,
		"tool_compiler": toolCompilerBackend,
	}
	if cfg.Models.Vision.BaseURL != "" {
		visionBackend := backend.NewHTTPClient(cfg.Models.Vision.BaseURL, cfg.Models.Vision.APIKey, retry)
		visionBackend.Role = "vision"
		visionBackend.Tracer = tracer
		backends["vision"] = visionBackend
	}

	registry := tools.NewRegistry()
	registry.Register(&tools.ReadTool{MaxOutputBytes: 1 << 20})
	registry.Register(&tools.EditTool{MaxOutputBytes: 1 << 20})
	registry.Register(&tools.BashTool{MaxOutputBytes: 1 << 20, DefaultTimeout: 30 * time.Second})
	registry.Register(tools.BatchSchemaTool{})
	registry.Register(tools.TaskSchemaTool{})

	comp := compiler.New(toolCompilerBackend, cfg.Models.ToolCompiler.Model, registry)

	orcCfg := orchestrator.DefaultConfig()
	orcCfg.MaxToolIterations = cfg.Limits.MaxToolIterations
	if cfg.RLM.RantsOne.MaxIterations > 0 {
		orcCfg.MaxToolIterations = cfg.RLM.RantsOne.MaxIterations
	}
	if cfg.RLM.RantsOne.MaxDepth > 0 {
		orcCfg.MaxDepth = cfg.RLM.RantsOne.MaxDepth
	}
	orcCfg.WorkspaceRoot = cfg.Workspace.Root
	orcCfg.Model = cfg.RLM.RantsOne.Name

	orc := orchestrator.New(st, registry, generatorBackend, comp, orcCfg)
	orc.Audit = audit.New(st, slog.Default())
	orc.Tracer = tracer

	authResolver := auth.New(cfg.Auth)
	limiter := ratelimit.New(ratelimit.Config{
		Enabled:           cfg.RateLimits.Enabled,
		RequestsPerMinute: cfg.RateLimits.RequestsPerMinute,
		Burst:             cfg.RateLimits.Burst,
	})

	maxWallclock := time.Duration(cfg.Limits.MaxWallclockSeconds) * time.Second
	srv := httpapi.NewServer(st, orc, comp, registry, authResolver, limiter, cfg.RLM.RantsOne.Name, version, backends, slog.Default(), maxWallclock)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	shutdownCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go srv.StartHealthProbing(shutdownCtx)

	go func() {
		slog.Info("rants gateway listening", "addr", addr)
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutdown signal received, draining in-flight requests")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	slog.Info("rants gateway stopped")
	return nil
}

// tracingEndpoint returns cfg.Endpoint when tracing is enabled and an
// endpoint is configured, or "" otherwise — observability.NewTracer treats an
// empty endpoint as "tracing disabled" and falls back to a no-op tracer.
func tracingEndpoint(cfg config.TracingConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Endpoint
}

// runMigrateUp applies every pending migration against the store path
// named in configPath, without booting the rest of the gateway.
func runMigrateUp(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	migrator, err := store.NewMigrator(db)
	if err != nil {
		return err
	}
	applied, err := migrator.Up(cmd.Context())
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(applied) == 0 {
		fmt.Fprintln(out, "no pending migrations")
		return nil
	}
	for _, id := range applied {
		fmt.Fprintf(out, "applied %s\n", id)
	}
	return nil
}

// runMigrateStatus reports every known migration and whether it has run.
func runMigrateStatus(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	migrator, err := store.NewMigrator(db)
	if err != nil {
		return err
	}
	statuses, err := migrator.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("read migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, st := range statuses {
		state := "pending"
		if st.Applied {
			state = "applied"
		}
		fmt.Fprintf(out, "%-40s %s\n", st.ID, state)
	}
	return nil
}
