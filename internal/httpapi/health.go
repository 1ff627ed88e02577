package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/silverfisk/rants/internal/backend"
)

// probeTimeout bounds how long a single backend health probe may block.
const probeTimeout = 3 * time.Second

// healthProber periodically probes every configured Model Backend Port
// with a minimal completion request and caches the last-known result, so
// GET /health never blocks on a slow or dead upstream (SPEC_FULL.md §6's
// "lightweight background prober" expansion; the teacher's handleHealthz
// instead reports integration activity stats, which has no RANTS
// equivalent).
type healthProber struct {
	backends map[string]backend.Backend

	mu     sync.RWMutex
	status map[string]string
}

func newHealthProber(backends map[string]backend.Backend) *healthProber {
	status := make(map[string]string, len(backends))
	for name := range backends {
		status[name] = "unknown"
	}
	return &healthProber{backends: backends, status: status}
}

// Run probes every backend on a fixed interval until ctx is cancelled.
func (p *healthProber) Run(ctx context.Context, interval time.Duration) {
	p.probeAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *healthProber) probeAll(ctx context.Context) {
	for name, be := range p.backends {
		result := probeBackend(ctx, be)
		p.mu.Lock()
		p.status[name] = result
		p.mu.Unlock()
	}
}

func (p *healthProber) snapshot() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.status))
	for k, v := range p.status {
		out[k] = v
	}
	return out
}

func probeBackend(ctx context.Context, be backend.Backend) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	_, err := be.Complete(ctx, backend.Request{
		Messages:  []backend.Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return "unreachable"
	}
	return "ok"
}

// handleHealth serves GET /health, reporting the prober's last-known
// per-backend reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backends := s.prober.snapshot()
	status := "ok"
	for _, v := range backends {
		if v != "ok" {
			status = "degraded"
			break
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:   status,
		Version:  s.version,
		Backends: backends,
	})
}
