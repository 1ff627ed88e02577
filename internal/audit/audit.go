// Package audit implements the Audit Logger (SPEC_FULL.md §4.10): a
// structured slog-backed wrapper around the Transcript Store's
// RecordAudit, grounded directly on the teacher's internal/audit.Logger
// (buffered async writer over structured Event types), repurposed here to
// emit the spec's AuditEvent schema instead of the teacher's general
// action-audit schema.
package audit

import (
	"context"
	"log/slog"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/store"
)

// Logger persists AuditEvents through the Transcript Store and mirrors
// each one to structured logs, satisfying the spec §8 invariant "audit
// events emitted ≡ tool executions performed" by never dropping a Record
// call even if the store write fails (the failure itself is logged).
type Logger struct {
	store  store.Store
	slog   *slog.Logger
}

// New returns a Logger that writes through st and logs via l. A nil l
// falls back to slog.Default().
func New(st store.Store, l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{store: st, slog: l}
}

// Record persists event and emits a matching structured log line. Intended
// to be called from the same place the orchestrator already calls
// Store.RecordAudit, so every tool execution produces exactly one event.
func (l *Logger) Record(ctx context.Context, event *models.AuditEvent) {
	if l == nil || event == nil {
		return
	}

	attrs := []any{
		"tenant_id", event.TenantID,
		"session_id", event.SessionID,
		"step_index", event.StepIndex,
		"call_id", event.CallID,
		"tool", event.Tool,
		"ok", event.OK,
	}
	if event.ErrorKind != "" {
		attrs = append(attrs, "error_kind", string(event.ErrorKind))
	}

	if event.OK {
		l.slog.Info("tool execution audited", attrs...)
	} else {
		l.slog.Warn("tool execution audited", attrs...)
	}

	if l.store == nil {
		return
	}
	if err := l.store.RecordAudit(ctx, event); err != nil {
		l.slog.Error("failed to persist audit event",
			"session_id", event.SessionID, "call_id", event.CallID, "error", err)
	}
}
