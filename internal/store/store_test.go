package store

import (
	"context"
	"testing"
	"time"

	"github.com/silverfisk/rants/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	st, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestSession(id, tenantID string) (*models.RecursiveSession, *models.CanonicalTranscript) {
	now := time.Now()
	sess := &models.RecursiveSession{
		ID:         id,
		TenantID:   tenantID,
		Depth:      0,
		CreatedAt:  now,
		DeadlineAt: now.Add(time.Minute),
		Status:     models.SessionRunning,
	}
	transcript := &models.CanonicalTranscript{
		SessionID:        id,
		Input:            []models.InputPart{{Role: "user", Content: "hi"}},
		ToolSchemaDigest: "digest",
	}
	return sess, transcript
}

// TestAppendStepMonotonicityViolation covers the single-writer invariant
// (spec §4.1): a step_index gap or duplicate is rejected with
// ErrorConcurrentModify rather than silently accepted.
func TestAppendStepMonotonicityViolation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, transcript := newTestSession("sess-1", "acme")
	if err := st.CreateSession(ctx, sess, transcript); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// Index 1 is not the expected next index (0) for a session with no
	// steps yet — a gap.
	gapStep := &models.Step{Index: 1, StartedAt: time.Now()}
	err := st.AppendStep(ctx, sess.ID, gapStep)
	if err == nil {
		t.Fatal("expected error for non-contiguous step index, got nil")
	}
	gerr, ok := models.AsGatewayError(err)
	if !ok || gerr.Kind != models.ErrorConcurrentModify {
		t.Fatalf("expected ErrorConcurrentModify, got %v", err)
	}

	// Appending the correct next step (0) succeeds.
	firstStep := &models.Step{Index: 0, StartedAt: time.Now()}
	if err := st.AppendStep(ctx, sess.ID, firstStep); err != nil {
		t.Fatalf("append first step: %v", err)
	}

	// Appending index 0 again (a duplicate) is also rejected.
	dupStep := &models.Step{Index: 0, StartedAt: time.Now()}
	err = st.AppendStep(ctx, sess.ID, dupStep)
	if err == nil {
		t.Fatal("expected error for duplicate step index, got nil")
	}
	gerr, ok = models.AsGatewayError(err)
	if !ok || gerr.Kind != models.ErrorConcurrentModify {
		t.Fatalf("expected ErrorConcurrentModify for duplicate, got %v", err)
	}
}

// TestLoadSessionCrossTenantNotFound covers tenant-scoped isolation (spec
// §3 "Ownership", §4.1 "tenant-scoped persistence"): a session loaded with
// the wrong tenant id must behave exactly like a missing session.
func TestLoadSessionCrossTenantNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, transcript := newTestSession("sess-2", "acme")
	if err := st.CreateSession(ctx, sess, transcript); err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, _, err := st.LoadSession(ctx, sess.ID, "other-tenant"); err != models.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound for cross-tenant load, got %v", err)
	}

	// The owning tenant can still load it.
	loaded, _, err := st.LoadSession(ctx, sess.ID, "acme")
	if err != nil {
		t.Fatalf("expected same-tenant load to succeed, got %v", err)
	}
	if loaded.ID != sess.ID {
		t.Fatalf("expected loaded session id %q, got %q", sess.ID, loaded.ID)
	}

	if _, _, err := st.LoadSession(ctx, "no-such-session", "acme"); err != models.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound for unknown id, got %v", err)
	}
}

// TestAppendStepAtomicity covers spec §4.1's "a step is either fully
// visible or absent": a failure partway through the transaction (here, a
// duplicate tool_call id colliding on its primary key) must roll back the
// step insert too, not just the calls that follow it.
func TestAppendStepAtomicity(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	sess, transcript := newTestSession("sess-3", "acme")
	if err := st.CreateSession(ctx, sess, transcript); err != nil {
		t.Fatalf("create session: %v", err)
	}

	step := &models.Step{
		Index:     0,
		StartedAt: time.Now(),
		ToolCalls: []models.ToolCall{
			{ID: "dup-call", Tool: "read", Parameters: []byte(`{}`)},
			{ID: "dup-call", Tool: "read", Parameters: []byte(`{}`)},
		},
	}

	if err := st.AppendStep(ctx, sess.ID, step); err == nil {
		t.Fatal("expected append_step to fail on duplicate tool_call id, got nil")
	}

	// The whole transaction — including the step row itself — must have
	// rolled back, so the session still has zero steps.
	_, reloaded, err := st.LoadSession(ctx, sess.ID, "acme")
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if len(reloaded.Steps) != 0 {
		t.Fatalf("expected no steps after rolled-back append, got %d", len(reloaded.Steps))
	}

	// A clean retry with distinct ids still succeeds afterward.
	step2 := &models.Step{
		Index:     0,
		StartedAt: time.Now(),
		ToolCalls: []models.ToolCall{
			{ID: "call-a", Tool: "read", Parameters: []byte(`{}`)},
		},
	}
	if err := st.AppendStep(ctx, sess.ID, step2); err != nil {
		t.Fatalf("expected retry with distinct ids to succeed, got %v", err)
	}
}
