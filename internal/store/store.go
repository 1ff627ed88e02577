// Package store implements the Transcript Store (spec §4.1): durable,
// tenant-scoped persistence of sessions, canonical transcripts, tool calls
// and results, audit events, and external response objects, backed by an
// embedded SQLite database. Grounded on the teacher's internal/artifacts
// repository and internal/sessions store patterns, adapted from Postgres to
// a single embedded file per the spec's single-process deployment model.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/observability"
)

// Store is the Transcript Store contract consumed by the orchestrator and
// HTTP surface. Every mutating method is tenant-scoped and single-writer
// per session, enforced via the step_index monotonicity check in
// AppendStep.
type Store interface {
	CreateSession(ctx context.Context, s *models.RecursiveSession, transcript *models.CanonicalTranscript) error
	LoadSession(ctx context.Context, id, tenantID string) (*models.RecursiveSession, *models.CanonicalTranscript, error)
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error
	AppendStep(ctx context.Context, sessionID string, step *models.Step) error
	FinalizeStep(ctx context.Context, sessionID string, stepIndex int, finishedAt time.Time) error
	PersistResponse(ctx context.Context, r *models.ResponseObject) error
	LookupResponse(ctx context.Context, id, tenantID string) (*models.ResponseObject, error)
	RecordAudit(ctx context.Context, event *models.AuditEvent) error
	Close() error
}

// SQLStore is the SQLite-backed Store implementation.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	// Tracer, when set, emits a client span around each query/transaction
	// (C1's seam in SPEC_FULL.md observability). A nil Tracer is a no-op, so
	// a store opened via Open without further setup traces nothing.
	Tracer *observability.Tracer
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending migrations.
func Open(path string, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer SQLite file; serialize at the handle

	migrator, err := NewMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := migrator.Up(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row along with its initial (empty)
// transcript shell.
func (s *SQLStore) CreateSession(ctx context.Context, sess *models.RecursiveSession, transcript *models.CanonicalTranscript) error {
	ctx, span := s.Tracer.TraceDatabaseQuery(ctx, "insert", "sessions")
	defer span.End()

	inputJSON, err := json.Marshal(transcript.Input)
	if err != nil {
		s.Tracer.RecordError(span, err)
		return fmt.Errorf("encode transcript input: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, parent_id, tenant_id, depth, created_at, deadline_at, status, system, input_json, tool_schema_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, nullString(sess.ParentID), sess.TenantID, sess.Depth,
		formatTime(sess.CreatedAt), formatTime(sess.DeadlineAt), string(sess.Status),
		transcript.System, string(inputJSON), transcript.ToolSchemaDigest)
	if err != nil {
		err = fmt.Errorf("insert session: %w", err)
		s.Tracer.RecordError(span, err)
		return err
	}
	return nil
}

// LoadSession loads a session and its full transcript (steps, calls,
// results) scoped to tenantID. A tenant mismatch or missing id both surface
// as models.ErrSessionNotFound, matching the spec's NotFound mapping.
func (s *SQLStore) LoadSession(ctx context.Context, id, tenantID string) (*models.RecursiveSession, *models.CanonicalTranscript, error) {
	ctx, span := s.Tracer.TraceDatabaseQuery(ctx, "select", "sessions")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, tenant_id, depth, created_at, deadline_at, status, system, input_json, tool_schema_digest
		FROM sessions WHERE id = ? AND tenant_id = ?
	`, id, tenantID)

	var (
		sess                                     models.RecursiveSession
		parentID, createdAt, deadlineAt, inputJS  sql.NullString
		status, system, digest                   string
	)
	if err := row.Scan(&sess.ID, &parentID, &sess.TenantID, &sess.Depth, &createdAt, &deadlineAt, &status, &system, &inputJS, &digest); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, models.ErrSessionNotFound
		}
		err = fmt.Errorf("load session: %w", err)
		s.Tracer.RecordError(span, err)
		return nil, nil, err
	}
	sess.ParentID = parentID.String
	sess.Status = models.SessionStatus(status)
	sess.CreatedAt = parseTime(createdAt.String)
	sess.DeadlineAt = parseTime(deadlineAt.String)

	transcript := &models.CanonicalTranscript{
		SessionID:        id,
		System:           system,
		ToolSchemaDigest: digest,
	}
	if inputJS.Valid && inputJS.String != "" {
		if err := json.Unmarshal([]byte(inputJS.String), &transcript.Input); err != nil {
			err = fmt.Errorf("decode transcript input: %w", err)
			s.Tracer.RecordError(span, err)
			return nil, nil, err
		}
	}

	steps, err := s.loadSteps(ctx, id)
	if err != nil {
		s.Tracer.RecordError(span, err)
		return nil, nil, err
	}
	transcript.Steps = steps

	return &sess, transcript, nil
}

func (s *SQLStore) loadSteps(ctx context.Context, sessionID string) ([]models.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_index, generator_output, tool_intent, started_at, finished_at
		FROM steps WHERE session_id = ? ORDER BY step_index ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var steps []models.Step
	for rows.Next() {
		var st models.Step
		var startedAt string
		var finishedAt sql.NullString
		if err := rows.Scan(&st.Index, &st.GeneratorOutput, &st.ToolIntent, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		st.StartedAt = parseTime(startedAt)
		if finishedAt.Valid {
			st.FinishedAt = parseTime(finishedAt.String)
		}
		calls, results, err := s.loadCallsAndResults(ctx, sessionID, st.Index)
		if err != nil {
			return nil, err
		}
		st.ToolCalls = calls
		st.ToolResults = results
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *SQLStore) loadCallsAndResults(ctx context.Context, sessionID string, stepIndex int) ([]models.ToolCall, []models.ToolResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tc.id, tc.tool, tc.parameters_json, tr.ok, tr.output_json, tr.error_kind, tr.started_at, tr.finished_at, tr.bytes_truncated
		FROM tool_calls tc
		LEFT JOIN tool_results tr ON tr.call_id = tc.id
		WHERE tc.session_id = ? AND tc.step_index = ?
		ORDER BY tc.call_order ASC
	`, sessionID, stepIndex)
	if err != nil {
		return nil, nil, fmt.Errorf("load tool calls: %w", err)
	}
	defer rows.Close()

	var calls []models.ToolCall
	var results []models.ToolResult
	for rows.Next() {
		var (
			call                              models.ToolCall
			paramsJSON                        string
			ok                                sql.NullBool
			outputJSON, errorKind             sql.NullString
			startedAt, finishedAt             sql.NullString
			bytesTruncated                    sql.NullInt64
		)
		if err := rows.Scan(&call.ID, &call.Tool, &paramsJSON, &ok, &outputJSON, &errorKind, &startedAt, &finishedAt, &bytesTruncated); err != nil {
			return nil, nil, err
		}
		call.SessionID = sessionID
		call.StepIndex = stepIndex
		call.Parameters = json.RawMessage(paramsJSON)
		calls = append(calls, call)

		if ok.Valid {
			results = append(results, models.ToolResult{
				CallID:         call.ID,
				OK:             ok.Bool,
				Output:         json.RawMessage(outputJSON.String),
				ErrorKind:      models.ToolErrorKind(errorKind.String),
				StartedAt:      parseTime(startedAt.String),
				FinishedAt:     parseTime(finishedAt.String),
				BytesTruncated: int(bytesTruncated.Int64),
			})
		}
	}
	return calls, results, rows.Err()
}

// UpdateSessionStatus updates a session's terminal status.
func (s *SQLStore) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// AppendStep writes a step along with its tool calls in a single
// transaction, enforcing that step.Index is exactly one past the highest
// index already recorded for the session (single-writer invariant).
func (s *SQLStore) AppendStep(ctx context.Context, sessionID string, step *models.Step) error {
	ctx, span := s.Tracer.TraceDatabaseQuery(ctx, "insert", "steps")
	defer span.End()

	err := s.appendStep(ctx, sessionID, step)
	if err != nil {
		s.Tracer.RecordError(span, err)
	}
	return err
}

func (s *SQLStore) appendStep(ctx context.Context, sessionID string, step *models.Step) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append_step: %w", err)
	}
	defer tx.Rollback()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status); err != nil {
		if err == sql.ErrNoRows {
			return models.ErrSessionNotFound
		}
		return fmt.Errorf("check session status: %w", err)
	}
	if models.SessionStatus(status) != models.SessionRunning {
		return models.NewGatewayError(models.ErrorConcurrentModify,
			fmt.Sprintf("session %s is %s; no further steps may be appended", sessionID, status))
	}

	var maxIndex sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(step_index) FROM steps WHERE session_id = ?`, sessionID).Scan(&maxIndex); err != nil {
		return fmt.Errorf("check step index: %w", err)
	}
	expected := 0
	if maxIndex.Valid {
		expected = int(maxIndex.Int64) + 1
	}
	if step.Index != expected {
		return models.NewGatewayError(models.ErrorConcurrentModify,
			fmt.Sprintf("step index %d is not contiguous (expected %d)", step.Index, expected))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO steps (session_id, step_index, generator_output, tool_intent, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`, sessionID, step.Index, step.GeneratorOutput, step.ToolIntent, formatTime(step.StartedAt)); err != nil {
		return fmt.Errorf("insert step: %w", err)
	}

	for i, call := range step.ToolCalls {
		if call.ID == "" {
			call.ID = uuid.NewString()
			step.ToolCalls[i] = call
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_calls (id, session_id, step_index, tool, parameters_json, call_order)
			VALUES (?, ?, ?, ?, ?, ?)
		`, call.ID, sessionID, step.Index, call.Tool, string(call.Parameters), i); err != nil {
			return fmt.Errorf("insert tool call: %w", err)
		}
	}

	for _, result := range step.ToolResults {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tool_results (call_id, ok, output_json, error_kind, started_at, finished_at, bytes_truncated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, result.CallID, boolToInt(result.OK), string(result.Output), string(result.ErrorKind),
			formatTime(result.StartedAt), formatTime(result.FinishedAt), result.BytesTruncated); err != nil {
			return fmt.Errorf("insert tool result: %w", err)
		}
	}

	return tx.Commit()
}

// FinalizeStep stamps a step's finished_at time, marking it complete.
func (s *SQLStore) FinalizeStep(ctx context.Context, sessionID string, stepIndex int, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE steps SET finished_at = ? WHERE session_id = ? AND step_index = ?
	`, formatTime(finishedAt), sessionID, stepIndex)
	if err != nil {
		return fmt.Errorf("finalize step: %w", err)
	}
	return nil
}

// PersistResponse stores the external ResponseObject for previous_response_id
// lookups.
func (s *SQLStore) PersistResponse(ctx context.Context, r *models.ResponseObject) error {
	outputJSON, err := json.Marshal(r.Output)
	if err != nil {
		return fmt.Errorf("encode response output: %w", err)
	}
	usageJSON, err := json.Marshal(r.Usage)
	if err != nil {
		return fmt.Errorf("encode response usage: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO responses (id, tenant_id, session_id, created_at, model, output_json, status, usage_json, previous_response_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET output_json=excluded.output_json, status=excluded.status, usage_json=excluded.usage_json
	`, r.ID, r.TenantID, r.SessionID, formatTime(r.CreatedAt), r.Model, string(outputJSON), string(r.Status), string(usageJSON), nullString(r.PreviousResponseID))
	if err != nil {
		return fmt.Errorf("persist response: %w", err)
	}
	return nil
}

// LookupResponse resolves previous_response_id scoped to tenantID.
func (s *SQLStore) LookupResponse(ctx context.Context, id, tenantID string) (*models.ResponseObject, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, session_id, created_at, model, output_json, status, usage_json, previous_response_id
		FROM responses WHERE id = ? AND tenant_id = ?
	`, id, tenantID)

	var (
		r                                  models.ResponseObject
		createdAt, outputJSON, usageJSON   string
		status                             string
		prevID                             sql.NullString
	)
	if err := row.Scan(&r.ID, &r.TenantID, &r.SessionID, &createdAt, &r.Model, &outputJSON, &status, &usageJSON, &prevID); err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrResponseNotFound
		}
		return nil, fmt.Errorf("lookup response: %w", err)
	}
	r.CreatedAt = parseTime(createdAt)
	r.Status = models.ResponseStatus(status)
	r.PreviousResponseID = prevID.String
	if err := json.Unmarshal([]byte(outputJSON), &r.Output); err != nil {
		return nil, fmt.Errorf("decode response output: %w", err)
	}
	if err := json.Unmarshal([]byte(usageJSON), &r.Usage); err != nil {
		return nil, fmt.Errorf("decode response usage: %w", err)
	}
	return &r, nil
}

// RecordAudit appends one audit event row.
func (s *SQLStore) RecordAudit(ctx context.Context, event *models.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (tenant_id, session_id, step_index, call_id, tool, ok, error_kind, timestamp, size_before, size_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.TenantID, event.SessionID, event.StepIndex, event.CallID, event.Tool, boolToInt(event.OK),
		string(event.ErrorKind), formatTime(event.Timestamp), event.SizeBefore, event.SizeAfter)
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
