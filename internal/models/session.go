package models

import "time"

// SessionStatus is the lifecycle state of a RecursiveSession.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// RecursiveSession is the unit of orchestration. A session is created for
// every inbound request (depth 0) or by the task tool (depth parent+1), and
// terminates when its loop ends.
//
// Sessions are immutable after termination except for Status — the store
// enforces this by rejecting further append_step calls once a terminal
// status is recorded.
type RecursiveSession struct {
	ID         string        `json:"session_id"`
	ParentID   string        `json:"parent_id,omitempty"`
	TenantID   string        `json:"tenant_id"`
	Depth      int           `json:"depth"`
	CreatedAt  time.Time     `json:"created_at"`
	DeadlineAt time.Time     `json:"deadline_at"`
	Status     SessionStatus `json:"status"`
}

// Remaining returns the wallclock budget left before DeadlineAt, relative to
// now. Callers pass now explicitly so the orchestrator's deadline checks
// stay deterministic under test.
func (s *RecursiveSession) Remaining(now time.Time) time.Duration {
	return s.DeadlineAt.Sub(now)
}

// Expired reports whether now is at or past the session's deadline.
func (s *RecursiveSession) Expired(now time.Time) bool {
	return !now.Before(s.DeadlineAt)
}
