package models

import "time"

// AuditEvent is an append-only record of one tool execution, used both for
// the invariant "audit events emitted == tool executions performed" and for
// operator-facing observability.
type AuditEvent struct {
	TenantID   string        `json:"tenant_id"`
	SessionID  string        `json:"session_id"`
	StepIndex  int           `json:"step_index"`
	CallID     string        `json:"call_id"`
	Tool       string        `json:"tool"`
	OK         bool          `json:"ok"`
	ErrorKind  ToolErrorKind `json:"error_kind,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	SizeBefore int64         `json:"size_before"`
	SizeAfter  int64         `json:"size_after"`
}
