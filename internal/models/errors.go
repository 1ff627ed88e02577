// Package models defines the data types shared across RANTS' orchestration
// layer: sessions, transcripts, tool calls, audit events, and the external
// response shape.
package models

import "errors"

// ErrorKind classifies a failure for client-response mapping and internal
// propagation decisions. See spec §7 for the full taxonomy table.
type ErrorKind string

const (
	ErrorBadRequest        ErrorKind = "bad_request"
	ErrorNotFound          ErrorKind = "not_found"
	ErrorRateLimited       ErrorKind = "rate_limited"
	ErrorUpstream          ErrorKind = "upstream_error"
	ErrorToolCompile       ErrorKind = "tool_compile_error"
	ErrorSandboxViolation  ErrorKind = "sandbox_violation"
	ErrorToolExec          ErrorKind = "tool_exec_error"
	ErrorDeadlineExceeded  ErrorKind = "deadline_exceeded"
	ErrorRecursionLimit    ErrorKind = "recursion_limit"
	ErrorCancelled         ErrorKind = "cancelled"
	ErrorInternal          ErrorKind = "internal"
	ErrorEmptyCompilation  ErrorKind = "empty_compilation"
	ErrorConcurrentModify  ErrorKind = "concurrent_modification"
)

// GatewayError is a structured error carrying an ErrorKind plus a
// human-readable message and optional upstream detail, propagated from any
// layer up to the HTTP surface for status-code mapping.
type GatewayError struct {
	Kind    ErrorKind
	Message string
	Status  int    // upstream HTTP status, when Kind == ErrorUpstream
	Detail  string // upstream body excerpt, audited but not always surfaced
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// NewGatewayError constructs a GatewayError with the given kind and message.
func NewGatewayError(kind ErrorKind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message}
}

// AsGatewayError unwraps err into a *GatewayError if possible.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

var (
	// ErrSessionNotFound indicates the session id does not resolve for the
	// given tenant.
	ErrSessionNotFound = errors.New("session not found")

	// ErrResponseNotFound indicates previous_response_id does not resolve.
	ErrResponseNotFound = errors.New("response not found")

	// ErrToolNotRegistered indicates a tool name unknown to the registry.
	ErrToolNotRegistered = errors.New("tool not registered")

	// ErrStepIndexGap indicates append_step received a non-contiguous
	// step_index for a session, violating the single-writer invariant.
	ErrStepIndexGap = errors.New("step index is not contiguous")
)
