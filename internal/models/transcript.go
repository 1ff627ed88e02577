package models

import (
	"encoding/json"
	"time"
)

// InputPart is one structured piece of the initial user input. Most inputs
// normalize to a single text part; array-form `input` fields in
// /v1/responses requests may carry several.
type InputPart struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CanonicalTranscript is a session's context C: the system prompt, the
// normalized user input, the schema digest the session was opened with, and
// the ordered list of generation steps.
type CanonicalTranscript struct {
	SessionID        string      `json:"session_id"`
	System           string      `json:"system,omitempty"`
	Input            []InputPart `json:"input"`
	ToolSchemaDigest string      `json:"tool_schema_digest"`
	Steps            []Step      `json:"steps"`
}

// UserText concatenates the role:"user" input parts into a single string for
// prompt assembly and compact-context construction.
func (t *CanonicalTranscript) UserText() string {
	var out string
	for _, p := range t.Input {
		if p.Role == "user" || p.Role == "" {
			if out != "" {
				out += "\n"
			}
			out += p.Content
		}
	}
	return out
}

// Step records one generation cycle of the orchestrator loop.
type Step struct {
	Index           int          `json:"index"`
	GeneratorOutput string       `json:"generator_output"`
	ToolIntent      string       `json:"tool_intent,omitempty"`
	ToolCalls       []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults     []ToolResult `json:"tool_results,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	FinishedAt      time.Time    `json:"finished_at,omitempty"`
}

// Finalized reports whether the step has both a finish time and a result for
// every call, satisfying the |tool_calls| = |tool_results| invariant.
func (s *Step) Finalized() bool {
	return !s.FinishedAt.IsZero() && len(s.ToolCalls) == len(s.ToolResults)
}

// HasIntent reports whether the step produced a non-empty tool intent.
func (s *Step) HasIntent() bool {
	return s.ToolIntent != ""
}

// ToolCall is one validated, registry-resolved call compiled from a tool
// intent.
type ToolCall struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	StepIndex  int             `json:"step_index"`
	Tool       string          `json:"tool"`
	Parameters json.RawMessage `json:"parameters"`
}

// CallIDOrSelf returns the call's ID, used when constructing a ToolResult
// before the call has necessarily been persisted.
func (c ToolCall) CallIDOrSelf() string {
	return c.ID
}

// ToolErrorKind enumerates the reasons a tool result can carry ok=false.
type ToolErrorKind string

const (
	ToolErrNone             ToolErrorKind = ""
	ToolErrSandboxViolation ToolErrorKind = "sandbox_violation"
	ToolErrExecution        ToolErrorKind = "tool_exec_error"
	ToolErrTimeout          ToolErrorKind = "timeout"
	ToolErrRecursionLimit   ToolErrorKind = "recursion_limit"
	ToolErrCancelled        ToolErrorKind = "cancelled"
)

// ToolResult is the outcome of executing one ToolCall.
type ToolResult struct {
	CallID          string          `json:"call_id"`
	OK              bool            `json:"ok"`
	Output          json.RawMessage `json:"output,omitempty"`
	ErrorKind       ToolErrorKind   `json:"error_kind,omitempty"`
	StartedAt       time.Time       `json:"started_at"`
	FinishedAt      time.Time       `json:"finished_at"`
	BytesTruncated  int             `json:"bytes_truncated,omitempty"`
}
