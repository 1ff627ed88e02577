// Package tools implements the Tool Registry & Executor Contract (spec
// §4.2): name → (schema, executor) lookup, the sandbox contract, and the
// built-in tool set (read, edit, bash, plus the batch/task recursion
// primitives). Grounded on the teacher's internal/agent.ToolRegistry and
// internal/tools/exec package.
package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/silverfisk/rants/internal/models"
)

// ExecContext carries the per-call execution environment: the sandboxed
// workspace root, the call's deadline, and tenant/session identifiers for
// audit correlation.
type ExecContext struct {
	Context     context.Context
	WorkspaceRoot string
	Deadline      time.Time
	TenantID      string
	SessionID     string
	StepIndex     int
}

// Tool is the executor contract every registered tool implements. Execute
// must never panic or return an uncaught error for expected failure modes —
// it maps them onto ToolResult.ErrorKind instead, per spec §4.2.
type Tool interface {
	Name() string
	Description() string
	// Schema returns the tool's parameter JSON Schema.
	Schema() json.RawMessage
	Execute(ectx *ExecContext, params json.RawMessage) (*models.ToolResult, error)
}

// ToolSchema is the shape the Tool Compiler (C4) receives for every
// registry-visible tool.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}
