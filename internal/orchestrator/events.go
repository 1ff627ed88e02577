// Package orchestrator implements the Recursive Session loop (spec §4.6):
// normalize → iterate (generate/parse/compile/execute/finalize) → terminate,
// including batch concurrent tool execution and task recursion. Grounded on
// the teacher's internal/agent.AgenticLoop state machine (loop.go), re-
// targeted at the RLM two-model contract instead of native tool-calling.
package orchestrator

import "github.com/silverfisk/rants/internal/models"

// EventKind enumerates the internal event stream shared by both HTTP
// dialects (spec §4.7).
type EventKind string

const (
	EventSessionStarted  EventKind = "session_started"
	EventTextDelta       EventKind = "text_delta"
	EventTextDone        EventKind = "text_done"
	EventToolPhaseStarted EventKind = "tool_phase_started"
	EventToolPhaseDone   EventKind = "tool_phase_done"
	EventCompleted       EventKind = "completed"
	EventFailed          EventKind = "failed"
)

// Event is one unit of the orchestrator's internal event stream, consumed
// by the Streaming Assembler (C7) to produce either SSE dialect.
type Event struct {
	Kind      EventKind
	SessionID string
	Text      string                 // set on EventTextDelta
	Response  *models.ResponseObject // set on EventCompleted
	Err       error                  // set on EventFailed
}
