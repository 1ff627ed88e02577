package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/silverfisk/rants/internal/models"
)

type taskParams struct {
	Input string `json:"input"`
}

// executeTask implements the task recursion primitive (spec §4.6): creates
// a child RecursiveSession with parent_id = sess.id and depth = sess.depth+1,
// sharing the parent's absolute deadline ("inherits the remaining
// wallclock"). The child transcript is independent — the parent's steps are
// never passed unless carried explicitly in the task's input text. On
// completion, the child's final user-visible text is condensed into a
// summary and returned as the parent's tool result.
func (o *Orchestrator) executeTask(ctx context.Context, sess *models.RecursiveSession, call models.ToolCall) models.ToolResult {
	childDepth := sess.Depth + 1
	maxDepth := o.Config.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultConfig().MaxDepth
	}
	if childDepth > maxDepth {
		return toolError(call.ID, models.ToolErrRecursionLimit, "task recursion exceeds max_depth")
	}

	var params taskParams
	if err := json.Unmarshal(call.Parameters, &params); err != nil {
		return toolError(call.ID, models.ToolErrExecution, "invalid task parameters: "+err.Error())
	}

	child := &models.RecursiveSession{
		ID:         uuid.NewString(),
		ParentID:   sess.ID,
		TenantID:   sess.TenantID,
		Depth:      childDepth,
		CreatedAt:  time.Now(),
		DeadlineAt: sess.DeadlineAt,
		Status:     models.SessionRunning,
	}
	childTranscript := &models.CanonicalTranscript{
		SessionID:        child.ID,
		Input:            []models.InputPart{{Role: "user", Content: params.Input}},
		ToolSchemaDigest: o.Registry.Digest(),
	}

	if err := o.Store.CreateSession(ctx, child, childTranscript); err != nil {
		return toolError(call.ID, models.ToolErrExecution, "failed to create child session: "+err.Error())
	}

	var lastText string
	var taskErr error
	for event := range o.Run(ctx, RunRequest{Session: child, Transcript: childTranscript}) {
		switch event.Kind {
		case EventCompleted:
			if event.Response != nil {
				lastText = event.Response.Text()
			}
		case EventFailed:
			taskErr = event.Err
		}
	}

	if taskErr != nil {
		return toolError(call.ID, models.ToolErrExecution, "task failed: "+taskErr.Error())
	}

	summary := condenseSummary(lastText, o.summaryBytes())
	output, _ := json.Marshal(summary)
	return models.ToolResult{CallID: call.ID, OK: true, Output: output}
}

func (o *Orchestrator) summaryBytes() int {
	if o.Config.TaskSummaryBytes > 0 {
		return o.Config.TaskSummaryBytes
	}
	return DefaultConfig().TaskSummaryBytes
}

// condenseSummary implements the "last non-empty assistant output, truncated
// to a fixed byte cap" strategy from spec §4.6.
func condenseSummary(text string, maxBytes int) string {
	if maxBytes > 0 && len(text) > maxBytes {
		return text[:maxBytes]
	}
	return text
}
