package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

// executeCalls runs a step's tool_calls in declared order (spec §4.6f,
// §4.9 ordering rule). batch and task calls are intercepted before they
// reach the registry; every other call executes directly.
func (o *Orchestrator) executeCalls(ctx context.Context, sess *models.RecursiveSession, stepIndex int, calls []models.ToolCall) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	for i, call := range calls {
		switch call.Tool {
		case tools.BatchToolName:
			results[i] = o.executeBatch(ctx, sess, stepIndex, call)
		case tools.TaskToolName:
			results[i] = o.executeTask(ctx, sess, call)
		default:
			results[i] = o.executeOne(ctx, sess, stepIndex, call)
		}
	}
	return results
}

func (o *Orchestrator) execContext(ctx context.Context, sess *models.RecursiveSession, stepIndex int) *tools.ExecContext {
	return &tools.ExecContext{
		Context:       ctx,
		WorkspaceRoot: o.Config.WorkspaceRoot,
		Deadline:      sess.DeadlineAt,
		TenantID:      sess.TenantID,
		SessionID:     sess.ID,
		StepIndex:     stepIndex,
	}
}

func (o *Orchestrator) executeOne(ctx context.Context, sess *models.RecursiveSession, stepIndex int, call models.ToolCall) models.ToolResult {
	timeout := o.Config.PerToolTimeout
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	spanCtx, span := o.Tracer.TraceToolExecution(runCtx, call.Tool)
	defer span.End()

	ectx := o.execContext(spanCtx, sess, stepIndex)
	result := o.Registry.Execute(ectx, call)
	if !result.OK {
		o.Tracer.RecordError(span, fmt.Errorf("tool %s failed: %s", call.Tool, result.ErrorKind))
	}
	o.audit(sess, stepIndex, call, result)
	return *result
}

// batchParams is the decoded shape of the "batch" tool's parameters (see
// internal/tools.BatchSchemaTool.Schema).
type batchParams struct {
	Calls []struct {
		Tool       string          `json:"tool"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"calls"`
}

// executeBatch runs a batch call's declared children concurrently, bounded
// by BatchConcurrency, joining all results before returning — grounded on
// the teacher's ToolExecutor.ExecuteConcurrently (semaphore-bounded
// goroutines, ordered result slice).
func (o *Orchestrator) executeBatch(ctx context.Context, sess *models.RecursiveSession, stepIndex int, call models.ToolCall) models.ToolResult {
	var params batchParams
	if err := json.Unmarshal(call.Parameters, &params); err != nil {
		return toolError(call.ID, models.ToolErrExecution, "invalid batch parameters: "+err.Error())
	}

	children := make([]models.ToolCall, len(params.Calls))
	for i, c := range params.Calls {
		children[i] = models.ToolCall{
			ID:         call.ID + "." + strconv.Itoa(i),
			SessionID:  sess.ID,
			StepIndex:  stepIndex,
			Tool:       c.Tool,
			Parameters: c.Parameters,
		}
	}

	concurrency := o.Config.BatchConcurrency
	if concurrency <= 0 {
		concurrency = DefaultConfig().BatchConcurrency
	}

	childResults := make([]models.ToolResult, len(children))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, child := range children {
		wg.Add(1)
		go func(idx int, c models.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				childResults[idx] = toolError(c.ID, models.ToolErrCancelled, "context cancelled")
				return
			}
			childResults[idx] = o.executeOne(ctx, sess, stepIndex, c)
		}(i, child)
	}
	wg.Wait()

	output, _ := json.Marshal(childResults)
	return models.ToolResult{CallID: call.ID, OK: true, Output: output}
}

func toolError(callID string, kind models.ToolErrorKind, message string) models.ToolResult {
	out, _ := json.Marshal(message)
	return models.ToolResult{CallID: callID, OK: false, Output: out, ErrorKind: kind}
}

func (o *Orchestrator) audit(sess *models.RecursiveSession, stepIndex int, call models.ToolCall, result *models.ToolResult) {
	event := &models.AuditEvent{
		TenantID:  sess.TenantID,
		SessionID: sess.ID,
		StepIndex: stepIndex,
		CallID:    call.ID,
		Tool:      call.Tool,
		OK:        result.OK,
		ErrorKind: result.ErrorKind,
		Timestamp: result.FinishedAt,
		SizeAfter: int64(len(result.Output)),
	}
	if o.Audit != nil {
		o.Audit.Record(context.Background(), event)
		return
	}
	if o.Store == nil {
		return
	}
	_ = o.Store.RecordAudit(context.Background(), event)
}
