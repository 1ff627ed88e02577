package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

// slowEchoTool lets batch tests observe concurrent execution: it sleeps for
// the duration given in its "sleep_ms" parameter before echoing it back.
type slowEchoTool struct{}

func (slowEchoTool) Name() string        { return "slow_echo" }
func (slowEchoTool) Description() string { return "Sleep then echo." }
func (slowEchoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (slowEchoTool) Execute(ectx *tools.ExecContext, params json.RawMessage) (*models.ToolResult, error) {
	var p struct {
		SleepMS int `json:"sleep_ms"`
	}
	_ = json.Unmarshal(params, &p)
	time.Sleep(time.Duration(p.SleepMS) * time.Millisecond)
	return &models.ToolResult{OK: true, Output: params}, nil
}

func TestExecuteBatch_RunsConcurrentlyAndPreservesOrder(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	reg.Register(slowEchoTool{})
	be := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.BatchConcurrency = 4
	o := newTestOrchestrator(be, st, reg, cfg)

	sess, _ := newTestSession("t1", time.Now().Add(time.Minute))

	params, _ := json.Marshal(map[string]any{
		"calls": []map[string]any{
			{"tool": "slow_echo", "parameters": map[string]any{"sleep_ms": 60, "tag": "a"}},
			{"tool": "slow_echo", "parameters": map[string]any{"sleep_ms": 20, "tag": "b"}},
			{"tool": "slow_echo", "parameters": map[string]any{"sleep_ms": 40, "tag": "c"}},
		},
	})
	call := models.ToolCall{ID: "batch-1", Tool: tools.BatchToolName, Parameters: params}

	start := time.Now()
	result := o.executeBatch(context.Background(), sess, 0, call)
	elapsed := time.Since(start)

	if !result.OK {
		t.Fatalf("batch result not ok")
	}
	if elapsed > 100*time.Millisecond {
		t.Fatalf("batch took %v, expected concurrent execution well under serial 120ms", elapsed)
	}

	var children []models.ToolResult
	if err := json.Unmarshal(result.Output, &children); err != nil {
		t.Fatalf("decode batch output: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("len(children) = %d, want 3", len(children))
	}
	for i, c := range children {
		var echoed map[string]any
		if err := json.Unmarshal(c.Output, &echoed); err != nil {
			t.Fatalf("child %d output not decodable: %v", i, err)
		}
	}
	tags := []string{"a", "b", "c"}
	for i, c := range children {
		var echoed struct {
			Tag string `json:"tag"`
		}
		_ = json.Unmarshal(c.Output, &echoed)
		if echoed.Tag != tags[i] {
			t.Fatalf("children[%d].tag = %q, want %q (order must match declared calls)", i, echoed.Tag, tags[i])
		}
	}
}

func TestExecuteOne_UnknownTool_ReturnsToolExecError(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, _ := newTestSession("t1", time.Now().Add(time.Minute))
	call := models.ToolCall{ID: "c1", Tool: "does_not_exist", Parameters: json.RawMessage(`{}`)}

	result := o.executeOne(context.Background(), sess, 0, call)
	if result.OK {
		t.Fatalf("expected ok=false for unknown tool")
	}
	if result.ErrorKind != models.ToolErrExecution {
		t.Fatalf("error kind = %v, want %v", result.ErrorKind, models.ToolErrExecution)
	}
	if len(st.audits) != 1 {
		t.Fatalf("expected one audit event, got %d", len(st.audits))
	}
}
