package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

func TestExecuteTask_RecursionLimitAtMaxDepth(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{}
	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	o := newTestOrchestrator(be, st, reg, cfg)

	sess, _ := newTestSession("t1", time.Now().Add(time.Minute))
	sess.Depth = cfg.MaxDepth // one more task call would exceed max_depth

	params, _ := json.Marshal(map[string]any{"input": "go deeper"})
	call := models.ToolCall{ID: "task-1", Tool: tools.TaskToolName, Parameters: params}

	result := o.executeTask(context.Background(), sess, call)
	if result.OK {
		t.Fatalf("expected recursion limit failure")
	}
	if result.ErrorKind != models.ToolErrRecursionLimit {
		t.Fatalf("error kind = %v, want %v", result.ErrorKind, models.ToolErrRecursionLimit)
	}
}

func TestExecuteTask_ChildInheritsDeadlineAndSummarizes(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{streamDeltas: [][]string{{"the child's final answer"}}}
	cfg := DefaultConfig()
	cfg.TaskSummaryBytes = 8
	o := newTestOrchestrator(be, st, reg, cfg)

	deadline := time.Now().Add(90 * time.Second)
	sess, transcript := newTestSession("t1", deadline)
	if err := st.CreateSession(context.Background(), sess, transcript); err != nil {
		t.Fatalf("create parent session: %v", err)
	}

	params, _ := json.Marshal(map[string]any{"input": "summarize something"})
	call := models.ToolCall{ID: "task-1", Tool: tools.TaskToolName, Parameters: params}

	result := o.executeTask(context.Background(), sess, call)
	if !result.OK {
		t.Fatalf("expected task success, got error kind %v", result.ErrorKind)
	}

	var summary string
	if err := json.Unmarshal(result.Output, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(summary) > cfg.TaskSummaryBytes {
		t.Fatalf("summary length = %d, want <= %d", len(summary), cfg.TaskSummaryBytes)
	}

	if len(st.sessions) != 2 {
		t.Fatalf("expected parent + child session persisted, got %d", len(st.sessions))
	}
	for id, child := range st.sessions {
		if id == sess.ID {
			continue
		}
		if child.ParentID != sess.ID {
			t.Fatalf("child.ParentID = %q, want %q", child.ParentID, sess.ID)
		}
		if child.Depth != sess.Depth+1 {
			t.Fatalf("child.Depth = %d, want %d", child.Depth, sess.Depth+1)
		}
		if !child.DeadlineAt.Equal(deadline) {
			t.Fatalf("child.DeadlineAt = %v, want %v (inherited from parent)", child.DeadlineAt, deadline)
		}
	}
}

func TestCondenseSummary_TruncatesToByteCap(t *testing.T) {
	got := condenseSummary("0123456789", 4)
	if got != "0123" {
		t.Fatalf("condenseSummary = %q, want %q", got, "0123")
	}
	if got := condenseSummary("short", 100); got != "short" {
		t.Fatalf("condenseSummary should not pad short text, got %q", got)
	}
}
