package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/silverfisk/rants/internal/tools"
)

func TestRunShimStep_NoIntent_ReturnsTextOnly(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{streamDeltas: [][]string{{"just a plain reply"}}}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	events := make(chan Event, 16)

	result, err := o.RunShimStep(context.Background(), sess, transcript, events)
	if err != nil {
		t.Fatalf("RunShimStep: %v", err)
	}
	if result.Text != "just a plain reply" {
		t.Fatalf("text = %q", result.Text)
	}
	if len(result.ToolCalls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(result.ToolCalls))
	}
	if len(transcript.Steps) != 0 {
		t.Fatalf("shim step must not append to the transcript, got %d steps", len(transcript.Steps))
	}
}

func TestRunShimStep_WithIntent_CompilesButDoesNotExecute(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	be := &fakeBackend{
		streamDeltas: [][]string{{"Updating README.\nTOOL_INTENT: edit README.md"}},
		completeTexts: []string{
			`{"tool_calls":[{"tool":"echo","parameters":{}}]}`,
		},
	}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	events := make(chan Event, 16)

	result, err := o.RunShimStep(context.Background(), sess, transcript, events)
	if err != nil {
		t.Fatalf("RunShimStep: %v", err)
	}
	if result.Text != "Updating README." {
		t.Fatalf("text = %q", result.Text)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Tool != "echo" {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
}
