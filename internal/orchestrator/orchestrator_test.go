package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

func newTestSession(tenant string, deadline time.Time) (*models.RecursiveSession, *models.CanonicalTranscript) {
	id := uuid.NewString()
	sess := &models.RecursiveSession{
		ID:         id,
		TenantID:   tenant,
		CreatedAt:  time.Now(),
		DeadlineAt: deadline,
		Status:     models.SessionRunning,
	}
	transcript := &models.CanonicalTranscript{
		SessionID: id,
		Input:     []models.InputPart{{Role: "user", Content: "hello"}},
	}
	return sess, transcript
}

func newTestOrchestrator(be *fakeBackend, st *fakeStore, reg *tools.Registry, cfg Config) *Orchestrator {
	comp := compiler.New(be, "rants_tool_compiler", reg)
	return New(st, reg, be, comp, cfg)
}

func drain(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func TestLoop_NoToolIntent_Completes(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{streamDeltas: [][]string{{"hello there"}}}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	st.CreateSession(context.Background(), sess, transcript)

	events := o.Run(context.Background(), RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected EventCompleted, got %v (err=%v)", last.Kind, last.Err)
	}
	if last.Response.Status != models.ResponseCompleted {
		t.Fatalf("status = %v, want completed", last.Response.Status)
	}
	if got := last.Response.Text(); got != "hello there" {
		t.Fatalf("text = %q, want %q", got, "hello there")
	}
	if len(transcript.Steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(transcript.Steps))
	}
	if !transcript.Steps[0].Finalized() {
		t.Fatalf("step 0 not finalized")
	}
}

func TestLoop_SingleToolCall_Completes(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	be := &fakeBackend{
		streamDeltas: [][]string{
			{"checking the file\nTOOL_INTENT: read the echo tool's output"},
			{"done, the tool said hi"},
		},
		completeTexts: []string{
			`{"tool_calls":[{"tool":"echo","parameters":{}}]}`,
		},
	}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	st.CreateSession(context.Background(), sess, transcript)

	events := o.Run(context.Background(), RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected EventCompleted, got %v (err=%v)", last.Kind, last.Err)
	}
	if len(transcript.Steps) != 2 {
		t.Fatalf("len(steps) = %d, want 2", len(transcript.Steps))
	}
	step0 := transcript.Steps[0]
	if len(step0.ToolCalls) != 1 || len(step0.ToolResults) != 1 {
		t.Fatalf("step 0 calls/results = %d/%d, want 1/1", len(step0.ToolCalls), len(step0.ToolResults))
	}
	if !step0.ToolResults[0].OK {
		t.Fatalf("expected tool result ok=true")
	}
	if transcript.Steps[1].ToolIntent != "" {
		t.Fatalf("final step should carry no intent")
	}
}

func TestLoop_IterationCapReachesSyntheticStep(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	cfg := DefaultConfig()
	cfg.MaxToolIterations = 2

	deltas := make([][]string, 0)
	completes := make([]string, 0)
	for i := 0; i < cfg.MaxToolIterations; i++ {
		deltas = append(deltas, []string{"still working\nTOOL_INTENT: keep going"})
		completes = append(completes, `{"tool_calls":[{"tool":"echo","parameters":{}}]}`)
	}
	be := &fakeBackend{streamDeltas: deltas, completeTexts: completes}
	o := newTestOrchestrator(be, st, reg, cfg)

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	st.CreateSession(context.Background(), sess, transcript)

	events := o.Run(context.Background(), RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected EventCompleted, got %v (err=%v)", last.Kind, last.Err)
	}
	if last.Response.Status != models.ResponseCompleted {
		t.Fatalf("status = %v, want completed", last.Response.Status)
	}
	// cfg.MaxToolIterations real steps plus one synthetic terminal step.
	if len(transcript.Steps) != cfg.MaxToolIterations+1 {
		t.Fatalf("len(steps) = %d, want %d", len(transcript.Steps), cfg.MaxToolIterations+1)
	}
	final := transcript.Steps[len(transcript.Steps)-1]
	if len(final.ToolCalls) != 0 || final.ToolIntent != "" {
		t.Fatalf("expected synthetic terminal step with no calls/intent, got %+v", final)
	}
}

func TestLoop_DeadlineExceeded_Fails(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(-time.Second))
	st.CreateSession(context.Background(), sess, transcript)

	events := o.Run(context.Background(), RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventFailed {
		t.Fatalf("expected EventFailed, got %v", last.Kind)
	}
	ge, ok := models.AsGatewayError(last.Err)
	if !ok || ge.Kind != models.ErrorDeadlineExceeded {
		t.Fatalf("err = %v, want DeadlineExceeded", last.Err)
	}
	if sess.Status != models.SessionFailed {
		t.Fatalf("session status = %v, want failed", sess.Status)
	}
}

func TestLoop_CancelledContext(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	be := &fakeBackend{streamDeltas: [][]string{{"hi"}}}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	st.CreateSession(context.Background(), sess, transcript)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := o.Run(ctx, RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventFailed {
		t.Fatalf("expected EventFailed, got %v", last.Kind)
	}
	ge, ok := models.AsGatewayError(last.Err)
	if !ok || ge.Kind != models.ErrorCancelled {
		t.Fatalf("err = %v, want Cancelled", last.Err)
	}
}

func TestLoop_EmptyCompilation_TerminatesWithoutClientError(t *testing.T) {
	st := newFakeStore()
	reg := tools.NewRegistry()
	reg.Register(echoTool{})

	be := &fakeBackend{
		streamDeltas: [][]string{
			{"thinking\nTOOL_INTENT: do something vague"},
		},
		completeTexts: []string{
			`{"tool_calls":[]}`,
		},
	}
	o := newTestOrchestrator(be, st, reg, DefaultConfig())

	sess, transcript := newTestSession("t1", time.Now().Add(time.Minute))
	st.CreateSession(context.Background(), sess, transcript)

	events := o.Run(context.Background(), RunRequest{Session: sess, Transcript: transcript})
	all := drain(t, events)

	last := all[len(all)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected EventCompleted, got %v (err=%v)", last.Kind, last.Err)
	}
	if len(transcript.Steps) != 1 {
		t.Fatalf("len(steps) = %d, want 1", len(transcript.Steps))
	}
	if len(transcript.Steps[0].ToolCalls) != 0 {
		t.Fatalf("expected zero tool calls recorded")
	}
}
