package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/silverfisk/rants/internal/audit"
	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/observability"
	"github.com/silverfisk/rants/internal/rlm"
	"github.com/silverfisk/rants/internal/store"
	"github.com/silverfisk/rants/internal/tools"
)

// CompactContextConfig bounds the compact-context construction the Tool
// Compiler is given (spec §9 open question, resolved here — see
// buildCompactContext).
type CompactContextConfig struct {
	MaxSteps  int
	StepBytes int
	MaxBytes  int
}

// DefaultCompactContextConfig returns the default compact-context bounds:
// the last 6 steps, at most 2000 bytes per step and 8000 bytes in total.
func DefaultCompactContextConfig() CompactContextConfig {
	return CompactContextConfig{MaxSteps: 6, StepBytes: 2000, MaxBytes: 8000}
}

// Config bounds one Orchestrator's resource model (spec §5).
type Config struct {
	MaxToolIterations int
	MaxDepth          int
	BatchConcurrency  int
	PerToolTimeout    time.Duration
	TaskSummaryBytes  int
	CompactContext    CompactContextConfig
	WorkspaceRoot     string
	Model             string
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxToolIterations: 10,
		MaxDepth:          3,
		BatchConcurrency:  4,
		PerToolTimeout:    30 * time.Second,
		TaskSummaryBytes:  2000,
		CompactContext:    DefaultCompactContextConfig(),
		WorkspaceRoot:     ".",
		Model:             "rants_one_name",
	}
}

// Orchestrator runs Recursive Sessions: one invocation per inbound request,
// and recursively for every task-tool call.
type Orchestrator struct {
	Store    store.Store
	Registry *tools.Registry
	Backend  backend.Backend
	Compiler *compiler.Compiler
	Config   Config
	// Audit, when set, receives every tool-execution audit event in
	// addition to the Store write (C10). Optional — nil falls back to
	// writing through Store alone.
	Audit *audit.Logger
	// Tracer, when set, emits an internal span around every dispatched tool
	// call (dispatch.go's executeOne). A nil Tracer is a no-op.
	Tracer *observability.Tracer
}

// New constructs an Orchestrator from its required collaborators.
func New(st store.Store, reg *tools.Registry, be backend.Backend, comp *compiler.Compiler, cfg Config) *Orchestrator {
	return &Orchestrator{Store: st, Registry: reg, Backend: be, Compiler: comp, Config: cfg}
}

// RunRequest carries an already-persisted session and its transcript into
// the loop.
type RunRequest struct {
	Session    *models.RecursiveSession
	Transcript *models.CanonicalTranscript
}

// Run executes the Recursive Session loop for req.Session, emitting internal
// events on the returned channel. The channel is closed once the session
// terminates (EventCompleted or EventFailed is always the last event).
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		o.run(ctx, req.Session, req.Transcript, events)
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, sess *models.RecursiveSession, transcript *models.CanonicalTranscript, events chan<- Event) {
	events <- Event{Kind: EventSessionStarted, SessionID: sess.ID}

	resp, err := o.loop(ctx, sess, transcript, events)
	if err != nil {
		_ = o.Store.UpdateSessionStatus(context.Background(), sess.ID, models.SessionFailed)
		events <- Event{Kind: EventFailed, SessionID: sess.ID, Err: err}
		return
	}

	events <- Event{Kind: EventCompleted, SessionID: sess.ID, Response: resp}
}

// loop implements spec §4.6 steps 2-3: iterate then terminate.
func (o *Orchestrator) loop(ctx context.Context, sess *models.RecursiveSession, transcript *models.CanonicalTranscript, events chan<- Event) (*models.ResponseObject, error) {
	maxIter := o.Config.MaxToolIterations
	if maxIter <= 0 {
		maxIter = DefaultConfig().MaxToolIterations
	}

	var lastText string
	status := models.ResponseCompleted
	var termErr error
	reachedIterationCap := true

	for iteration := 0; iteration < maxIter; iteration++ {
		now := time.Now()
		if sess.Expired(now) {
			termErr = models.NewGatewayError(models.ErrorDeadlineExceeded, "session deadline exceeded")
			status = models.ResponseFailed
			break
		}
		select {
		case <-ctx.Done():
			termErr = models.NewGatewayError(models.ErrorCancelled, "request cancelled")
			status = models.ResponseCancelled
			goto terminate
		default:
		}

		step := &models.Step{Index: len(transcript.Steps), StartedAt: now}

		text, intent, genErr := o.generate(ctx, sess, transcript, events)
		if genErr != nil {
			termErr = genErr
			status = models.ResponseFailed
			break
		}
		step.GeneratorOutput = text
		step.ToolIntent = intent
		lastText = text

		if intent == "" {
			step.FinishedAt = time.Now()
			if err := o.Store.AppendStep(ctx, sess.ID, step); err != nil {
				termErr = err
				status = models.ResponseFailed
				break
			}
			if err := o.Store.FinalizeStep(ctx, sess.ID, step.Index, step.FinishedAt); err != nil {
				termErr = err
				status = models.ResponseFailed
				break
			}
			transcript.Steps = append(transcript.Steps, *step)
			reachedIterationCap = false
			break
		}

		compactCtx := buildCompactContext(transcript, o.Config.CompactContext)
		calls, compileErr := o.Compiler.Compile(ctx, intent, compactCtx)
		if compileErr != nil {
			termErr = compileErr
			status = models.ResponseFailed
			break
		}

		if len(calls) == 0 {
			// Edge case (iii): recorded internally, loop terminates without
			// surfacing EmptyCompilation to the client.
			step.FinishedAt = time.Now()
			if err := o.Store.AppendStep(ctx, sess.ID, step); err != nil {
				termErr = err
				status = models.ResponseFailed
				break
			}
			_ = o.Store.FinalizeStep(ctx, sess.ID, step.Index, step.FinishedAt)
			transcript.Steps = append(transcript.Steps, *step)
			reachedIterationCap = false
			break
		}

		events <- Event{Kind: EventToolPhaseStarted, SessionID: sess.ID}

		toolCalls := make([]models.ToolCall, len(calls))
		for i, c := range calls {
			toolCalls[i] = models.ToolCall{
				ID:         uuid.NewString(),
				SessionID:  sess.ID,
				StepIndex:  step.Index,
				Tool:       c.Tool,
				Parameters: c.Parameters,
			}
		}
		step.ToolCalls = toolCalls

		results := o.executeCalls(ctx, sess, step.Index, toolCalls)
		step.ToolResults = results
		step.FinishedAt = time.Now()

		events <- Event{Kind: EventToolPhaseDone, SessionID: sess.ID}

		if err := o.Store.AppendStep(ctx, sess.ID, step); err != nil {
			termErr = err
			status = models.ResponseFailed
			break
		}
		if err := o.Store.FinalizeStep(ctx, sess.ID, step.Index, step.FinishedAt); err != nil {
			termErr = err
			status = models.ResponseFailed
			break
		}
		transcript.Steps = append(transcript.Steps, *step)
	}

	if termErr == nil && status == models.ResponseCompleted && reachedIterationCap {
		// Iteration cap reached (spec §4.6 step 3): completed, with a final
		// synthetic terminal step containing no further calls.
		synthetic := &models.Step{
			Index:      len(transcript.Steps),
			StartedAt:  time.Now(),
			FinishedAt: time.Now(),
		}
		if err := o.Store.AppendStep(ctx, sess.ID, synthetic); err == nil {
			_ = o.Store.FinalizeStep(ctx, sess.ID, synthetic.Index, synthetic.FinishedAt)
			transcript.Steps = append(transcript.Steps, *synthetic)
		}
	}

terminate:
	finalStatus := models.SessionCompleted
	if status == models.ResponseFailed {
		finalStatus = models.SessionFailed
	} else if status == models.ResponseCancelled {
		finalStatus = models.SessionCancelled
	}
	_ = o.Store.UpdateSessionStatus(context.Background(), sess.ID, finalStatus)

	if termErr != nil {
		return nil, termErr
	}

	resp := &models.ResponseObject{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Model:     o.Config.Model,
		Status:    status,
		TenantID:  sess.TenantID,
		SessionID: sess.ID,
		Output: []models.OutputMessage{{
			Type: "message",
			Role: "assistant",
			Content: []models.ContentPart{{
				Type: "output_text",
				Text: rlm.SanitizeForClient(lastText),
			}},
		}},
	}
	if err := o.Store.PersistResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// generate invokes the RLM Engine over the current transcript, streaming
// text deltas out and returning the parsed (text, intent) pair.
func (o *Orchestrator) generate(ctx context.Context, sess *models.RecursiveSession, transcript *models.CanonicalTranscript, events chan<- Event) (string, string, error) {
	system := rlm.BuildSystemPrompt(transcript.System, o.Registry.Schemas())

	messages := []backend.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: transcript.UserText()},
	}
	for _, step := range transcript.Steps {
		if step.GeneratorOutput != "" {
			messages = append(messages, backend.Message{Role: "assistant", Content: step.GeneratorOutput})
		}
		if len(step.ToolResults) > 0 {
			messages = append(messages, backend.Message{Role: "user", Content: summarizeToolResults(step.ToolResults)})
		}
	}

	chunks, err := o.Backend.Stream(ctx, backend.Request{
		Model:    o.Config.Model,
		Messages: messages,
		Deadline: sess.DeadlineAt,
	})
	if err != nil {
		return "", "", models.NewGatewayError(models.ErrorUpstream, err.Error())
	}

	var raw string
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", "", models.NewGatewayError(models.ErrorUpstream, chunk.Err.Error())
		}
		if chunk.Delta != "" {
			raw += chunk.Delta
			events <- Event{Kind: EventTextDelta, SessionID: sess.ID, Text: chunk.Delta}
		}
	}
	events <- Event{Kind: EventTextDone, SessionID: sess.ID}

	parsed := rlm.Parse(raw)
	return parsed.Text, parsed.Intent, nil
}

// summarizeToolResults renders a step's tool results as a plain-text message
// the generator can observe on the next iteration (spec §4.6 edge case v: "a
// single tool failure does not abort the step... the next iteration observes
// them").
func summarizeToolResults(results []models.ToolResult) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for _, r := range results {
		status := "ok"
		if !r.OK {
			status = "error: " + string(r.ErrorKind)
		}
		fmt.Fprintf(&b, "- %s: %s\n", status, r.Output)
	}
	return b.String()
}

// buildCompactContext resolves the spec §9 open question: system (if any) +
// the original user input + the last MaxSteps steps' generator_output
// values, each truncated to StepBytes, total capped at MaxBytes.
func buildCompactContext(transcript *models.CanonicalTranscript, cfg CompactContextConfig) string {
	out := transcript.System
	if out != "" {
		out += "\n"
	}
	out += transcript.UserText()

	steps := transcript.Steps
	if cfg.MaxSteps > 0 && len(steps) > cfg.MaxSteps {
		steps = steps[len(steps)-cfg.MaxSteps:]
	}
	for _, s := range steps {
		text := s.GeneratorOutput
		if cfg.StepBytes > 0 && len(text) > cfg.StepBytes {
			text = text[:cfg.StepBytes]
		}
		out += "\n" + text
	}

	if cfg.MaxBytes > 0 && len(out) > cfg.MaxBytes {
		out = out[len(out)-cfg.MaxBytes:]
	}
	return out
}
