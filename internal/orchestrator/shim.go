package orchestrator

import (
	"context"

	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/models"
)

// ShimResult is the outcome of one shim-mode generation step (spec §4.8):
// exactly one generate + optional compile, with no tool execution.
type ShimResult struct {
	Text      string
	ToolCalls []compiler.CompiledCall
}

// RunShimStep executes steps (a)-(e) of the Recursive Session loop exactly
// once, for the /v1/chat/completions tool-calling shim: generate, parse,
// and — if a tool intent was produced — compile it into validated
// tool_calls, but never execute them (spec §4.8: "no further tool
// execution happens"). Events are forwarded on events the same way the
// full loop does, so both the streaming and non-streaming shim paths can
// share the lookahead-buffered text rendering in internal/stream.
func (o *Orchestrator) RunShimStep(ctx context.Context, sess *models.RecursiveSession, transcript *models.CanonicalTranscript, events chan<- Event) (*ShimResult, error) {
	text, intent, err := o.generate(ctx, sess, transcript, events)
	if err != nil {
		return nil, err
	}
	if intent == "" {
		return &ShimResult{Text: text}, nil
	}

	compactCtx := buildCompactContext(transcript, o.Config.CompactContext)
	calls, err := o.Compiler.Compile(ctx, intent, compactCtx)
	if err != nil {
		return nil, err
	}
	return &ShimResult{Text: text, ToolCalls: calls}, nil
}
