package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/orchestrator"
	"github.com/silverfisk/rants/internal/stream"
)

// handleChatCompletions serves POST /v1/chat/completions (spec §4.8). A
// request carrying a non-empty tools[] array is routed to the one-shot
// compiler shim (scenario 3: generate, optionally compile, never execute,
// never persisted — spec §9's resolved open question treats messages[] as
// the full ground truth for that turn). A tools-less request runs the full
// Recursive Session loop exactly like /v1/responses, persisted the same
// way.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req ChatCompletionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, "malformed request body: "+err.Error()), http.StatusBadRequest)
		return
	}
	if req.Model != "" && req.Model != s.ModelName {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, "unknown model id: "+req.Model), http.StatusBadRequest)
		return
	}
	if len(req.Messages) == 0 || !hasNonEmptyMessage(req.Messages) {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, "messages must contain non-empty content"), http.StatusBadRequest)
		return
	}

	tenantID := tenantFromContext(r)
	transcript := &models.CanonicalTranscript{
		Input:            []models.InputPart{{Role: "user", Content: renderChatHistory(req.Messages)}},
		ToolSchemaDigest: s.Registry.Digest(),
	}
	if system := systemFromMessages(req.Messages); system != "" {
		transcript.System = system
	}

	if req.hasTools() {
		s.handleChatShim(w, r, tenantID, transcript, req)
		return
	}
	s.handleChatFullLoop(w, r, tenantID, transcript, req)
}

// renderChatHistory folds a multi-turn messages[] array into a single
// rendered text block with role labels. This is a pragmatic simplification
// of the shim reconstruction ambiguity spec §9 leaves open: RANTS has no
// multi-message transcript input shape, so every non-system turn, the final
// one included, is flattened into this one block rather than represented
// structurally.
func renderChatHistory(messages []ChatMessage) string {
	out := ""
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}

func systemFromMessages(messages []ChatMessage) string {
	for _, m := range messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// hasNonEmptyMessage reports whether any non-system message carries
// non-whitespace content, the chat-completions side of spec §8's "Empty
// user input → BadRequest" boundary behavior.
func hasNonEmptyMessage(messages []ChatMessage) bool {
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		if strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// handleChatShim runs exactly one generate (+ optional compile) step with
// no persistence and no tool execution.
func (s *Server) handleChatShim(w http.ResponseWriter, r *http.Request, tenantID string, transcript *models.CanonicalTranscript, req ChatCompletionsRequest) {
	now := time.Now()
	sess := &models.RecursiveSession{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Depth:      0,
		CreatedAt:  now,
		DeadlineAt: now.Add(s.MaxWallclock),
		Status:     models.SessionRunning,
	}
	transcript.SessionID = sess.ID

	events := make(chan orchestrator.Event, 16)
	resultCh := make(chan shimOutcome, 1)
	go func() {
		defer close(events)
		res, err := s.Orchestrator.RunShimStep(r.Context(), sess, transcript, events)
		resultCh <- shimOutcome{result: res, err: err}
	}()

	if req.Stream {
		writer, err := stream.NewChatSSEWriter(w, sess.ID, s.ModelName)
		if err != nil {
			return
		}
		writer.StreamDeltas(events)
		shim := <-resultCh
		if shim.err != nil {
			writer.Fail(shim.err)
			return
		}
		if len(shim.result.ToolCalls) > 0 {
			writer.Finish("tool_calls", stream.ToolCallsFromCompiled(shim.result.ToolCalls, sess.ID))
		} else {
			writer.Finish("stop", nil)
		}
		return
	}

	for range events {
	}
	shim := <-resultCh
	if shim.err != nil {
		writeGatewayError(w, shim.err, http.StatusInternalServerError)
		return
	}

	finishReason := "stop"
	msg := chatCompletionMessage{Role: "assistant", Content: shim.result.Text}
	if len(shim.result.ToolCalls) > 0 {
		finishReason = "tool_calls"
		calls := stream.ToolCallsFromCompiled(shim.result.ToolCalls, sess.ID)
		msg.ToolCalls = make([]toolCallOut, len(calls))
		for i, c := range calls {
			msg.ToolCalls[i] = toolCallOut{ID: c.ID, Type: c.Type, Function: toolCallFunction{Name: c.Function.Name, Arguments: c.Function.Arguments}}
		}
		msg.Content = ""
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      sess.ID,
		Object:  "chat.completion",
		Model:   s.ModelName,
		Choices: []chatCompletionChoice{{Index: 0, Message: msg, FinishReason: finishReason}},
	})
}

type shimOutcome struct {
	result *orchestrator.ShimResult
	err    error
}

// handleChatFullLoop persists a session and runs the complete Recursive
// Session loop, the tools-less chat.completions path (spec §4.8 scenario
// 1, rendered in the chat dialect instead of the responses dialect).
func (s *Server) handleChatFullLoop(w http.ResponseWriter, r *http.Request, tenantID string, transcript *models.CanonicalTranscript, req ChatCompletionsRequest) {
	now := time.Now()
	sess := &models.RecursiveSession{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Depth:      0,
		CreatedAt:  now,
		DeadlineAt: now.Add(s.MaxWallclock),
		Status:     models.SessionRunning,
	}
	transcript.SessionID = sess.ID

	if err := s.Store.CreateSession(r.Context(), sess, transcript); err != nil {
		writeGatewayError(w, err, http.StatusInternalServerError)
		return
	}

	events := s.Orchestrator.Run(r.Context(), orchestrator.RunRequest{Session: sess, Transcript: transcript})

	if req.Stream {
		writer, err := stream.NewChatSSEWriter(w, sess.ID, s.ModelName)
		if err != nil {
			return
		}
		outcome := writer.StreamDeltas(events)
		if outcome.Err != nil {
			writer.Fail(outcome.Err)
			return
		}
		writer.Finish("stop", nil)
		return
	}

	var final *models.ResponseObject
	var runErr error
	for event := range events {
		switch event.Kind {
		case orchestrator.EventCompleted:
			final = event.Response
		case orchestrator.EventFailed:
			runErr = event.Err
		}
	}
	if runErr != nil {
		writeGatewayError(w, runErr, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:     sess.ID,
		Object: "chat.completion",
		Model:  s.ModelName,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      chatCompletionMessage{Role: "assistant", Content: final.Text()},
			FinishReason: "stop",
		}},
		Usage: usageOut{
			PromptTokens:     final.Usage.InputTokens,
			CompletionTokens: final.Usage.OutputTokens,
			TotalTokens:      final.Usage.TotalTokens,
		},
	})
}
