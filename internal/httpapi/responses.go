package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/orchestrator"
	"github.com/silverfisk/rants/internal/stream"
)

// handleResponses serves POST /v1/responses (spec §4.8 scenario 1/2): it
// opens a new session, runs the full Recursive Session loop, and renders
// the result either as the /v1/responses SSE dialect or as a single JSON
// ResponseObject.
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	var req ResponsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, "malformed request body: "+err.Error()), http.StatusBadRequest)
		return
	}
	if req.Model != "" && req.Model != s.ModelName {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, "unknown model id: "+req.Model), http.StatusBadRequest)
		return
	}

	inputParts, err := normalizeInput(req.Input)
	if err != nil {
		writeGatewayError(w, newKindError(models.ErrorBadRequest, err.Error()), http.StatusBadRequest)
		return
	}
	if !hasNonEmptyContent(inputParts) {
		writeGatewayError(w, errBadInput("input must not be empty"), http.StatusBadRequest)
		return
	}

	tenantID := tenantFromContext(r)
	transcript := &models.CanonicalTranscript{
		Input:            inputParts,
		ToolSchemaDigest: s.Registry.Digest(),
	}

	if req.PreviousResponseID != "" {
		if err := s.foldPreviousResponse(r.Context(), tenantID, req.PreviousResponseID, transcript); err != nil {
			writeGatewayError(w, err, http.StatusNotFound)
			return
		}
	}

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
		if err := stream.RunResponsesSSE(w, sess.ID, s.ModelName, events); err != nil {
			s.Logger.Warn("responses sse stream ended early", "error", err, "session_id", sess.ID)
		}
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
	writeJSON(w, http.StatusOK, final)
}

// normalizeInput accepts either a bare JSON string or an array of
// {role, content} objects for the `input` field (spec §6), producing the
// transcript's normalized InputPart list.
func normalizeInput(raw json.RawMessage) ([]models.InputPart, error) {
	if len(raw) == 0 {
		return nil, errBadInput("input is required")
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return []models.InputPart{{Role: "user", Content: asString}}, nil
	}

	var asArray []inputMessage
	if err := json.Unmarshal(raw, &asArray); err != nil {
		return nil, errBadInput("input must be a string or an array of {role, content} objects")
	}
	parts := make([]models.InputPart, len(asArray))
	for i, m := range asArray {
		role := m.Role
		if role == "" {
			role = "user"
		}
		parts[i] = models.InputPart{Role: role, Content: m.Content}
	}
	return parts, nil
}

func errBadInput(msg string) error {
	return models.NewGatewayError(models.ErrorBadRequest, msg)
}

// hasNonEmptyContent reports whether any input part carries non-whitespace
// content, the spec §8 boundary behavior "Empty user input → BadRequest".
func hasNonEmptyContent(parts []models.InputPart) bool {
	for _, p := range parts {
		if strings.TrimSpace(p.Content) != "" {
			return true
		}
	}
	return false
}

// foldPreviousResponse resolves previous_response_id into the prior
// session's transcript and prepends a rendered history to transcript.Input.
// Sessions are immutable once terminated (models.RecursiveSession doc
// comment), so continuation opens a brand new session rather than
// reopening the old one; see DESIGN.md for this decision.
func (s *Server) foldPreviousResponse(ctx context.Context, tenantID, previousResponseID string, transcript *models.CanonicalTranscript) error {
	prior, err := s.Store.LookupResponse(ctx, previousResponseID, tenantID)
	if err != nil {
		return wrapStoreNotFound(err)
	}

	_, priorTranscript, err := s.Store.LoadSession(ctx, prior.SessionID, tenantID)
	if err != nil {
		return wrapStoreNotFound(err)
	}

	rendered := renderTranscriptHistory(priorTranscript)
	history := models.InputPart{Role: "user", Content: rendered}
	transcript.Input = append([]models.InputPart{history}, transcript.Input...)
	transcript.System = priorTranscript.System
	return nil
}

func renderTranscriptHistory(t *models.CanonicalTranscript) string {
	out := "Prior conversation:\n" + t.UserText()
	for _, step := range t.Steps {
		if step.GeneratorOutput != "" {
			out += "\nassistant: " + step.GeneratorOutput
		}
	}
	return out
}
