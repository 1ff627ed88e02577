package httpapi

import "net/http"

// handleModels serves GET /v1/models, listing the single virtual model
// this gateway exposes (spec §6: rlm.rants_one.name), matching the
// OpenAI-compatible list shape clients expect.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modelsListResponse{
		Object: "list",
		Data: []modelInfo{
			{ID: s.ModelName, Object: "model", OwnedBy: "rants"},
		},
	})
}
