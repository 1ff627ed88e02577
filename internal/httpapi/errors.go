package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/silverfisk/rants/internal/models"
)

// statusForKind maps a models.ErrorKind to its HTTP status per spec §7's
// taxonomy table.
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorBadRequest:
		return http.StatusBadRequest
	case models.ErrorNotFound:
		return http.StatusNotFound
	case models.ErrorRateLimited:
		return http.StatusTooManyRequests
	case models.ErrorUpstream:
		return http.StatusBadGateway
	case models.ErrorToolCompile:
		return http.StatusUnprocessableEntity
	case models.ErrorSandboxViolation:
		return http.StatusForbidden
	case models.ErrorToolExec:
		return http.StatusUnprocessableEntity
	case models.ErrorDeadlineExceeded:
		return http.StatusGatewayTimeout
	case models.ErrorRecursionLimit:
		return http.StatusUnprocessableEntity
	case models.ErrorCancelled:
		return 499 // client closed request, nginx convention
	case models.ErrorConcurrentModify:
		return http.StatusConflict
	case models.ErrorEmptyCompilation:
		return http.StatusOK // never surfaced to the client per spec §4.6 edge case (iii)
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// wrapStoreNotFound converts the store's plain sentinel errors into
// *models.GatewayError with kind NotFound, so writeGatewayError maps them to
// 404 instead of falling into its generic internal-error branch. Store
// lookups are the only place these sentinels originate (store.go), so this
// is a no-op for every other error.
func wrapStoreNotFound(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrSessionNotFound) || errors.Is(err, models.ErrResponseNotFound) {
		return models.NewGatewayError(models.ErrorNotFound, err.Error())
	}
	return err
}

// writeGatewayError renders err as the standard error body, inferring its
// HTTP status from its ErrorKind when err is a *models.GatewayError, or a
// caller-supplied fallback status otherwise.
func writeGatewayError(w http.ResponseWriter, err error, fallbackStatus int) {
	err = wrapStoreNotFound(err)
	status := fallbackStatus
	var body errorBody
	if ge, ok := models.AsGatewayError(err); ok {
		status = statusForKind(ge.Kind)
		body.Error.Kind = string(ge.Kind)
		body.Error.Message = ge.Message
	} else {
		body.Error.Kind = string(models.ErrorInternal)
		body.Error.Message = err.Error()
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func newKindError(kind models.ErrorKind, message string) *models.GatewayError {
	return models.NewGatewayError(kind, message)
}

// writeKindStatus renders a structured error body with a caller-chosen
// status rather than the kind's usual statusForKind mapping. BadRequest is
// the one taxonomy entry with two valid client-visible statuses (spec §7:
// "400/401" — malformed body vs. auth failure), so callers that know which
// case they're in write it directly instead of going through
// writeGatewayError.
func writeKindStatus(w http.ResponseWriter, kind models.ErrorKind, message string, status int) {
	var body errorBody
	body.Error.Kind = string(kind)
	body.Error.Message = message
	writeJSON(w, status, body)
}
