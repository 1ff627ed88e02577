package stream

import (
	"encoding/json"

	"github.com/silverfisk/rants/internal/models"
)

func marshalOrEmpty(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// errorPayload reduces err to the {kind, message} shape carried in
// response.failed / chat error bodies, unwrapping a *models.GatewayError
// when present so the client sees the taxonomy kind from spec §7.
func errorPayload(err error) map[string]string {
	if err == nil {
		return map[string]string{"message": "unknown error"}
	}
	if ge, ok := models.AsGatewayError(err); ok {
		return map[string]string{"kind": string(ge.Kind), "message": ge.Message}
	}
	return map[string]string{"message": err.Error()}
}
