// Package httpapi implements the HTTP Surface (spec §4.8, §6): the
// /v1/responses and /v1/chat/completions endpoints, request validation,
// auth/tenant resolution, rate limiting, and error mapping. Grounded on
// the teacher's internal/gateway.startHTTPServer composition (explicit
// net/http.ServeMux registrations, /healthz, /metrics via
// promhttp.Handler()) and internal/web.AuthMiddleware for the functional
// auth wrapper.
package httpapi

import "encoding/json"

// ResponsesRequest is the recognized shape of a POST /v1/responses body
// (spec §6). Unrecognized fields are silently ignored by json.Decode's
// default behavior (no DisallowUnknownFields).
type ResponsesRequest struct {
	Model              string          `json:"model"`
	Input              json.RawMessage `json:"input"`
	Tools              json.RawMessage `json:"tools,omitempty"`
	ToolChoice         json.RawMessage `json:"tool_choice,omitempty"`
	Stream             bool            `json:"stream"`
	MaxOutputTokens    int             `json:"max_output_tokens,omitempty"`
	Temperature        float64         `json:"temperature,omitempty"`
	PreviousResponseID string          `json:"previous_response_id,omitempty"`
}

// inputMessage is one entry of an array-form `input` field.
type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMessage is one entry of a /v1/chat/completions `messages` array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionsRequest is the recognized shape of a POST
// /v1/chat/completions body (spec §6).
type ChatCompletionsRequest struct {
	Model       string          `json:"model"`
	Messages    []ChatMessage   `json:"messages"`
	Tools       json.RawMessage `json:"tools,omitempty"`
	ToolChoice  json.RawMessage `json:"tool_choice,omitempty"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

// hasTools reports whether the request carries a non-empty tools array,
// the trigger for chat-completions shim mode (spec §4.8).
func (r *ChatCompletionsRequest) hasTools() bool {
	if len(r.Tools) == 0 {
		return false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(r.Tools, &arr); err != nil {
		return false
	}
	return len(arr) > 0
}

// chatCompletionMessage is the non-streaming chat.completion message
// shape.
type chatCompletionMessage struct {
	Role      string        `json:"role"`
	Content   string        `json:"content,omitempty"`
	ToolCalls []toolCallOut `json:"tool_calls,omitempty"`
}

type toolCallOut struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatCompletionChoice struct {
	Index        int                   `json:"index"`
	Message      chatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

// chatCompletionResponse is the non-streaming /v1/chat/completions
// response body.
type chatCompletionResponse struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Model   string                  `json:"model"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   usageOut                `json:"usage"`
}

type usageOut struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// modelsListResponse is the body of GET /v1/models.
type modelsListResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Backends map[string]string `json:"backends"`
}
