// Package backend implements the Model Backend Port (spec §4.3): a uniform
// request/stream abstraction over upstream OpenAI-compatible HTTP
// endpoints, with timeouts and retries. A generic net/http JSON client is
// used here rather than a vendor SDK (anthropic-sdk-go, openai-go) because
// this port must speak to an arbitrary operator-configured base_url, not
// one vendor's wire format — see DESIGN.md.
package backend

import (
	"context"
	"time"
)

// Message is one normalized conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries every parameter of one completion call.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Deadline    time.Time `json:"-"`
}

// Result is the outcome of a non-streaming Complete call.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Chunk is one unit of a streamed completion. Done is set on the final
// chunk (possibly with Err set if the stream failed mid-flight).
type Chunk struct {
	Delta string
	Done  bool
	Err   error
}

// Backend is the C3 port: a uniform abstraction over an upstream
// OpenAI-compatible model endpoint.
type Backend interface {
	// Complete performs a non-streaming completion, used by the tool
	// compiler and by non-streaming HTTP requests.
	Complete(ctx context.Context, req Request) (*Result, error)

	// Stream performs a streaming completion, used for user-facing
	// generator output. The returned channel is closed after the final
	// Chunk (Done == true) is sent.
	Stream(ctx context.Context, req Request) (<-chan Chunk, error)
}
