package stream

import (
	"net/http"

	"github.com/silverfisk/rants/internal/compiler"
	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/orchestrator"
)

// ChatToolCall is one entry of a chat.completion(.chunk) message's
// tool_calls array, the OpenAI function-calling wire shape (spec §6).
type ChatToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolCallsFromCompiled renders compiled tool calls into the OpenAI
// tool_calls wire shape, used by the /v1/chat/completions shim (spec
// §4.8 scenario 3).
func ToolCallsFromCompiled(calls []compiler.CompiledCall, idPrefix string) []ChatToolCall {
	out := make([]ChatToolCall, len(calls))
	for i, c := range calls {
		tc := ChatToolCall{ID: idSuffix(idPrefix, i), Type: "function"}
		tc.Function.Name = c.Tool
		tc.Function.Arguments = string(c.Parameters)
		out[i] = tc
	}
	return out
}

func idSuffix(prefix string, i int) string {
	return prefix + "-" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := [20]byte{}
	pos := len(digits)
	for i > 0 {
		pos--
		digits[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(digits[pos:])
}

type chatDelta struct {
	Role      string         `json:"role,omitempty"`
	Content   string         `json:"content,omitempty"`
	ToolCalls []ChatToolCall `json:"tool_calls,omitempty"`
}

type chatChoiceChunk struct {
	Index        int        `json:"index"`
	Delta        chatDelta  `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

type chatCompletionChunk struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []chatChoiceChunk `json:"choices"`
}

// ChatSSEWriter renders orchestrator events as /v1/chat/completions
// chat.completion.chunk SSE frames, applying the same TOOL_INTENT
// lookahead buffer as the /v1/responses dialect.
type ChatSSEWriter struct {
	sw    *sseWriter
	id    string
	model string
	sent  bool
}

// NewChatSSEWriter opens the SSE stream and writes the first role-bearing
// delta chunk, per the OpenAI chat.completion.chunk convention.
func NewChatSSEWriter(w http.ResponseWriter, id, model string) (*ChatSSEWriter, error) {
	sw, err := newSSEWriter(w)
	if err != nil {
		return nil, err
	}
	c := &ChatSSEWriter{sw: sw, id: id, model: model}
	c.writeChunk(chatDelta{Role: "assistant"}, nil)
	return c, nil
}

// DeltaOutcome captures what a full Recursive Session loop resolved to,
// observed while streaming its deltas.
type DeltaOutcome struct {
	Response *models.ResponseObject
	Err      error
}

// StreamDeltas ranges over events, flushing lookahead-buffered text
// content chunks as they arrive, until the channel closes. It returns
// whatever terminal EventCompleted/EventFailed it observed (set only when
// events comes from a full orchestrator.Run loop; the shim's
// RunShimStep never emits those).
func (c *ChatSSEWriter) StreamDeltas(events <-chan orchestrator.Event) DeltaOutcome {
	var outcome DeltaOutcome
	lb := newLookaheadBuffer(func(chunk string) {
		c.writeChunk(chatDelta{Content: chunk}, nil)
	})
	for event := range events {
		switch event.Kind {
		case orchestrator.EventTextDelta:
			lb.Write(event.Text)
		case orchestrator.EventTextDone:
			lb.Close()
		case orchestrator.EventCompleted:
			outcome.Response = event.Response
		case orchestrator.EventFailed:
			outcome.Err = event.Err
		}
	}
	return outcome
}

// Finish emits the terminal chunk (finish_reason = "stop" or
// "tool_calls") and the closing [DONE] frame.
func (c *ChatSSEWriter) Finish(finishReason string, toolCalls []ChatToolCall) {
	reason := finishReason
	c.writeChunk(chatDelta{ToolCalls: toolCalls}, &reason)
	c.sw.buf.WriteString("data: [DONE]\n\n")
	c.sw.buf.Flush()
	c.sw.flusher.Flush()
}

// Fail emits a response.failed-equivalent error frame for the chat
// dialect, since OpenAI's SSE format has no dedicated error event.
func (c *ChatSSEWriter) Fail(err error) {
	c.sw.send("error", map[string]any{"error": errorPayload(err)})
}

func (c *ChatSSEWriter) writeChunk(delta chatDelta, finishReason *string) {
	chunk := chatCompletionChunk{
		ID:     c.id,
		Object: "chat.completion.chunk",
		Model:  c.model,
		Choices: []chatChoiceChunk{{
			Index:        0,
			Delta:        delta,
			FinishReason: finishReason,
		}},
	}
	c.sw.buf.WriteString("data: " + marshalOrEmpty(chunk) + "\n\n")
	c.sw.buf.Flush()
	c.sw.flusher.Flush()
}
