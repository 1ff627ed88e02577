// Package stream implements the Streaming Assembler (spec §4.7): it
// renders the orchestrator's internal event stream as either the
// /v1/responses SSE dialect or the /v1/chat/completions delta dialect,
// applying the TOOL_INTENT lookahead buffer so neither dialect ever leaks
// a tool-compilation artifact to the client. Grounded on the teacher's SSE
// writer idiom in internal/mcp/transport_http.go (Accept:
// text/event-stream, explicit Flush) and the general net/http streaming
// handler conventions used throughout the example pack's agent-loop files.
package stream

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"

	"github.com/silverfisk/rants/internal/orchestrator"
	"github.com/silverfisk/rants/internal/rlm"
)

// maxIntentLineBytes bounds the longest TOOL_INTENT line the lookahead
// buffer must withhold, per spec §9 ("Streaming lookahead"). A generous
// bound keeps the memory ceiling fixed without truncating legitimate
// intents.
const maxIntentLineBytes = 2048

// lookaheadSize is the rolling buffer's fixed capacity: enough trailing
// bytes to hold the longest possible partial match of "TOOL_INTENT:
// <...>" before a newline resolves it either way.
const lookaheadSize = len("TOOL_INTENT:") + maxIntentLineBytes

// intentPrefix is the literal marker that opens a TOOL_INTENT line; a
// partial line that is still a prefix of it (e.g. "TOOL_INT" read so far)
// may yet become one.
const intentPrefix = "TOOL_INTENT:"

// lookaheadBuffer withholds trailing bytes that might be the start of a
// "TOOL_INTENT:" line until a newline (or stream end) resolves whether
// they were or weren't, per spec §4.7 / §9.
type lookaheadBuffer struct {
	pending strings.Builder
	emit    func(string)
}

func newLookaheadBuffer(emit func(string)) *lookaheadBuffer {
	return &lookaheadBuffer{emit: emit}
}

// Write appends delta text and emits every complete line that is not a
// TOOL_INTENT line; the trailing partial line stays buffered (see drain).
func (b *lookaheadBuffer) Write(delta string) {
	b.pending.WriteString(delta)
	b.drain()
}

// Close flushes the buffer's final contents, stripping any trailing
// (possibly unterminated) TOOL_INTENT line before emitting.
func (b *lookaheadBuffer) Close() {
	remainder := stripTrailingIntentLine(b.pending.String())
	remainder = rlm.SanitizeForClient(remainder)
	if remainder != "" {
		b.emit(remainder)
	}
	b.pending.Reset()
}

// drain emits whole lines that can't possibly be a TOOL_INTENT line,
// keeping the trailing partial line buffered (it might still grow into
// one), bounded at lookaheadSize so memory use stays fixed per spec §9.
func (b *lookaheadBuffer) drain() {
	content := b.pending.String()
	idx := strings.LastIndexByte(content, '\n')
	if idx < 0 {
		// No complete line yet. The partial line is held until a newline
		// or Close resolves it, whether or not it is still a prefix of
		// "TOOL_INTENT:"; once it grows past the fixed lookahead bound,
		// everything but the last lookaheadSize bytes is flushed.
		if len(content) <= len(intentPrefix) && strings.HasPrefix(intentPrefix, content) {
			return
		}
		if len(content) > lookaheadSize {
			keep := lookaheadSize
			safe := content[:len(content)-keep]
			if safe != "" {
				b.emit(safe)
				b.pending.Reset()
				b.pending.WriteString(content[len(safe):])
			}
		}
		return
	}

	complete := content[:idx+1]
	rest := content[idx+1:]

	var flush strings.Builder
	for _, line := range strings.SplitAfter(complete, "\n") {
		if line == "" {
			continue
		}
		trimmed := strings.TrimSuffix(line, "\n")
		if strings.HasPrefix(trimmed, "TOOL_INTENT:") {
			continue // never flushed: this is the actual intent line.
		}
		flush.WriteString(line)
	}
	if flush.Len() > 0 {
		b.emit(flush.String())
	}
	b.pending.Reset()
	b.pending.WriteString(rest)
}

// stripTrailingIntentLine removes a final unterminated TOOL_INTENT line
// (no trailing newline) left over after the buffer's last Write.
func stripTrailingIntentLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		tail := s[idx+1:]
		if strings.HasPrefix(tail, "TOOL_INTENT:") {
			return s[:idx+1]
		}
		return s
	}
	if strings.HasPrefix(s, "TOOL_INTENT:") {
		return ""
	}
	return s
}

// sseWriter renders orchestrator.Event values as /v1/responses SSE frames
// onto an http.ResponseWriter, applying the lookahead buffer to every
// text delta.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	buf     *bufio.Writer
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, flusher: flusher, buf: bufio.NewWriter(w)}, nil
}

func (s *sseWriter) send(event string, payload any) {
	fmt.Fprintf(s.buf, "event: %s\n", event)
	fmt.Fprintf(s.buf, "data: %s\n\n", marshalOrEmpty(payload))
	s.buf.Flush()
	s.flusher.Flush()
}

// RunResponsesSSE consumes events and writes the /v1/responses SSE dialect
// to w: response.created, zero-or-more response.output_text.delta,
// response.output_text.done, then response.completed or response.failed.
// No response.reasoning.* events are ever emitted, per spec §6.
func RunResponsesSSE(w http.ResponseWriter, responseID, model string, events <-chan orchestrator.Event) error {
	sw, err := newSSEWriter(w)
	if err != nil {
		return err
	}

	sw.send("response.created", map[string]any{
		"id": responseID, "model": model, "status": "in_progress",
	})

	lb := newLookaheadBuffer(func(chunk string) {
		sw.send("response.output_text.delta", map[string]string{"delta": chunk})
	})

	for event := range events {
		switch event.Kind {
		case orchestrator.EventTextDelta:
			lb.Write(event.Text)
		case orchestrator.EventTextDone:
			lb.Close()
			sw.send("response.output_text.done", map[string]any{})
		case orchestrator.EventCompleted:
			sw.send("response.completed", event.Response)
		case orchestrator.EventFailed:
			sw.send("response.failed", map[string]any{"error": errorPayload(event.Err)})
		}
	}
	return nil
}
