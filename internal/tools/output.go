package tools

import "encoding/json"

// DefaultMaxOutputBytes is the default per-tool output cap (spec §4.2:
// "cap output to a configured byte limit").
const DefaultMaxOutputBytes = 64 * 1024

// capOutput truncates content to maxBytes, returning the JSON-encoded
// (possibly shortened) string and the number of bytes dropped. A truncation marker is appended so callers can tell a
// truncated result from a naturally short one.
func capOutput(content string, maxBytes int) (json.RawMessage, int) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	if len(content) <= maxBytes {
		out, _ := json.Marshal(content)
		return out, 0
	}
	truncated := len(content) - maxBytes
	marker := "\n…[truncated]"
	kept := content[:maxBytes]
	out, _ := json.Marshal(kept + marker)
	return out, truncated
}
