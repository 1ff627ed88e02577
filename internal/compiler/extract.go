package compiler

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSONObject tolerantly pulls a JSON object out of a model response:
// the raw body if it parses as-is, the contents of a single top-level code
// fence, or the first balanced {...} substring — in that order, per spec
// §4.4.
func extractJSONObject(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)

	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	if fenced, ok := extractFence(trimmed); ok {
		fenced = strings.TrimSpace(fenced)
		if json.Valid([]byte(fenced)) {
			return json.RawMessage(fenced), nil
		}
	}

	if balanced, ok := extractBalancedObject(trimmed); ok {
		return json.RawMessage(balanced), nil
	}

	return nil, fmt.Errorf("no valid JSON object found in compiler output")
}

// extractFence returns the contents of the first ``` fenced block, if any.
func extractFence(s string) (string, bool) {
	const fence = "```"
	start := strings.Index(s, fence)
	if start == -1 {
		return "", false
	}
	rest := s[start+len(fence):]
	// Skip an optional language tag on the opening fence line.
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := rest[:nl]
		if !strings.ContainsAny(firstLine, "{}[]\"") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return rest[:end], true
}

// extractBalancedObject returns the first top-level balanced {...}
// substring, respecting string literals and escapes.
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
