package rlm

import (
	"regexp"
	"strings"
)

// intentLine matches a TOOL_INTENT line per spec §4.5: ^TOOL_INTENT:\s*(.+)$.
var intentLine = regexp.MustCompile(`(?m)^TOOL_INTENT:\s*(.+)$`)

// Parsed is the result of splitting one generator output into its
// user-visible text and optional tool intent.
type Parsed struct {
	Text      string
	Intent    string
	HasIntent bool
}

// Parse splits raw generator output on the *last* line matching the
// TOOL_INTENT pattern. Everything before that line is the user-visible
// text; the captured group is the intent. If no line matches, the whole
// output is text and HasIntent is false.
func Parse(raw string) Parsed {
	matches := intentLine.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return Parsed{Text: raw}
	}

	last := matches[len(matches)-1]
	lineStart := last[0]
	captureStart, captureEnd := last[2], last[3]

	text := raw[:lineStart]
	// Drop the trailing newline that separated text from the intent line.
	text = strings.TrimSuffix(text, "\n")

	return Parsed{
		Text:      text,
		Intent:    strings.TrimSpace(raw[captureStart:captureEnd]),
		HasIntent: true,
	}
}

// SanitizeForClient strips any remaining TOOL_INTENT-looking line from text
// before it reaches a client. Only the last such line in raw output is ever
// a real intent (see Parse); any earlier ones are defensively scrubbed here
// per spec §4.6 edge case (ii) so the gateway never leaks one verbatim.
func SanitizeForClient(text string) string {
	return intentLine.ReplaceAllString(text, "")
}
