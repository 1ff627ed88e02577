// Package rlm implements the RLM Engine (spec §4.5): it builds the
// generator's system prompt enforcing the plain-text-then-TOOL_INTENT
// output contract, and parses generator output back into (user_text,
// tool_intent). Grounded structurally on the teacher's prompt-assembly
// helpers in internal/agent/runtime.go, rewritten for the two-model
// contract instead of native tool-calling.
package rlm

import (
	"fmt"
	"strings"

	"github.com/silverfisk/rants/internal/tools"
)

const outputContract = `You are a helpful assistant. Follow this output contract exactly:
1. Emit user-facing text only. Never show tool call JSON, schemas, parameter names, or internal reasoning.
2. When you need a tool, end your output with exactly one line: "TOOL_INTENT: <plain-English description of what you need>".
3. If no tool is needed, end your output normally with no TOOL_INTENT line.`

// BuildSystemPrompt composes the generator's system prompt: the output
// contract, the caller-supplied system text (if any), and a brief tool
// listing with a tool_choice hint.
func BuildSystemPrompt(userSystem string, schemas []tools.ToolSchema) string {
	var b strings.Builder
	b.WriteString(outputContract)
	if userSystem != "" {
		b.WriteString("\n\n")
		b.WriteString(userSystem)
	}
	if len(schemas) > 0 {
		b.WriteString("\n\navailable_tools:\n")
		for _, s := range schemas {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		}
		b.WriteString("tool_choice: auto — only request a tool when the task genuinely requires one.")
	}
	return b.String()
}
