// Package compiler implements the Tool Compiler (spec §4.4): it turns a
// plain-English tool intent plus the registry's schemas and a compact
// transcript context into a validated tool_calls array, via a dedicated
// low-temperature invocation of the Model Backend Port.
package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

const systemPrompt = `Return JSON only. Schema: {"tool_calls": [{"tool": <name>, "parameters": <object>}, ...]}. No prose, no code fences.`

// CompiledCall is a validated, registry-checked tool call awaiting
// persistence as a models.ToolCall.
type CompiledCall struct {
	Tool       string
	Parameters json.RawMessage
}

// Compiler invokes a backend at temperature 0 to turn tool intent into
// validated calls, with one repair attempt on parse or validation failure.
type Compiler struct {
	Backend  backend.Backend
	Model    string
	Registry *tools.Registry
}

// New returns a Compiler bound to the given backend, model name, and
// registry.
func New(b backend.Backend, model string, reg *tools.Registry) *Compiler {
	return &Compiler{Backend: b, Model: model, Registry: reg}
}

// Compile turns intent into a validated []CompiledCall, or a
// *models.GatewayError with Kind == models.ErrorToolCompile after the single
// repair attempt also fails.
func (c *Compiler) Compile(ctx context.Context, intent, compactContext string) ([]CompiledCall, error) {
	schemas := c.Registry.Schemas()

	userMsg := buildUserMessage(schemas, compactContext, intent)
	messages := []backend.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMsg},
	}

	result, err := c.Backend.Complete(ctx, backend.Request{
		Model:       c.Model,
		Messages:    messages,
		Temperature: 0,
	})
	if err != nil {
		return nil, models.NewGatewayError(models.ErrorUpstream, err.Error())
	}

	calls, parseErr := c.parseAndValidate(result.Text)
	if parseErr == nil {
		return calls, nil
	}

	// Repair: one additional turn carrying the prior output and the error.
	repairMessages := append(messages,
		backend.Message{Role: "assistant", Content: result.Text},
		backend.Message{Role: "user", Content: fmt.Sprintf(
			"Your previous output was invalid: %s\n\nPrevious output:\n%s\n\nReturn corrected JSON only, following the schema exactly.",
			parseErr.Error(), result.Text,
		)},
	)
	retryResult, err := c.Backend.Complete(ctx, backend.Request{
		Model:       c.Model,
		Messages:    repairMessages,
		Temperature: 0,
	})
	if err != nil {
		return nil, models.NewGatewayError(models.ErrorUpstream, err.Error())
	}

	calls, parseErr = c.parseAndValidate(retryResult.Text)
	if parseErr != nil {
		return nil, models.NewGatewayError(models.ErrorToolCompile, parseErr.Error())
	}
	return calls, nil
}

func buildUserMessage(schemas []tools.ToolSchema, compactContext, intent string) string {
	schemaJSON, _ := json.Marshal(schemas)
	return fmt.Sprintf(
		"Available tools (name, description, parameters JSON Schema):\n%s\n\nContext:\n%s\n\nIntent:\n%s",
		schemaJSON, compactContext, intent,
	)
}

type compiledOutput struct {
	ToolCalls []struct {
		Tool       string          `json:"tool"`
		Parameters json.RawMessage `json:"parameters"`
	} `json:"tool_calls"`
}

// parseAndValidate extracts a JSON object from raw (tolerating a raw body, a
// single top-level code fence, or the first balanced JSON object), then
// validates tool_calls against the registry.
func (c *Compiler) parseAndValidate(raw string) ([]CompiledCall, error) {
	candidate, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var out compiledOutput
	if err := json.Unmarshal(candidate, &out); err != nil {
		return nil, fmt.Errorf("invalid tool_calls json: %w", err)
	}

	calls := make([]CompiledCall, 0, len(out.ToolCalls))
	for i, raw := range out.ToolCalls {
		if raw.Tool == "" {
			return nil, fmt.Errorf("tool_calls[%d]: missing tool name", i)
		}
		t, ok := c.Registry.Get(raw.Tool)
		if !ok {
			return nil, fmt.Errorf("tool_calls[%d]: unknown tool %q", i, raw.Tool)
		}

		params := raw.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{}`)
		}
		if err := validateAgainstSchema(t.Schema(), params); err != nil {
			return nil, fmt.Errorf("tool_calls[%d]: %w", i, err)
		}

		calls = append(calls, CompiledCall{Tool: raw.Tool, Parameters: params})
	}
	return calls, nil
}

func validateAgainstSchema(schema json.RawMessage, params json.RawMessage) error {
	compiled, err := jsonschema.CompileString("tool.schema.json", string(schema))
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("parameters invalid: %w", err)
	}
	return nil
}
