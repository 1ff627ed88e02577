package tools

import (
	"encoding/json"

	"github.com/silverfisk/rants/internal/models"
)

// BatchToolName and TaskToolName name the two orchestrator-handled
// recursion primitives. They are registry-visible (so the Tool Compiler
// can target them) but the orchestrator intercepts calls to these names
// before they ever reach Registry.Execute — see spec §4.6.
const (
	BatchToolName = "batch"
	TaskToolName  = "task"
)

// BatchSchemaTool is the schema-only placeholder for "batch": the
// orchestrator runs its declared child calls concurrently and joins.
type BatchSchemaTool struct{}

func (BatchSchemaTool) Name() string { return BatchToolName }
func (BatchSchemaTool) Description() string {
	return "Run multiple tool calls concurrently and wait for all to finish."
}
func (BatchSchemaTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"calls": map[string]any{
				"type":        "array",
				"description": "Ordered list of {tool, parameters} calls to run concurrently.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"tool":       map[string]any{"type": "string"},
						"parameters": map[string]any{"type": "object"},
					},
					"required": []string{"tool", "parameters"},
				},
			},
		},
		"required": []string{"calls"},
	}
	payload, _ := json.Marshal(schema)
	return payload
}
func (BatchSchemaTool) Execute(*ExecContext, json.RawMessage) (*models.ToolResult, error) {
	return toolError(models.ToolErrExecution, "batch is orchestrator-handled and must not reach the registry"), nil
}

// TaskSchemaTool is the schema-only placeholder for "task": the orchestrator
// spawns a child RecursiveSession and returns its condensed summary.
type TaskSchemaTool struct{}

func (TaskSchemaTool) Name() string { return TaskToolName }
func (TaskSchemaTool) Description() string {
	return "Recurse: run a sub-session over the given input and return a summary of its result."
}
func (TaskSchemaTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "The input to run the child session over.",
			},
		},
		"required": []string{"input"},
	}
	payload, _ := json.Marshal(schema)
	return payload
}
func (TaskSchemaTool) Execute(*ExecContext, json.RawMessage) (*models.ToolResult, error) {
	return toolError(models.ToolErrExecution, "task is orchestrator-handled and must not reach the registry"), nil
}
