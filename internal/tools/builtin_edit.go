package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/silverfisk/rants/internal/models"
)

// EditTool performs a find/replace edit against a file under the workspace
// root, creating the file if it does not yet exist and find is empty.
type EditTool struct {
	MaxOutputBytes int
}

func (t *EditTool) Name() string { return "edit" }
func (t *EditTool) Description() string {
	return "Replace the first occurrence of `find` with `replace` in a workspace file."
}

func (t *EditTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root.",
			},
			"find": map[string]any{
				"type":        "string",
				"description": "Exact substring to replace. Empty means create/overwrite with `replace`.",
			},
			"replace": map[string]any{
				"type":        "string",
				"description": "Replacement text.",
			},
		},
		"required": []string{"path", "replace"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *EditTool) Execute(ectx *ExecContext, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path    string `json:"path"`
		Find    string `json:"find"`
		Replace string `json:"replace"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(models.ToolErrExecution, fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	path := strings.TrimSpace(input.Path)
	if path == "" {
		return toolError(models.ToolErrExecution, "path is required"), nil
	}

	resolved, err := ResolvePath(ectx.WorkspaceRoot, path)
	if err != nil {
		return toolError(models.ToolErrSandboxViolation, err.Error()), nil
	}

	var existing string
	if data, readErr := os.ReadFile(resolved); readErr == nil {
		existing = string(data)
	} else if !os.IsNotExist(readErr) {
		return toolError(models.ToolErrExecution, readErr.Error()), nil
	}

	var updated string
	if input.Find == "" {
		updated = input.Replace
	} else if idx := strings.Index(existing, input.Find); idx >= 0 {
		updated = existing[:idx] + input.Replace + existing[idx+len(input.Find):]
	} else {
		return toolError(models.ToolErrExecution, "find text not present in file"), nil
	}

	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return toolError(models.ToolErrExecution, err.Error()), nil
	}

	output, truncated := capOutput(fmt.Sprintf("wrote %d bytes to %s", len(updated), path), t.maxBytes())
	return &models.ToolResult{
		OK:             true,
		Output:         output,
		BytesTruncated: truncated,
	}, nil
}

func (t *EditTool) maxBytes() int {
	if t.MaxOutputBytes > 0 {
		return t.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}
