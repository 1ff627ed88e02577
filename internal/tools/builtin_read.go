package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/silverfisk/rants/internal/models"
)

// ReadTool reads a file under the workspace root.
type ReadTool struct {
	MaxOutputBytes int
}

func (t *ReadTool) Name() string        { return "read" }
func (t *ReadTool) Description() string { return "Read a file under the workspace root." }

func (t *ReadTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path relative to the workspace root.",
			},
		},
		"required": []string{"path"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ReadTool) Execute(ectx *ExecContext, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Path string `json:"path"`
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

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(models.ToolErrExecution, err.Error()), nil
	}

	output, truncated := capOutput(string(data), t.maxBytes())
	return &models.ToolResult{
		OK:             true,
		Output:         output,
		BytesTruncated: truncated,
	}, nil
}

func (t *ReadTool) maxBytes() int {
	if t.MaxOutputBytes > 0 {
		return t.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}

func toolError(kind models.ToolErrorKind, message string) *models.ToolResult {
	out, _ := json.Marshal(message)
	return &models.ToolResult{OK: false, Output: out, ErrorKind: kind}
}
