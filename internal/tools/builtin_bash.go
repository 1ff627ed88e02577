package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/silverfisk/rants/internal/models"
)

// BashTool runs a shell command with its working directory pinned under
// the workspace root. Grounded on the teacher's internal/tools/exec.ExecTool.
type BashTool struct {
	MaxOutputBytes int
	DefaultTimeout time.Duration
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Run a shell command in the workspace." }

func (t *BashTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]any{
				"type":        "string",
				"description": "Working directory relative to the workspace root.",
			},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (0 = use the default).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *BashTool) Execute(ectx *ExecContext, params json.RawMessage) (*models.ToolResult, error) {
	var input struct {
		Command        string `json:"command"`
		Cwd            string `json:"cwd"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(models.ToolErrExecution, fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError(models.ToolErrExecution, "command is required"), nil
	}

	cwd, err := ResolvePath(ectx.WorkspaceRoot, input.Cwd)
	if err != nil {
		return toolError(models.ToolErrSandboxViolation, err.Error()), nil
	}

	timeout := t.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}

	parent := ectx.Context
	if parent == nil {
		parent = context.Background()
	}
	runCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	combined := stdout.String()
	if stderr.Len() > 0 {
		combined += "\n--- stderr ---\n" + stderr.String()
	}

	output, truncated := capOutput(combined, t.maxBytes())

	if runCtx.Err() == context.DeadlineExceeded {
		return &models.ToolResult{
			OK:             false,
			Output:         output,
			ErrorKind:      models.ToolErrTimeout,
			BytesTruncated: truncated,
		}, nil
	}
	if runErr != nil {
		return &models.ToolResult{
			OK:             false,
			Output:         output,
			ErrorKind:      models.ToolErrExecution,
			BytesTruncated: truncated,
		}, nil
	}

	return &models.ToolResult{
		OK:             true,
		Output:         output,
		BytesTruncated: truncated,
	}, nil
}

func (t *BashTool) maxBytes() int {
	if t.MaxOutputBytes > 0 {
		return t.MaxOutputBytes
	}
	return DefaultMaxOutputBytes
}
