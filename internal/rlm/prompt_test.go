package rlm

import (
	"strings"
	"testing"

	"github.com/silverfisk/rants/internal/tools"
)

func TestBuildSystemPromptIncludesContractAndTools(t *testing.T) {
	schemas := []tools.ToolSchema{
		{Name: "read", Description: "Read a file."},
		{Name: "bash", Description: "Run a shell command."},
	}
	prompt := BuildSystemPrompt("Be concise.", schemas)

	if !strings.Contains(prompt, "TOOL_INTENT:") {
		t.Fatalf("expected output contract to mention TOOL_INTENT")
	}
	if !strings.Contains(prompt, "Be concise.") {
		t.Fatalf("expected user system text to be included")
	}
	if !strings.Contains(prompt, "available_tools:") || !strings.Contains(prompt, "- read: Read a file.") {
		t.Fatalf("expected tool listing, got %q", prompt)
	}
}

func TestBuildSystemPromptWithNoTools(t *testing.T) {
	prompt := BuildSystemPrompt("", nil)
	if strings.Contains(prompt, "available_tools:") {
		t.Fatalf("expected no tool listing when schemas is empty")
	}
}
