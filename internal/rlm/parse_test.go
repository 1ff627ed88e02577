package rlm

import "testing"

func TestParseNoIntent(t *testing.T) {
	p := Parse("Hello world.")
	if p.HasIntent {
		t.Fatalf("expected no intent")
	}
	if p.Text != "Hello world." {
		t.Fatalf("got text %q", p.Text)
	}
}

func TestParseSingleIntent(t *testing.T) {
	p := Parse("Updating README.\nTOOL_INTENT: edit README.md to fix the mermaid block")
	if !p.HasIntent {
		t.Fatalf("expected intent")
	}
	if p.Text != "Updating README." {
		t.Fatalf("got text %q", p.Text)
	}
	if p.Intent != "edit README.md to fix the mermaid block" {
		t.Fatalf("got intent %q", p.Intent)
	}
}

func TestParseMultipleIntentLinesOnlyLastCounts(t *testing.T) {
	raw := "Working on it.\nTOOL_INTENT: read a.go\nStill working.\nTOOL_INTENT: read b.go"
	p := Parse(raw)
	if !p.HasIntent {
		t.Fatalf("expected intent")
	}
	if p.Intent != "read b.go" {
		t.Fatalf("expected last intent to win, got %q", p.Intent)
	}
	if p.Text != "Working on it.\nTOOL_INTENT: read a.go\nStill working." {
		t.Fatalf("got text %q", p.Text)
	}
}

func TestParseEmptyTextWithIntent(t *testing.T) {
	p := Parse("TOOL_INTENT: list files under src/")
	if !p.HasIntent {
		t.Fatalf("expected intent")
	}
	if p.Text != "" {
		t.Fatalf("expected empty text, got %q", p.Text)
	}
}

func TestSanitizeForClientStripsLeakedIntentLines(t *testing.T) {
	text := "Working on it.\nTOOL_INTENT: read a.go\nStill working."
	got := SanitizeForClient(text)
	if got == text {
		t.Fatalf("expected sanitize to change input")
	}
	if contains(got, "TOOL_INTENT") {
		t.Fatalf("expected TOOL_INTENT line to be scrubbed, got %q", got)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
