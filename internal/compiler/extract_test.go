package compiler

import "testing"

func TestExtractJSONObjectRaw(t *testing.T) {
	raw := `{"tool_calls":[{"tool":"read","parameters":{"path":"a.go"}}]}`
	got, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != raw {
		t.Fatalf("got %s, want %s", got, raw)
	}
}

func TestExtractJSONObjectFenced(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"tool_calls\":[]}\n```\nDone."
	got, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != `{"tool_calls":[]}` {
		t.Fatalf("got %s", got)
	}
}

func TestExtractJSONObjectBalanced(t *testing.T) {
	raw := `Here is the result: {"tool_calls":[{"tool":"bash","parameters":{"command":"ls"}}]} — let me know if that helps.`
	got, err := extractJSONObject(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"tool_calls":[{"tool":"bash","parameters":{"command":"ls"}}]}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestExtractJSONObjectNoMatch(t *testing.T) {
	if _, err := extractJSONObject("no json here at all"); err == nil {
		t.Fatalf("expected error for unparsable output")
	}
}

func TestExtractBalancedObjectRespectsStrings(t *testing.T) {
	raw := `{"tool_calls":[{"tool":"edit","parameters":{"find":"a } brace","replace":"b"}}]}`
	got, ok := extractBalancedObject(raw)
	if !ok {
		t.Fatalf("expected balanced object to be found")
	}
	if got != raw {
		t.Fatalf("got %s, want %s", got, raw)
	}
}
