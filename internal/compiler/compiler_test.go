package compiler

import (
	"context"
	"testing"

	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/tools"
)

type fakeBackend struct {
	responses []string
	calls     int
}

func (f *fakeBackend) Complete(ctx context.Context, req backend.Request) (*backend.Result, error) {
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	return &backend.Result{Text: f.responses[i]}, nil
}

func (f *fakeBackend) Stream(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	panic("not used")
}

func TestCompileValidOnFirstTry(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.ReadTool{})

	fb := &fakeBackend{responses: []string{`{"tool_calls":[{"tool":"read","parameters":{"path":"a.go"}}]}`}}
	c := New(fb, "tool-compiler", reg)

	calls, err := c.Compile(context.Background(), "read a.go", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 || calls[0].Tool != "read" {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if fb.calls != 1 {
		t.Fatalf("expected exactly one backend call, got %d", fb.calls)
	}
}

func TestCompileRepairsOnceThenSucceeds(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.ReadTool{})

	fb := &fakeBackend{responses: []string{
		"not json at all",
		`{"tool_calls":[{"tool":"read","parameters":{"path":"a.go"}}]}`,
	}}
	c := New(fb, "tool-compiler", reg)

	calls, err := c.Compile(context.Background(), "read a.go", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("unexpected calls: %+v", calls)
	}
	if fb.calls != 2 {
		t.Fatalf("expected repair attempt, got %d calls", fb.calls)
	}
}

func TestCompileFailsAfterRepair(t *testing.T) {
	reg := tools.NewRegistry()
	reg.Register(&tools.ReadTool{})

	fb := &fakeBackend{responses: []string{"still not json", "also not json"}}
	c := New(fb, "tool-compiler", reg)

	if _, err := c.Compile(context.Background(), "read a.go", "ctx"); err == nil {
		t.Fatalf("expected ToolCompileError after repair attempt fails")
	}
}

func TestCompileRejectsUnknownTool(t *testing.T) {
	reg := tools.NewRegistry()

	fb := &fakeBackend{responses: []string{
		`{"tool_calls":[{"tool":"nope","parameters":{}}]}`,
		`{"tool_calls":[]}`,
	}}
	c := New(fb, "tool-compiler", reg)

	calls, err := c.Compile(context.Background(), "do something", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected empty compilation after repair, got %+v", calls)
	}
}
