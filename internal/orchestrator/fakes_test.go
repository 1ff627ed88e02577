package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/silverfisk/rants/internal/backend"
	"github.com/silverfisk/rants/internal/models"
	"github.com/silverfisk/rants/internal/tools"
)

// fakeStore is an in-memory store.Store for loop tests, grounded on the
// teacher's loopMemoryStore (internal/agent/loop_test.go).
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.RecursiveSession
	transcripts map[string]*models.CanonicalTranscript
	responses   map[string]*models.ResponseObject
	audits      []*models.AuditEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:    make(map[string]*models.RecursiveSession),
		transcripts: make(map[string]*models.CanonicalTranscript),
		responses:   make(map[string]*models.ResponseObject),
	}
}

func (s *fakeStore) CreateSession(ctx context.Context, sess *models.RecursiveSession, t *models.CanonicalTranscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	cp := *t
	s.transcripts[sess.ID] = &cp
	return nil
}

func (s *fakeStore) LoadSession(ctx context.Context, id, tenantID string) (*models.RecursiveSession, *models.CanonicalTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, models.ErrSessionNotFound
	}
	return sess, s.transcripts[id], nil
}

func (s *fakeStore) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
	}
	return nil
}

func (s *fakeStore) AppendStep(ctx context.Context, sessionID string, step *models.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[sessionID]
	if !ok {
		return models.ErrSessionNotFound
	}
	if step.Index != len(t.Steps) {
		return models.ErrStepIndexGap
	}
	t.Steps = append(t.Steps, *step)
	return nil
}

func (s *fakeStore) FinalizeStep(ctx context.Context, sessionID string, stepIndex int, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transcripts[sessionID]
	if !ok || stepIndex >= len(t.Steps) {
		return models.ErrSessionNotFound
	}
	t.Steps[stepIndex].FinishedAt = finishedAt
	return nil
}

func (s *fakeStore) PersistResponse(ctx context.Context, r *models.ResponseObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[r.ID] = r
	return nil
}

func (s *fakeStore) LookupResponse(ctx context.Context, id, tenantID string) (*models.ResponseObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, models.ErrResponseNotFound
	}
	return r, nil
}

func (s *fakeStore) RecordAudit(ctx context.Context, event *models.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, event)
	return nil
}

func (s *fakeStore) Close() error { return nil }

// fakeBackend drives the generator ("Stream") and compiler ("Complete")
// calls from independently indexed, pre-scripted response queues.
type fakeBackend struct {
	mu sync.Mutex

	streamDeltas [][]string // one entry per Stream() call, in order
	streamCall   int

	completeTexts []string // one entry per Complete() call, in order
	completeCall  int
}

func (f *fakeBackend) Complete(ctx context.Context, req backend.Request) (*backend.Result, error) {
	f.mu.Lock()
	idx := f.completeCall
	f.completeCall++
	f.mu.Unlock()

	text := `{"tool_calls":[]}`
	if idx < len(f.completeTexts) {
		text = f.completeTexts[idx]
	}
	return &backend.Result{Text: text}, nil
}

func (f *fakeBackend) Stream(ctx context.Context, req backend.Request) (<-chan backend.Chunk, error) {
	f.mu.Lock()
	idx := f.streamCall
	f.streamCall++
	f.mu.Unlock()

	var deltas []string
	if idx < len(f.streamDeltas) {
		deltas = f.streamDeltas[idx]
	}
	ch := make(chan backend.Chunk, len(deltas)+1)
	for _, d := range deltas {
		ch <- backend.Chunk{Delta: d}
	}
	close(ch)
	return ch, nil
}

// echoTool is a minimal registry-visible tool for exercising dispatch.
type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "Echo the given parameters back." }
func (echoTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (echoTool) Execute(ectx *tools.ExecContext, params json.RawMessage) (*models.ToolResult, error) {
	return &models.ToolResult{OK: true, Output: params}, nil
}
