package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/silverfisk/rants/internal/models"
)

// MaxToolNameLength and MaxParamsSize guard against resource exhaustion from
// malformed or adversarial tool calls, grounded on the teacher's
// ToolRegistry constants.
const (
	MaxToolNameLength = 256
	MaxParamsSize     = 10 << 20
)

// Registry is the name → (schema, executor) lookup table. The registered
// set is fixed at startup and identical across sessions of the same tenant;
// its digest (recomputed on each Digest call) is stamped onto every
// transcript created against it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns the registry's tool list in stable (name-sorted) order,
// the shape handed to the Tool Compiler.
func (r *Registry) Schemas() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, ToolSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Digest returns the SHA-256 digest of the canonical JSON encoding of the
// registry's schema list, recorded on every transcript (spec §3).
func (r *Registry) Digest() string {
	schemas := r.Schemas()
	payload, _ := json.Marshal(schemas)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute runs a registered tool by name, translating unknown-tool and
// oversized-input conditions into ToolExecError results rather than
// returning an error, per the "executors never raise uncaught errors"
// contract.
func (r *Registry) Execute(ectx *ExecContext, call models.ToolCall) *models.ToolResult {
	started := time.Now()
	if len(call.Tool) > MaxToolNameLength {
		return execError(call.CallIDOrSelf(), started, models.ToolErrExecution, "tool name exceeds maximum length")
	}
	if len(call.Parameters) > MaxParamsSize {
		return execError(call.CallIDOrSelf(), started, models.ToolErrExecution, "tool parameters exceed maximum size")
	}

	t, ok := r.Get(call.Tool)
	if !ok {
		return execError(call.CallIDOrSelf(), started, models.ToolErrExecution, "tool not registered: "+call.Tool)
	}

	result, err := t.Execute(ectx, call.Parameters)
	if err != nil {
		return execError(call.CallIDOrSelf(), started, models.ToolErrExecution, err.Error())
	}
	if result.CallID == "" {
		result.CallID = call.ID
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = started
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now()
	}
	return result
}

func execError(callID string, started time.Time, kind models.ToolErrorKind, message string) *models.ToolResult {
	out, _ := json.Marshal(message)
	return &models.ToolResult{
		CallID:     callID,
		OK:         false,
		Output:     out,
		ErrorKind:  kind,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}
