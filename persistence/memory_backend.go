package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/anthonyadame/DeepResearchAgent-sub002/state"
)

// MemoryBackend is an in-memory implementation of StateBackend.
// For development and testing. Values are stored as serialized JSON so the
// round-trip behaves like the remote backends (callers never share pointers
// with the backend).
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryBackend creates a new in-memory state backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string][]byte),
	}
}

// Close closes the backend
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.data = nil
	return nil
}

// Ping checks if the backend is healthy
func (b *MemoryBackend) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}

func (b *MemoryBackend) get(t state.EntityType, id string, dest any) error {
	if id == "" {
		return ErrInvalidInput
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStoreClosed
	}
	data, ok := b.data[stateKey("", t, id)]
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(data, dest)
}

func (b *MemoryBackend) set(t state.EntityType, id string, v any) error {
	if id == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	b.data[stateKey("", t, id)] = data
	return nil
}

// Raw returns the stored payload bytes for an entity; used by tests to
// assert byte-for-byte that rejected writes left nothing behind.
func (b *MemoryBackend) Raw(t state.EntityType, id string) ([]byte, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.data[stateKey("", t, id)]
	return append([]byte(nil), data...), ok
}

// GetAgentState retrieves an agent state
func (b *MemoryBackend) GetAgentState(ctx context.Context, id string) (*state.AgentState, error) {
	var s state.AgentState
	if err := b.get(state.EntityAgent, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetAgentState persists an agent state
func (b *MemoryBackend) SetAgentState(ctx context.Context, s *state.AgentState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(state.EntityAgent, s.ID, s)
}

// GetResearchState retrieves a research state
func (b *MemoryBackend) GetResearchState(ctx context.Context, id string) (*state.ResearchState, error) {
	var s state.ResearchState
	if err := b.get(state.EntityResearch, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetResearchState persists a research state
func (b *MemoryBackend) SetResearchState(ctx context.Context, s *state.ResearchState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(state.EntityResearch, s.ID, s)
}

// GetVerificationState retrieves a verification state
func (b *MemoryBackend) GetVerificationState(ctx context.Context, id string) (*state.VerificationState, error) {
	var s state.VerificationState
	if err := b.get(state.EntityVerification, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetVerificationState persists a verification state
func (b *MemoryBackend) SetVerificationState(ctx context.Context, s *state.VerificationState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(state.EntityVerification, s.ID, s)
}

// GetSupervisionState retrieves a supervision state
func (b *MemoryBackend) GetSupervisionState(ctx context.Context, id string) (*state.SupervisionState, error) {
	var s state.SupervisionState
	if err := b.get(state.EntitySupervision, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSupervisionState persists a supervision state
func (b *MemoryBackend) SetSupervisionState(ctx context.Context, s *state.SupervisionState) error {
	if s == nil {
		return ErrInvalidInput
	}
	return b.set(state.EntitySupervision, s.ID, s)
}
