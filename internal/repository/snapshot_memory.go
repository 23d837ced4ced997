package repository

import (
	"context"
	"sync"

	"github.com/stemsi/exstem-runner/internal/model"
)

// MemorySnapshotRepository keeps snapshots in process memory. It backs the
// "memory" snapshot driver and tests.
type MemorySnapshotRepository struct {
	mu      sync.RWMutex
	entries map[string]encodedSnapshot
}

// NewMemorySnapshotRepository creates an empty MemorySnapshotRepository.
func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{entries: make(map[string]encodedSnapshot)}
}

func (r *MemorySnapshotRepository) Save(_ context.Context, sessionID string, state model.AnnotationState) error {
	enc, err := encodeSnapshot(state)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entries[sessionID] = enc
	r.mu.Unlock()
	return nil
}

func (r *MemorySnapshotRepository) Load(_ context.Context, sessionID string) (model.AnnotationState, error) {
	r.mu.RLock()
	enc := r.entries[sessionID]
	r.mu.RUnlock()
	return decodeSnapshot(enc.highlights, enc.struck)
}

func (r *MemorySnapshotRepository) Purge(_ context.Context, sessionID string) error {
	r.mu.Lock()
	delete(r.entries, sessionID)
	r.mu.Unlock()
	return nil
}
