package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stemsi/exstem-runner/internal/model"
)

// Snapshot entry names. Each session persists exactly these two entries.
const (
	EntryHighlights = "highlights"
	EntryStruck     = "struck"
)

// SnapshotRepository persists the annotation state of a session so it
// survives a restart of the runner.
type SnapshotRepository interface {
	// Save overwrites both entries of the session.
	Save(ctx context.Context, sessionID string, state model.AnnotationState) error
	// Load returns the stored state. A session without entries yields an
	// empty state and no error.
	Load(ctx context.Context, sessionID string) (model.AnnotationState, error)
	// Purge removes both entries of the session.
	Purge(ctx context.Context, sessionID string) error
}

type encodedSnapshot struct {
	highlights []byte
	struck     []byte
}

func encodeSnapshot(state model.AnnotationState) (encodedSnapshot, error) {
	highlights := state.Highlights
	if highlights == nil {
		highlights = []model.Highlight{}
	}
	struck := state.Struck
	if struck == nil {
		struck = map[string][]int{}
	}

	h, err := json.Marshal(highlights)
	if err != nil {
		return encodedSnapshot{}, fmt.Errorf("encode highlights: %w", err)
	}
	s, err := json.Marshal(struck)
	if err != nil {
		return encodedSnapshot{}, fmt.Errorf("encode struck: %w", err)
	}
	return encodedSnapshot{highlights: h, struck: s}, nil
}

// decodeSnapshot rebuilds the state from raw entries. Missing entries are
// treated as empty.
func decodeSnapshot(highlights, struck []byte) (model.AnnotationState, error) {
	state := model.AnnotationState{Struck: map[string][]int{}}
	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &state.Highlights); err != nil {
			return model.AnnotationState{}, fmt.Errorf("decode highlights: %w", err)
		}
	}
	if len(struck) > 0 {
		if err := json.Unmarshal(struck, &state.Struck); err != nil {
			return model.AnnotationState{}, fmt.Errorf("decode struck: %w", err)
		}
		if state.Struck == nil {
			state.Struck = map[string][]int{}
		}
	}
	return state, nil
}
