// Package annotation holds per-question text highlights and struck-out
// options of a test session. It performs no I/O.
package annotation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-runner/internal/model"
)

// Marker wraps highlighted text in display markup.
type Marker func(h model.Highlight, text string) string

// DefaultMarker renders a highlight as an inline span carrying its key so a
// click on it can be routed back to RemoveHighlight.
func DefaultMarker(h model.Highlight, text string) string {
	return fmt.Sprintf(`<span class="highlight" data-key="%s" style="background-color: %s">%s</span>`, h.Key, h.Color, text)
}

// Store is the annotation store of one session.
type Store struct {
	mu         sync.RWMutex
	highlights map[string]model.Highlight
	struck     map[string]map[int]struct{}
	seq        int64
	marker     Marker
	newKey     func() string
}

// Option configures a Store.
type Option func(*Store)

// WithMarker replaces the highlight markup.
func WithMarker(m Marker) Option {
	return func(s *Store) { s.marker = m }
}

// WithKeyFunc replaces the highlight key generator.
func WithKeyFunc(f func() string) Option {
	return func(s *Store) { s.newKey = f }
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		highlights: make(map[string]model.Highlight),
		struck:     make(map[string]map[int]struct{}),
		marker:     DefaultMarker,
		newKey:     func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddHighlight creates a new highlight with a fresh key. Existing
// highlights are never touched, overlapping ones included.
func (s *Store) AddHighlight(questionID string, target model.HighlightTarget, span model.TextSpan, color string) (model.Highlight, error) {
	if questionID == "" || !target.Valid() || span.Start < 0 || span.End <= span.Start {
		return model.Highlight{}, model.ErrInvalidHighlight
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	h := model.Highlight{
		Key:        s.newKey(),
		QuestionID: questionID,
		Span:       span,
		Target:     target,
		Color:      color,
		Seq:        s.seq,
	}
	s.highlights[h.Key] = h
	return h, nil
}

// RemoveHighlight deletes a highlight by key. It reports whether one was
// removed; an unknown key is a no-op.
func (s *Store) RemoveHighlight(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.highlights[key]; !ok {
		return false
	}
	delete(s.highlights, key)
	return true
}

// Highlights returns the highlights of a question/target ordered by start
// offset, ties broken by insertion order.
func (s *Store) Highlights(questionID string, target model.HighlightTarget) []model.Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectLocked(questionID, target)
}

func (s *Store) selectLocked(questionID string, target model.HighlightTarget) []model.Highlight {
	var out []model.Highlight
	for _, h := range s.highlights {
		if h.QuestionID == questionID && h.Target == target {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Span.Start != out[j].Span.Start {
			return out[i].Span.Start < out[j].Span.Start
		}
		return out[i].Seq < out[j].Seq
	})
	return out
}

// ToggleStrike flips the struck state of an option and returns the new
// state. Struck options stay selectable.
func (s *Store) ToggleStrike(questionID string, optionIndex int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.struck[questionID]
	if !ok {
		set = make(map[int]struct{})
		s.struck[questionID] = set
	}
	if _, on := set[optionIndex]; on {
		delete(set, optionIndex)
		if len(set) == 0 {
			delete(s.struck, questionID)
		}
		return false
	}
	set[optionIndex] = struct{}{}
	return true
}

// IsStruck reports whether an option is struck out.
func (s *Store) IsStruck(questionID string, optionIndex int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.struck[questionID][optionIndex]
	return ok
}

// Struck returns the struck option indices of a question in ascending order.
func (s *Store) Struck(questionID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.struck[questionID])
}

// State snapshots the store for persistence.
func (s *Store) State() model.AnnotationState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := model.AnnotationState{
		Highlights: make([]model.Highlight, 0, len(s.highlights)),
		Struck:     make(map[string][]int, len(s.struck)),
	}
	for _, h := range s.highlights {
		st.Highlights = append(st.Highlights, h)
	}
	sort.Slice(st.Highlights, func(i, j int) bool { return st.Highlights[i].Seq < st.Highlights[j].Seq })
	for qid, set := range s.struck {
		st.Struck[qid] = sortedKeys(set)
	}
	return st
}

// Restore replaces the store contents with a persisted state.
func (s *Store) Restore(st model.AnnotationState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.highlights = make(map[string]model.Highlight, len(st.Highlights))
	s.struck = make(map[string]map[int]struct{}, len(st.Struck))
	s.seq = 0
	for _, h := range st.Highlights {
		if h.Key == "" {
			continue
		}
		s.highlights[h.Key] = h
		if h.Seq > s.seq {
			s.seq = h.Seq
		}
	}
	for qid, opts := range st.Struck {
		if len(opts) == 0 {
			continue
		}
		set := make(map[int]struct{}, len(opts))
		for _, o := range opts {
			set[o] = struct{}{}
		}
		s.struck[qid] = set
	}
}

// Clear drops every annotation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlights = make(map[string]model.Highlight)
	s.struck = make(map[string]map[int]struct{})
	s.seq = 0
}

func sortedKeys(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
