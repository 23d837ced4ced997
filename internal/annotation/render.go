package annotation

import (
	"strings"

	"github.com/stemsi/exstem-runner/internal/model"
)

// Render returns text with the highlights of a question/target spliced in
// left to right. Highlights starting at or beyond the end of text are
// dropped and ends past it are truncated. Overlapping highlights are not
// merged: each one emits its own slice of text, so overlapping spans repeat
// the shared characters.
func (s *Store) Render(text, questionID string, target model.HighlightTarget) string {
	s.mu.RLock()
	hs := s.selectLocked(questionID, target)
	marker := s.marker
	s.mu.RUnlock()

	if len(hs) == 0 {
		return text
	}
	return splice([]rune(text), hs, marker)
}

func splice(runes []rune, hs []model.Highlight, marker Marker) string {
	n := len(runes)
	var b strings.Builder
	last := 0

	for _, h := range hs {
		start := h.Span.Start
		if start < 0 {
			start = 0
		}
		if start >= n {
			continue
		}
		if start > last {
			b.WriteString(string(runes[last:start]))
		}
		end := h.Span.End
		if end > n {
			end = n
		}
		var inner string
		if end > start {
			inner = string(runes[start:end])
		}
		b.WriteString(marker(h, inner))
		last = h.Span.End
	}

	if last < n {
		if last < 0 {
			last = 0
		}
		b.WriteString(string(runes[last:]))
	}
	return b.String()
}
