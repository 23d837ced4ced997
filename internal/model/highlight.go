package model

// HighlightTarget names the text a highlight was captured from.
type HighlightTarget string

const (
	TargetPrompt      HighlightTarget = "prompt"
	TargetExplanation HighlightTarget = "explanation"
)

// Valid reports whether t is a known target.
func (t HighlightTarget) Valid() bool {
	return t == TargetPrompt || t == TargetExplanation
}

// TextSpan is a character-offset range [Start, End) into a piece of text.
type TextSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Highlight is one user highlight. Offsets are only meaningful against the
// exact text they were captured from.
type Highlight struct {
	Key        string          `json:"key"`
	QuestionID string          `json:"question_id"`
	Span       TextSpan        `json:"span"`
	Target     HighlightTarget `json:"target"`
	Color      string          `json:"color"`
	// Seq is the insertion order, used to break ties on equal start offsets.
	Seq int64 `json:"seq"`
}

// AnnotationState is the persisted form of the annotation store: the
// highlight set and the struck-option set of one session.
type AnnotationState struct {
	Highlights []Highlight      `json:"highlights"`
	Struck     map[string][]int `json:"struck"`
}

// IsEmpty reports whether the state carries no annotations.
func (s AnnotationState) IsEmpty() bool {
	if len(s.Highlights) > 0 {
		return false
	}
	for _, opts := range s.Struck {
		if len(opts) > 0 {
			return false
		}
	}
	return true
}
