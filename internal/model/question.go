package model

// Question is a read-only question as delivered by the question service.
// Field names follow the service's document format.
type Question struct {
	ID             string       `json:"_id" binding:"required"`
	QuestionText   string       `json:"questionText"`
	Media          []string     `json:"media,omitempty"`
	Options        []Option     `json:"options" binding:"required,min=1,dive"`
	CorrectAnswers []int        `json:"correctAnswers,omitempty"`
	Explanation    *Explanation `json:"explanation,omitempty"`
}

// Option is a single answer choice.
type Option struct {
	Text  string   `json:"text"`
	Media []string `json:"media,omitempty"`
}

// Explanation is shown once a question has been submitted.
type Explanation struct {
	Text  string   `json:"text"`
	Media []string `json:"media,omitempty"`
}

// ExplanationText returns the explanation text or "" when there is none.
func (q *Question) ExplanationText() string {
	if q.Explanation == nil {
		return ""
	}
	return q.Explanation.Text
}

// IsCorrectOption reports whether idx is in the answer key. The key is only
// consulted for display after submission.
func (q *Question) IsCorrectOption(idx int) bool {
	for _, c := range q.CorrectAnswers {
		if c == idx {
			return true
		}
	}
	return false
}
