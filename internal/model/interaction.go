package model

// InteractionState is the tagged variant over the answer lifecycle of a
// question. Exactly one of Unanswered, Flagged or Submitted holds at a time,
// so a flagged-and-submitted combination cannot be expressed.
type InteractionState interface {
	isInteractionState()
}

// Unanswered is the initial state.
type Unanswered struct{}

// Flagged marks a question the user intends to come back to.
type Flagged struct{}

// Submitted is terminal for answer purposes.
type Submitted struct {
	SelectedAnswer *int `json:"selected_answer"`
	IsCorrect      bool `json:"is_correct"`
	// WasFlagged is the flag value confirmed by the server at submission.
	WasFlagged bool `json:"was_flagged"`
}

func (Unanswered) isInteractionState() {}
func (Flagged) isInteractionState()    {}
func (Submitted) isInteractionState()  {}

// Interaction is the recorded engagement with one question.
type Interaction struct {
	QuestionID string
	Note       string
	// Draft is a locally selected answer that has not been submitted yet.
	Draft *int
	State InteractionState
}

// IsSubmitted reports whether the interaction reached the terminal state.
func (i Interaction) IsSubmitted() bool {
	_, ok := i.State.(Submitted)
	return ok
}

// IsFlagged reports the flag value, including the frozen one of a
// submitted interaction.
func (i Interaction) IsFlagged() bool {
	switch s := i.State.(type) {
	case Flagged:
		return true
	case Submitted:
		return s.WasFlagged
	}
	return false
}

// Submission returns the submitted outcome, if any.
func (i Interaction) Submission() (Submitted, bool) {
	s, ok := i.State.(Submitted)
	return s, ok
}

// QuestionStatus is the navigation projection of an interaction.
type QuestionStatus string

const (
	StatusUnanswered         QuestionStatus = "unanswered"
	StatusFlagged            QuestionStatus = "flagged"
	StatusSubmittedCorrect   QuestionStatus = "submitted_correct"
	StatusSubmittedIncorrect QuestionStatus = "submitted_incorrect"
)

// Status derives the navigation status from the interaction state.
func (i Interaction) Status() QuestionStatus {
	switch s := i.State.(type) {
	case Submitted:
		if s.IsCorrect {
			return StatusSubmittedCorrect
		}
		return StatusSubmittedIncorrect
	case Flagged:
		return StatusFlagged
	}
	return StatusUnanswered
}

// ActionKind enumerates the per-question actions sent for grading.
type ActionKind string

const (
	ActionSubmitAnswer ActionKind = "submit"
	ActionFlag         ActionKind = "flag"
	ActionSkip         ActionKind = "skip"
)

// InteractionUpdate is the request body of a submit-interaction call.
// ClearAnswer sends an explicit null answer, as a skip does.
type InteractionUpdate struct {
	SelectedAnswer *int    `json:"selectedAnswer,omitempty"`
	IsFlagged      *bool   `json:"isFlagged,omitempty"`
	Note           *string `json:"note,omitempty"`
	ClearAnswer    bool    `json:"-"`
}

// InteractionResult is the server-confirmed outcome of an interaction call.
type InteractionResult struct {
	IsCorrect      bool `json:"isCorrect"`
	IsFlagged      bool `json:"isFlagged"`
	SelectedAnswer *int `json:"selectedAnswer"`
}

// TestResults is the analytics summary shown on the results view.
type TestResults struct {
	SessionID    string `json:"session_id"`
	Correct      int    `json:"correct"`
	Incorrect    int    `json:"incorrect"`
	NotAttempted int    `json:"not_attempted"`
	Flagged      int    `json:"flagged"`
	Total        int    `json:"total"`
}
