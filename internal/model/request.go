package model

// NavigateRequest moves to a question index.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required,min=0"`
}

// SelectAnswerRequest records a draft answer.
type SelectAnswerRequest struct {
	Option *int `json:"option" binding:"required,min=0"`
}

// RecordActionRequest submits, flags or skips the current question.
type RecordActionRequest struct {
	Kind string `json:"kind" binding:"required,action_kind"`
}

// SaveNoteRequest stores a note on the current question.
type SaveNoteRequest struct {
	Note string `json:"note" binding:"max=5000"`
}

// AddHighlightRequest captures a highlight on the current question.
type AddHighlightRequest struct {
	Target string `json:"target" binding:"required,highlight_target"`
	Start  *int   `json:"start" binding:"required,min=0"`
	End    *int   `json:"end" binding:"required,min=0"`
	Color  string `json:"color" binding:"required,iscolor"`
}

// ToggleStrikeRequest flips the struck state of an option.
type ToggleStrikeRequest struct {
	Option *int `json:"option" binding:"required,min=0"`
}

// ConfigureTimerRequest switches the countdown policy.
type ConfigureTimerRequest struct {
	Mode            TimerMode `json:"mode" binding:"required,oneof=none per_question whole_test"`
	DurationSeconds int       `json:"duration_seconds" binding:"min=0,max=86400"`
}
