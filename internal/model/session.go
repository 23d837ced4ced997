package model

// TimerMode enumerates the countdown policies of a test session.
type TimerMode string

const (
	TimerNone        TimerMode = "none"
	TimerPerQuestion TimerMode = "per_question"
	TimerWholeTest   TimerMode = "whole_test"
)

// SessionStatus enumerates the lifecycle states of a running attempt.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "ACTIVE"
	SessionStatusFinalized SessionStatus = "FINALIZED"
	SessionStatusCanceled  SessionStatus = "CANCELED"
)

// Bootstrap is the payload handed over by the test-creation flow.
type Bootstrap struct {
	SessionID       string     `json:"session_id" binding:"required"`
	Questions       []Question `json:"questions" binding:"required,min=1,dive"`
	DurationSeconds int        `json:"duration_seconds" binding:"min=0,max=86400"`
	TimerMode       TimerMode  `json:"timer_mode" binding:"omitempty,oneof=none per_question whole_test"`
}

// TestSession identifies one attempt. Questions are fixed for its lifetime.
type TestSession struct {
	ID              string
	Questions       []Question
	TimerMode       TimerMode
	DurationSeconds int
}

// NewTestSession builds a TestSession from a bootstrap payload. A positive
// duration without an explicit mode selects the per-question timer.
func NewTestSession(b Bootstrap) (*TestSession, error) {
	if b.SessionID == "" || len(b.Questions) == 0 {
		return nil, ErrInvalidBootstrap
	}
	mode := b.TimerMode
	if mode == "" {
		mode = TimerNone
		if b.DurationSeconds > 0 {
			mode = TimerPerQuestion
		}
	}
	if mode != TimerNone && b.DurationSeconds <= 0 {
		return nil, ErrInvalidBootstrap
	}

	questions := make([]Question, len(b.Questions))
	copy(questions, b.Questions)
	for _, q := range questions {
		if q.ID == "" {
			return nil, ErrInvalidBootstrap
		}
	}

	return &TestSession{
		ID:              b.SessionID,
		Questions:       questions,
		TimerMode:       mode,
		DurationSeconds: b.DurationSeconds,
	}, nil
}

// Len returns the number of questions in the session.
func (s *TestSession) Len() int { return len(s.Questions) }
