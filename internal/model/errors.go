package model

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime error taxonomy.
var (
	ErrInvalidBootstrap   = errors.New("invalid bootstrap: session id and questions are required")
	ErrSessionExpired     = errors.New("session expired: credential rejected")
	ErrAlreadyInFlight    = errors.New("an action for this question is already in flight")
	ErrSyncFailure        = errors.New("sync with question service failed")
	ErrFinalizeIncomplete = errors.New("one or more questions could not be skipped during finalization")
)

// Local rule violations.
var (
	ErrAlreadySubmitted  = errors.New("question already submitted")
	ErrFlagForeclosed    = errors.New("flagging is not allowed once an answer is selected")
	ErrNoAnswerSelected  = errors.New("no answer selected")
	ErrOptionOutOfRange  = errors.New("option index out of range")
	ErrIndexOutOfRange   = errors.New("question index out of range")
	ErrSessionClosed     = errors.New("session is no longer active")
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotFinalized      = errors.New("session has not been finalized")
	ErrExplanationLocked = errors.New("explanation is available once the question is submitted")
	ErrInvalidHighlight  = errors.New("invalid highlight")
	ErrInvalidAction     = errors.New("unknown action kind")
)

// SyncErrorKind classifies a failed remote call.
type SyncErrorKind string

const (
	SyncKindNetwork      SyncErrorKind = "network"
	SyncKindServer       SyncErrorKind = "server"
	SyncKindUnauthorized SyncErrorKind = "unauthorized"
	SyncKindDecode       SyncErrorKind = "decode"
)

// SyncError is a failed call to the question service.
type SyncError struct {
	Op     string
	Kind   SyncErrorKind
	Status int
	Err    error
}

func (e *SyncError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// Is maps unauthorized failures to ErrSessionExpired and everything else to
// ErrSyncFailure.
func (e *SyncError) Is(target error) bool {
	if e.Kind == SyncKindUnauthorized {
		return target == ErrSessionExpired
	}
	return target == ErrSyncFailure
}

// QuestionFailure records a skip that failed during finalization.
type QuestionFailure struct {
	Index      int
	QuestionID string
	Err        error
}

// FinalizeIncompleteError lists the per-question failures of a finalization.
type FinalizeIncompleteError struct {
	Failures []QuestionFailure
}

func (e *FinalizeIncompleteError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.QuestionID)
	}
	return fmt.Sprintf("%s: %s", ErrFinalizeIncomplete.Error(), strings.Join(ids, ", "))
}

func (e *FinalizeIncompleteError) Is(target error) bool {
	return target == ErrFinalizeIncomplete
}

// Unwrap exposes the individual failures so callers can test for
// ErrSessionExpired among them.
func (e *FinalizeIncompleteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
