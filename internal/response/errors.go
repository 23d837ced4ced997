package response

import (
	"errors"
	"net/http"

	"github.com/stemsi/exstem-runner/internal/model"
)

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Credential ────────────────────────────────────────────────────
	ErrTokenRequired  ErrCode = "TOKEN_REQUIRED"
	ErrSessionExpired ErrCode = "SESSION_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation       ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload   ErrCode = "INVALID_PAYLOAD"
	ErrInvalidBootstrap ErrCode = "INVALID_BOOTSTRAP"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionNotFound   ErrCode = "SESSION_NOT_FOUND"
	ErrSessionClosed     ErrCode = "SESSION_CLOSED"
	ErrNotFinalized      ErrCode = "NOT_FINALIZED"
	ErrAlreadyInFlight   ErrCode = "ALREADY_IN_FLIGHT"
	ErrAlreadySubmitted  ErrCode = "ALREADY_SUBMITTED"
	ErrFlagForeclosed    ErrCode = "FLAG_FORECLOSED"
	ErrNoAnswerSelected  ErrCode = "NO_ANSWER_SELECTED"
	ErrOptionOutOfRange  ErrCode = "OPTION_OUT_OF_RANGE"
	ErrInvalidHighlight  ErrCode = "INVALID_HIGHLIGHT"
	ErrExplanationLocked ErrCode = "EXPLANATION_LOCKED"
	ErrHighlightNotFound ErrCode = "HIGHLIGHT_NOT_FOUND"

	// ─── Remote ────────────────────────────────────────────────────────
	ErrSyncFailure        ErrCode = "SYNC_FAILURE"
	ErrFinalizeIncomplete ErrCode = "FINALIZE_INCOMPLETE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTokenRequired:
		return "An authorization token is required."
	case ErrSessionExpired:
		return "Your session has expired. Please sign in again to continue."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidBootstrap:
		return "The test could not be started. Please set up a new test."

	case ErrSessionNotFound:
		return "Test session not found."
	case ErrSessionClosed:
		return "This test has already ended."
	case ErrNotFinalized:
		return "Results are available once the test has been submitted."
	case ErrAlreadyInFlight:
		return "An action for this question is still being processed."
	case ErrAlreadySubmitted:
		return "This question has already been submitted."
	case ErrFlagForeclosed:
		return "A question with a selected answer cannot be flagged."
	case ErrNoAnswerSelected:
		return "Select an answer before submitting."
	case ErrOptionOutOfRange:
		return "That option does not exist."
	case ErrInvalidHighlight:
		return "Invalid highlight."
	case ErrExplanationLocked:
		return "The explanation is shown once the question is submitted."
	case ErrHighlightNotFound:
		return "Highlight not found."

	case ErrSyncFailure:
		return "Could not reach the question service. Please try again."
	case ErrFinalizeIncomplete:
		return "The test was submitted, but some questions could not be recorded."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// errorMapping pairs a domain error with its HTTP status and code. Order
// matters: the first match wins.
var errorMapping = []struct {
	err    error
	status int
	code   ErrCode
}{
	{model.ErrFinalizeIncomplete, http.StatusMultiStatus, ErrFinalizeIncomplete},
	{model.ErrSessionExpired, http.StatusUnauthorized, ErrSessionExpired},
	{model.ErrInvalidBootstrap, http.StatusBadRequest, ErrInvalidBootstrap},
	{model.ErrSessionNotFound, http.StatusNotFound, ErrSessionNotFound},
	{model.ErrSessionClosed, http.StatusConflict, ErrSessionClosed},
	{model.ErrNotFinalized, http.StatusConflict, ErrNotFinalized},
	{model.ErrAlreadyInFlight, http.StatusConflict, ErrAlreadyInFlight},
	{model.ErrAlreadySubmitted, http.StatusConflict, ErrAlreadySubmitted},
	{model.ErrFlagForeclosed, http.StatusUnprocessableEntity, ErrFlagForeclosed},
	{model.ErrNoAnswerSelected, http.StatusUnprocessableEntity, ErrNoAnswerSelected},
	{model.ErrOptionOutOfRange, http.StatusUnprocessableEntity, ErrOptionOutOfRange},
	{model.ErrIndexOutOfRange, http.StatusUnprocessableEntity, ErrOptionOutOfRange},
	{model.ErrInvalidHighlight, http.StatusUnprocessableEntity, ErrInvalidHighlight},
	{model.ErrExplanationLocked, http.StatusConflict, ErrExplanationLocked},
	{model.ErrInvalidAction, http.StatusBadRequest, ErrValidation},
	{model.ErrSyncFailure, http.StatusBadGateway, ErrSyncFailure},
}

// FromError maps a domain error to an HTTP status and error code.
// Unknown errors are internal errors.
func FromError(err error) (int, ErrCode) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ErrInternal
}
