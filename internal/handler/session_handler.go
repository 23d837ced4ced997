package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
	"github.com/stemsi/exstem-runner/internal/validator"
)

// SessionHandler exposes the test session runtime over HTTP.
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// session resolves :session_id, writing the error response when missing.
func (h *SessionHandler) session(c *gin.Context) (*service.Session, bool) {
	sess, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		response.Error(c, err, nil)
		return nil, false
	}
	return sess, true
}

// StartSession godoc
// POST /api/v1/sessions
// Initializes a test attempt from the bootstrap payload. A session id that
// is already running is resumed; a finalized one is refused.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.Bootstrap
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrInvalidBootstrap, fields)
		return
	}

	sess, resumed, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err, nil)
		return
	}

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	response.Success(c, status, gin.H{"resumed": resumed, "view": sess.View()})
}

// GetView godoc
// GET /api/v1/sessions/:session_id
// Returns the projection of the current question.
func (h *SessionHandler) GetView(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Navigate godoc
// POST /api/v1/sessions/:session_id/navigate
// Moves to a question index. Out-of-range indices leave the position as is.
func (h *SessionHandler) Navigate(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if _, err := sess.GoTo(*req.Index); err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// Next godoc
// POST /api/v1/sessions/:session_id/next
func (h *SessionHandler) Next(c *gin.Context) {
	h.step(c, (*service.Session).Next)
}

// Previous godoc
// POST /api/v1/sessions/:session_id/previous
func (h *SessionHandler) Previous(c *gin.Context) {
	h.step(c, (*service.Session).Previous)
}

func (h *SessionHandler) step(c *gin.Context, move func(*service.Session) (int, error)) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if _, err := move(sess); err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// SelectAnswer godoc
// POST /api/v1/sessions/:session_id/answer
// Records a draft answer on the current question. Nothing is sent to the
// question service until the answer is submitted.
func (h *SessionHandler) SelectAnswer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req model.SelectAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := sess.SelectAnswer(*req.Option); err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// RecordAction godoc
// POST /api/v1/sessions/:session_id/actions
// Submits, flags or skips the current question.
func (h *SessionHandler) RecordAction(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req model.RecordActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	out, err := sess.RecordAction(c.Request.Context(), model.ActionKind(req.Kind))
	if err != nil {
		var data any
		if out.Finalized {
			data = gin.H{"outcome": out, "results": sess.ID()}
		}
		response.Error(c, err, data)
		return
	}

	data := gin.H{"outcome": out, "view": sess.View()}
	if out.Finalized {
		data["results"] = sess.ID()
	}
	response.Success(c, http.StatusOK, data)
}

// SaveNote godoc
// PUT /api/v1/sessions/:session_id/note
func (h *SessionHandler) SaveNote(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req model.SaveNoteRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := sess.SaveNote(c.Request.Context(), req.Note); err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// ToggleExplanation godoc
// POST /api/v1/sessions/:session_id/explanation
func (h *SessionHandler) ToggleExplanation(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	visible, err := sess.ToggleExplanation()
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"visible": visible, "view": sess.View()})
}

// ConfigureTimer godoc
// PUT /api/v1/sessions/:session_id/timer
func (h *SessionHandler) ConfigureTimer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	var req model.ConfigureTimerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := sess.ConfigureTimer(req.Mode, req.DurationSeconds); err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, sess.Timer())
}

// EndTest godoc
// POST /api/v1/sessions/:session_id/end
// Skips every unsubmitted question and finalizes the attempt. On success
// the caller moves to the results view of the returned id.
func (h *SessionHandler) EndTest(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	err := sess.EndTest(c.Request.Context())
	data := gin.H{"results": sess.ID(), "statuses": sess.Statuses()}
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, data)
	case errors.Is(err, model.ErrFinalizeIncomplete):
		response.Error(c, err, data)
	default:
		response.Error(c, err, nil)
	}
}

// CancelSession godoc
// POST /api/v1/sessions/:session_id/cancel
// Abandons the attempt. Local state is discarded even when the question
// service cannot be reached.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	id := c.Param("session_id")
	err := h.sessions.Cancel(c.Request.Context(), id)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"canceled": true})
	case errors.Is(err, model.ErrSyncFailure), errors.Is(err, model.ErrSessionExpired):
		// Purged locally; the attempt may still count server-side.
		response.Error(c, err, gin.H{"canceled": true})
	default:
		response.Error(c, err, nil)
	}
}

// GetResults godoc
// GET /api/v1/sessions/:session_id/results
func (h *SessionHandler) GetResults(c *gin.Context) {
	res, err := h.sessions.Results(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, res)
}
