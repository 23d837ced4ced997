package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-runner/internal/model"
	"github.com/stemsi/exstem-runner/internal/response"
	"github.com/stemsi/exstem-runner/internal/service"
	"github.com/stemsi/exstem-runner/internal/validator"
)

// AnnotationHandler handles highlights and struck options.
type AnnotationHandler struct {
	sessions *SessionHandler
}

// NewAnnotationHandler creates a new AnnotationHandler.
func NewAnnotationHandler(sessions *service.SessionService) *AnnotationHandler {
	return &AnnotationHandler{sessions: NewSessionHandler(sessions)}
}

// AddHighlight godoc
// POST /api/v1/sessions/:session_id/highlights
// Highlights a span of the current question's prompt or explanation.
func (h *AnnotationHandler) AddHighlight(c *gin.Context) {
	sess, ok := h.sessions.session(c)
	if !ok {
		return
	}
	var req model.AddHighlightRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	span := model.TextSpan{Start: *req.Start, End: *req.End}
	hl, err := sess.AddHighlight(c.Request.Context(), model.HighlightTarget(req.Target), span, req.Color)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"highlight": hl, "view": sess.View()})
}

// RemoveHighlight godoc
// DELETE /api/v1/sessions/:session_id/highlights/:key
func (h *AnnotationHandler) RemoveHighlight(c *gin.Context) {
	sess, ok := h.sessions.session(c)
	if !ok {
		return
	}
	removed, err := sess.RemoveHighlight(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	if !removed {
		response.Fail(c, http.StatusNotFound, response.ErrHighlightNotFound)
		return
	}
	response.Success(c, http.StatusOK, sess.View())
}

// ToggleStrike godoc
// POST /api/v1/sessions/:session_id/strikes
// Marks or unmarks an option of the current question as eliminated.
func (h *AnnotationHandler) ToggleStrike(c *gin.Context) {
	sess, ok := h.sessions.session(c)
	if !ok {
		return
	}
	var req model.ToggleStrikeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	struck, err := sess.ToggleStrike(c.Request.Context(), *req.Option)
	if err != nil {
		response.Error(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"struck": struck, "view": sess.View()})
}
