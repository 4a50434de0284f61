package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/model"
	"scan-licences/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	entries  *service.EntryService
}

func NewSessionHandler(sessions *service.SessionService, entries *service.EntryService) *SessionHandler {
	return &SessionHandler{sessions: sessions, entries: entries}
}

// POST /api/sessions/today
func (h *SessionHandler) OpenToday(c *gin.Context) {
	sess, err := h.sessions.OpenToday(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GET /api/sessions/today  (null when no session was opened)
func (h *SessionHandler) Today(c *gin.Context) {
	sess, err := h.sessions.Today(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GET /api/sessions?limit=
func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /api/sessions/:id/entries
func (h *SessionHandler) Entries(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	views, err := h.entries.ListBySession(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	if views == nil {
		views = []model.EntryView{}
	}
	c.JSON(http.StatusOK, views)
}
