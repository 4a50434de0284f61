package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/logger"
	"scan-licences/internal/middleware"
	"scan-licences/internal/model"
	"scan-licences/internal/service"
)

type EntryHandler struct {
	entries *service.EntryService
	now     func() time.Time
}

func NewEntryHandler(entries *service.EntryService) *EntryHandler {
	return &EntryHandler{entries: entries, now: time.Now}
}

// POST /api/entries  201 | 409 duplicate | 424 missing member | 403
func (h *EntryHandler) Create(c *gin.Context) {
	var req model.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	lic := strings.ToUpper(strings.TrimSpace(req.LicenceNo))
	e, err := h.entries.Insert(c.Request.Context(), req.SessionID, lic, req.SourceURL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

// DELETE /api/entries/:id  (admin)
func (h *EntryHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	if err := h.entries.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	logger.Info("entry.deleted", "id", id, "by", c.GetString(middleware.KeyEmail))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

const (
	defaultStatsDays = 30
	maxStatsDays     = 366
)

// GET /api/stats?days=30  entries per day and top licences over the window
func (h *EntryHandler) Stats(c *gin.Context) {
	days := defaultStatsDays
	if v := c.Query("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStatsDays {
			badRequest(c, "days must be between 1 and 366")
			return
		}
		days = n
	}
	since := h.now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := h.entries.Stats(c.Request.Context(), since)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
