package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/backup"
	"scan-licences/internal/export"
	"scan-licences/internal/logger"
)

type ExportHandler struct {
	engine *export.Engine
	backup *backup.Job
}

func NewExportHandler(engine *export.Engine, job *backup.Job) *ExportHandler {
	return &ExportHandler{engine: engine, backup: job}
}

// GET /api/export?session_id=|season=&format=csv|xlsx|pdf
func (h *ExportHandler) Export(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		fail(c, err)
		return
	}
	var sel export.Selector
	if v := c.Query("session_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid session_id")
			return
		}
		sel.SessionID = id
	}
	sel.Season = c.Query("season")

	f, err := h.engine.Export(c.Request.Context(), sel, format)
	if err != nil {
		fail(c, err)
		return
	}
	logger.Info("export.done", "file", f.Name, "bytes", len(f.Data))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.Name))
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// POST /api/admin/backup
func (h *ExportHandler) Backup(c *gin.Context) {
	key, err := h.backup.Run(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "key": key})
}
