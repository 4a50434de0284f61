package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/logger"
	"scan-licences/internal/model"
)

var statuses = []struct {
	err    error
	status int
}{
	{model.ErrInvalidInput, http.StatusBadRequest},
	{model.ErrDuplicate, http.StatusConflict},
	{model.ErrMissingMember, http.StatusFailedDependency},
	{model.ErrPermissionDenied, http.StatusForbidden},
	{model.ErrNotFound, http.StatusNotFound},
	{model.ErrNetworkUnavailable, http.StatusServiceUnavailable},
}

func statusOf(err error) int {
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error", "code"} with the matching status.
func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("http.failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": model.Code(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": model.CodeInvalidInput})
}
