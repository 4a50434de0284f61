package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/logger"
	"scan-licences/internal/middleware"
	"scan-licences/internal/model"
	"scan-licences/internal/service"
)

type AuthHandler struct {
	auth   *service.AuthService
	tokens *middleware.Tokens
}

func NewAuthHandler(auth *service.AuthService, tokens *middleware.Tokens) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	op, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("login.failed", "email", req.Email, "error", err)
		status := statusOf(err)
		if status == http.StatusForbidden {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": model.Code(err)})
		return
	}

	token, err := h.tokens.Issue(op)
	if err != nil {
		fail(c, err)
		return
	}
	logger.Info("login.ok", "uid", op.ID, "email", op.Email)
	c.JSON(http.StatusOK, model.LoginResponse{Token: token, Operator: *op})
}
