package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/model"
	"scan-licences/internal/service"
)

type MemberHandler struct{ members *service.MemberService }

func NewMemberHandler(members *service.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

// POST /api/members
func (h *MemberHandler) Upsert(c *gin.Context) {
	var m model.Member
	if err := c.ShouldBindJSON(&m); err != nil {
		badRequest(c, "invalid request")
		return
	}
	m.LicenceNo = strings.ToUpper(strings.TrimSpace(m.LicenceNo))
	if err := h.members.Upsert(c.Request.Context(), &m); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "licence_no": m.LicenceNo})
}

// POST /api/members/stub
func (h *MemberHandler) Stub(c *gin.Context) {
	var req model.StubRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	lic := strings.ToUpper(strings.TrimSpace(req.LicenceNo))
	if err := h.members.EnsureStub(c.Request.Context(), lic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "licence_no": lic})
}

// GET /api/members?q=&limit=
func (h *MemberHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	members, err := h.members.List(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	c.JSON(http.StatusOK, members)
}
