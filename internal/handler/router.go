package handler

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"scan-licences/internal/middleware"
)

// Routes holds every handler the API serves. Profile and Export may be nil
// when their backing services are not configured.
type Routes struct {
	Tokens   *middleware.Tokens
	Allowed  middleware.AllowList
	Ping     func(ctx context.Context) error
	Auth     *AuthHandler
	Sessions *SessionHandler
	Entries  *EntryHandler
	Members  *MemberHandler
	Scan     *ScanHandler
	Profile  *ProfileHandler
	Export   *ExportHandler
}

func NewRouter(rt Routes) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition", "X-New-Token"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		if rt.Ping != nil {
			if err := rt.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/api/login", rt.Auth.Login)

	auth := middleware.JWTAuth(rt.Tokens, rt.Allowed)
	if rt.Profile != nil {
		r.POST("/functions/profile", auth, rt.Profile.Lookup)
	}

	api := r.Group("/api", auth)
	api.POST("/sessions/today", rt.Sessions.OpenToday)
	api.GET("/sessions/today", rt.Sessions.Today)
	api.GET("/sessions", rt.Sessions.List)
	api.GET("/sessions/:id/entries", rt.Sessions.Entries)
	api.POST("/entries", rt.Entries.Create)
	api.GET("/stats", rt.Entries.Stats)
	api.POST("/members", rt.Members.Upsert)
	api.POST("/members/stub", rt.Members.Stub)
	api.GET("/members", rt.Members.List)
	if rt.Scan != nil {
		api.POST("/scan", rt.Scan.Scan)
	}

	admin := api.Group("", middleware.RequireAdmin())
	admin.DELETE("/entries/:id", rt.Entries.Delete)
	if rt.Export != nil {
		api.GET("/export", rt.Export.Export)
		admin.POST("/admin/backup", rt.Export.Backup)
	}
	return r
}
