package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"scan-licences/internal/backup"
	"scan-licences/internal/checkin"
	"scan-licences/internal/config"
	"scan-licences/internal/enrich"
	"scan-licences/internal/export"
	"scan-licences/internal/handler"
	"scan-licences/internal/logger"
	"scan-licences/internal/middleware"
	"scan-licences/internal/service"
	"scan-licences/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log, "server")

	cal, err := cfg.Calendar()
	if err != nil {
		logger.Error("season config invalid", "err", err)
		os.Exit(1)
	}
	db, err := cfg.OpenGormDB()
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	service.SetQueryTimeout(cfg.QueryTimeout())
	if err := service.Migrate(db); err != nil {
		logger.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	photos, backups, err := cfg.OpenBuckets(ctx)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}

	authSvc := service.NewAuthService(db)
	sessions := service.NewSessionService(db, cal)
	entries := service.NewEntryService(db)
	members := service.NewMemberService(db)

	fn := enrich.NewFunction(photos, cal, cfg.Enrich.UserAgent, cfg.EnrichTimeout())
	enricher := enrich.New(fn, enrich.NewTextProxy(cfg.Enrich.ProxyURL, cfg.EnrichTimeout()), cal, cfg.EnrichTimeout())
	pipeline := checkin.NewPipeline(enricher, members, entries)

	engine := export.NewEngine(entries, members, sessions, cal)
	job := backup.NewJob(entries, members, backups, cal)
	tokens := middleware.NewTokens(cfg.Server.JWTSecret, cfg.TokenTTL())

	if cfg.Backup.Enabled {
		sched, err := backup.Schedule(cfg.Backup.Schedule, cal, job, 10*time.Minute)
		if err != nil {
			logger.Error("backup schedule invalid", "err", err)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
		logger.Info("backup scheduled", "spec", cfg.Backup.Schedule)
	}

	gin.SetMode(gin.ReleaseMode)
	r := handler.NewRouter(handler.Routes{
		Tokens:  tokens,
		Allowed: authSvc.IsAllowed,
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		Auth:     handler.NewAuthHandler(authSvc, tokens),
		Sessions: handler.NewSessionHandler(sessions, entries),
		Entries:  handler.NewEntryHandler(entries),
		Members:  handler.NewMemberHandler(members),
		Scan:     handler.NewScanHandler(pipeline),
		Profile:  handler.NewProfileHandler(fn),
		Export:   handler.NewExportHandler(engine, job),
	})
	if dir, ok := photos.(*storage.DirBucket); ok {
		r.Static("/media/"+cfg.Storage.PhotosBucket, dir.Root())
	}

	srv := &http.Server{Addr: cfg.Addr(), Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "err", err)
	}
	if gcs, ok := photos.(*storage.GCSBucket); ok {
		gcs.Close()
	}
	if gcs, ok := backups.(*storage.GCSBucket); ok {
		gcs.Close()
	}
	logger.Info("server stopped")
}
