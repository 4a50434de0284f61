package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scan-licences/internal/checkin"
	"scan-licences/internal/client"
	"scan-licences/internal/config"
	"scan-licences/internal/enrich"
	"scan-licences/internal/logger"
	"scan-licences/internal/outbox"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log, "kiosk")

	cal, err := cfg.Calendar()
	if err != nil {
		logger.Error("season config invalid", "err", err)
		os.Exit(1)
	}
	db, err := config.OpenSQLite(cfg.Kiosk.OutboxPath)
	if err != nil {
		logger.Error("outbox open failed", "err", err)
		os.Exit(1)
	}
	store, err := outbox.NewSQLStore(db)
	if err != nil {
		logger.Error("outbox migrate failed", "err", err)
		os.Exit(1)
	}

	timeout := cfg.RequestTimeout()
	api := client.New(cfg.Kiosk.ServerURL, cfg.Kiosk.Email, cfg.Kiosk.Password, timeout)

	functionURL := cfg.Enrich.FunctionURL
	if functionURL == "" {
		functionURL = api.BaseURL() + "/functions/profile"
	}
	enricher := enrich.New(
		enrich.NewFunctionClient(functionURL, cfg.EnrichTimeout(), api.Token),
		enrich.NewTextProxy(cfg.Enrich.ProxyURL, cfg.EnrichTimeout()),
		cal, cfg.EnrichTimeout(),
	)
	pipeline := checkin.NewPipeline(enricher, api, api)

	prober := outbox.NewProber(api.BaseURL()+"/healthz", time.Duration(cfg.Kiosk.ProbeIntervalSec)*time.Second, timeout)
	st := &station{sessions: api, conn: prober, cal: cal, out: os.Stdout, now: time.Now}
	queue := outbox.NewQueue(store, pipeline, prober,
		outbox.WithMaxAttempts(cfg.Kiosk.MaxAttempts),
		outbox.WithInterval(time.Duration(cfg.Kiosk.DrainIntervalSec)*time.Second),
		outbox.WithDropHandler(st.dropped),
	)
	st.queue = queue

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := queue.Len(ctx); err == nil && n > 0 {
		logger.Info("kiosk.outbox_pending", "items", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prober.Run(gctx) })
	g.Go(func() error { return queue.Run(gctx) })
	go func() {
		// stdin cannot be interrupted; leaving the group lets shutdown proceed
		if err := st.read(gctx, os.Stdin); err != nil {
			logger.Error("kiosk.stdin_failed", "err", err)
		}
	}()

	logger.Info("kiosk started", "server", api.BaseURL(), "outbox", cfg.Kiosk.OutboxPath)
	if err := g.Wait(); err != nil {
		logger.Error("kiosk stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("kiosk stopped")
}
