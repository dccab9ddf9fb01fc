package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voicegate/internal/auth"
	"voicegate/internal/broadcast"
	"voicegate/internal/callevent"
	"voicegate/internal/callsession"
	"voicegate/internal/cdr"
	"voicegate/internal/cloudonix"
	"voicegate/internal/config"
	"voicegate/internal/httpapi"
	"voicegate/internal/reporting"
	"voicegate/internal/tenant"
	"voicegate/internal/voiceapp"
	"voicegate/pkg/logger"
	"voicegate/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Storage
	sessions := callsession.NewPostgresRepo(db)
	cdrs := cdr.NewPostgresRepo(db)
	events := callevent.NewPostgresRepo(db)
	tenants := tenant.NewPostgresDirectory(db)
	apps := voiceapp.NewPostgresRepo(db)

	// Services
	auditSvc := callevent.NewService(events)
	reportSvc := reporting.NewService(sessions, cdrs)
	caster := broadcast.NewRedisBroadcaster(rdb)

	webhooks := &cloudonix.WebhookHandlers{
		Tenants:   tenants,
		Apps:      apps,
		Sessions:  sessions,
		Cdrs:      cdrs,
		Events:    auditSvc,
		Broadcast: caster,
		Verify:    cloudonix.Verifier{UserAgentToken: cfg.Cloudonix.UserAgentToken},
		RateCount: func(ctx context.Context, tenantID string) (int64, error) {
			return utils.WebhookRateCount(ctx, rdb, "webhooks:"+tenantID, cfg.Cloudonix.WebhookRateWindow)
		},
		RateLimit: int64(cfg.Cloudonix.WebhookRateLimit),
	}

	api := httpapi.Handlers{
		Auth:    authManager,
		Reports: reportSvc,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, webhooks, api, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
