package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atelier-hq/atelier/internal/app"
	"github.com/atelier-hq/atelier/internal/audit"
	"github.com/atelier-hq/atelier/internal/authz"
	"github.com/atelier-hq/atelier/internal/chat"
	"github.com/atelier-hq/atelier/internal/identity"
	"github.com/atelier-hq/atelier/internal/notify"
	"github.com/atelier-hq/atelier/internal/observability"
	"github.com/atelier-hq/atelier/internal/platform/cache"
	"github.com/atelier-hq/atelier/internal/platform/db"
	"github.com/atelier-hq/atelier/internal/projects"
	"github.com/atelier-hq/atelier/internal/realtime"
	"github.com/atelier-hq/atelier/internal/workflow"
	"github.com/atelier-hq/atelier/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	sessions := identity.NewSessionStore(redisClient, cfg.SessionTTL)
	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo)
	identityHandler := identity.NewHandler(logger, identityService, sessions)

	projectsRepo := projects.NewRepository(pool)

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(auditRepo, logger)
	auditService := audit.NewService(auditRepo)
	auditHandler := audit.NewHandler(logger, auditService)

	broker := realtime.NewBroker(sessions, logger, metrics)
	gateway := realtime.NewGateway(broker, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	enqueuer := jobs.NewEnqueuer(redisOpts)
	defer func() {
		if err := enqueuer.Close(); err != nil {
			logger.Warn("enqueuer close", slog.Any("error", err))
		}
	}()

	settingsRepo := notify.NewSettingsRepository(pool)
	settingsCache := notify.NewSettingsCache(settingsRepo, redisClient, cfg.SettingsCacheTTL)

	notifyRepo := notify.NewRepository(pool)
	notifyService := notify.NewService(notifyRepo, projectsRepo, identityService, settingsCache, broker, enqueuer, metrics, logger)
	notifyHandler := notify.NewHandler(logger, notifyService, settingsRepo, settingsCache)

	workflowRepo := workflow.NewRepository(pool)
	workflowService := workflow.NewService(workflowRepo, projectsRepo, identityService, authz.NewMatrix(), recorder, notifyService, logger)
	workflowHandler := workflow.NewHandler(logger, workflowService, workflowRepo, metrics)

	chatRepo := chat.NewRepository(pool)
	chatService := chat.NewService(chatRepo, projectsRepo, identityService, notifyService, broker, logger)
	chatHandler := chat.NewHandler(logger, chatService)

	jobsHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), logger)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Sessions:        sessions,
		Identity:        identityService,
		IdentityHandler: identityHandler,
		WorkflowHandler: workflowHandler,
		ChatHandler:     chatHandler,
		NotifyHandler:   notifyHandler,
		AuditHandler:    auditHandler,
		JobsHandler:     jobsHandler,
		Gateway:         gateway,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	broker.Shutdown()
}
