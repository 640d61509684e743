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

	"github.com/campuslink/campuslink-admin/internal/app"
	"github.com/campuslink/campuslink-admin/internal/broadcast"
	"github.com/campuslink/campuslink-admin/internal/guard"
	"github.com/campuslink/campuslink-admin/internal/history"
	"github.com/campuslink/campuslink-admin/internal/identity"
	"github.com/campuslink/campuslink-admin/internal/observability"
	"github.com/campuslink/campuslink-admin/internal/platform/cache"
	"github.com/campuslink/campuslink-admin/internal/platform/db"
	"github.com/campuslink/campuslink-admin/internal/shared"
	"github.com/campuslink/campuslink-admin/internal/users"
	"github.com/campuslink/campuslink-admin/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "campuslink_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	resolver := guard.NewResolver(guard.NewPGAdminChecker(dbpool))

	identityRepo := identity.NewRepository(dbpool)
	identityService := identity.NewService(identityRepo)
	authHandler := identity.NewHandler(logger, identityService, sessionManager, csrfManager, resolver)

	guardMiddleware := guard.Middleware{
		Resolver:   resolver,
		Identities: identity.SessionSource{},
		Logger:     logger,
		LoginPath:  cfg.LoginPath,
	}

	historyStore := history.NewStore(history.NewRedisKV(redisClient), cfg.HistoryKey, cfg.HistoryCapacity, logger)
	if err := historyStore.Load(ctx); err != nil {
		logger.Warn("load broadcast history", slog.Any("error", err))
	}

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	dispatcher := jobs.NewBroadcastDispatcher(jobClient)

	metrics := observability.NewMetrics()

	engine := broadcast.NewEngine(historyStore, dispatcher, metrics, logger)
	broadcastHandler := broadcast.NewHandler(logger, engine, historyStore, auditLogger)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, auditLogger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		AuthHandler:      authHandler,
		BroadcastHandler: broadcastHandler,
		UsersHandler:     usersHandler,
		Guard:            guardMiddleware,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
}
