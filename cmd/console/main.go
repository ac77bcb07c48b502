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
	"github.com/redis/go-redis/v9"

	"github.com/darklock-sec/darklock-console/internal/announce"
	"github.com/darklock-sec/darklock-console/internal/app"
	"github.com/darklock-sec/darklock-console/internal/audit"
	"github.com/darklock-sec/darklock-console/internal/auth"
	"github.com/darklock-sec/darklock-console/internal/botstatus"
	"github.com/darklock-sec/darklock-console/internal/flags"
	"github.com/darklock-sec/darklock-console/internal/identity"
	"github.com/darklock-sec/darklock-console/internal/maintenance"
	"github.com/darklock-sec/darklock-console/internal/observability"
	"github.com/darklock-sec/darklock-console/internal/platform/db"
	"github.com/darklock-sec/darklock-console/internal/shared"
	"github.com/darklock-sec/darklock-console/jobs"
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "darklock_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := audit.NewLogger(dbpool, logger)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	identityRepo := identity.NewRepository(dbpool)
	evaluator := identity.NewEvaluator(identityRepo)
	guard := identity.Middleware{Evaluator: evaluator, Operators: identityRepo, Logger: logger}
	identityService := identity.NewService(identityRepo, sessionManager, auditLogger, logger)
	identityHandler := identity.NewHandler(logger, identityService, guard)

	authRepo := auth.NewPGRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, auditLogger, metrics)

	maintenanceRepo := maintenance.NewRepository(dbpool)
	maintenanceService := maintenance.NewService(maintenanceRepo, auditLogger, jobClient, metrics, logger)
	maintenanceHandler := maintenance.NewHandler(logger, maintenanceService, guard)

	flagRepo := flags.NewRepository(dbpool)
	flagService := flags.NewService(flagRepo, evaluator, auditLogger, logger)
	flagHandler := flags.NewHandler(logger, flagService, guard)

	announceRepo := announce.NewRepository(dbpool)
	announceService := announce.NewService(announceRepo, auditLogger, jobClient, logger)
	announceHandler := announce.NewHandler(logger, announceService, guard)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audit.NewHandler(logger, auditService, guard.RequireRole(identity.RoleAdmin))

	gateway := botstatus.NewHTTPGateway(cfg.BotGatewayURL, cfg.BotGatewaySecret)
	botService := botstatus.NewService(gateway, auditLogger, logger)
	botHandler := botstatus.NewHandler(logger, botService, guard)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		IdentityHandler:    identityHandler,
		MaintenanceHandler: maintenanceHandler,
		FlagsHandler:       flagHandler,
		AnnounceHandler:    announceHandler,
		AuditHandler:       auditHandler,
		BotHandler:         botHandler,
		JobHandler:         jobHandler,
		Guard:              guard,
		Metrics:            metrics,
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
