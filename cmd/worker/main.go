package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/darklock-sec/darklock-console/internal/app"
	"github.com/darklock-sec/darklock-console/internal/auth"
	"github.com/darklock-sec/darklock-console/internal/platform/db"
	"github.com/darklock-sec/darklock-console/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	authRepo := auth.NewPGRepository(pool)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:         asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:            logger,
		DiscordWebhookURL: cfg.DiscordWebhookURL,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSessionCleanup, Handler: jobs.NewSessionCleanupHandler(authRepo, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "45 3 * * *", Task: jobs.NewSessionCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
		Metrics: jobs.NewMetrics(nil),
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
