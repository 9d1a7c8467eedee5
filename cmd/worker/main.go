package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/taxdesk/taxdesk/internal/app"
	"github.com/taxdesk/taxdesk/internal/documents"
	"github.com/taxdesk/taxdesk/internal/documents/storage"
	"github.com/taxdesk/taxdesk/internal/extraction"
	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/notifications"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/platform/db"
	"github.com/taxdesk/taxdesk/internal/shared"
	"github.com/taxdesk/taxdesk/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	fileStore, err := storage.NewLocalStore(cfg.StorageDir)
	if err != nil {
		logger.Error("init file store", slog.Any("error", err))
		os.Exit(1)
	}

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

	clock := shared.SystemClock{}

	mailer := notifications.NewSMTPSender(notifications.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	notificationsRepo := notifications.NewRepository(dbpool)
	// The worker delivers mail itself, so no dispatcher indirection here.
	notificationsService := notifications.NewService(
		notificationsRepo, mailer, nil, cfg.NotifyAccountantEmail, clock, logger)

	ordersRepo := orders.NewRepository(dbpool)
	documentsRepo := documents.NewRepository(dbpool)

	ocrClient := ocr.NewHTTPClient(ocr.Config{
		BaseURL:    cfg.OCRBaseURL,
		APIKey:     cfg.OCRAPIKey,
		ModelID:    cfg.OCRModelID,
		WebhookURL: cfg.OCRWebhookURL,
		Timeout:    cfg.OCRTimeout,
	}, logger)
	extractionRepo := extraction.NewRepository(dbpool)
	extractionService := extraction.NewService(
		extractionRepo, documentsRepo, ordersRepo, fileStore, ocrClient,
		notificationsService, clock, logger)

	handlers := jobs.NewHandlers(extractionService, notificationsService, cfg.ExtractionStaleAfter, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ExtractionSweepCron, Task: jobs.NewExtractionSweepTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
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
