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

	"github.com/taxdesk/taxdesk/internal/app"
	"github.com/taxdesk/taxdesk/internal/documents"
	"github.com/taxdesk/taxdesk/internal/documents/storage"
	"github.com/taxdesk/taxdesk/internal/extraction"
	"github.com/taxdesk/taxdesk/internal/extraction/ocr"
	"github.com/taxdesk/taxdesk/internal/notifications"
	"github.com/taxdesk/taxdesk/internal/observability"
	"github.com/taxdesk/taxdesk/internal/orders"
	"github.com/taxdesk/taxdesk/internal/platform/cache"
	"github.com/taxdesk/taxdesk/internal/platform/db"
	"github.com/taxdesk/taxdesk/internal/shared"
	"github.com/taxdesk/taxdesk/jobs"
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
	metrics := observability.NewMetrics()

	mailer := notifications.NewSMTPSender(notifications.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	notificationsRepo := notifications.NewRepository(dbpool)
	notificationsService := notifications.NewService(
		notificationsRepo, mailer, jobClient, cfg.NotifyAccountantEmail, clock, logger)
	notificationsService.SetMetrics(metrics)

	statsCache := orders.NewStatsCache(redisClient, time.Minute)
	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, fileStore, notificationsService, jobClient, statsCache, clock, logger)
	ordersHandler := orders.NewHandler(logger, ordersService)

	documentsRepo := documents.NewRepository(dbpool)
	documentsService := documents.NewService(documentsRepo, ordersService, fileStore, logger)
	documentsHandler := documents.NewHandler(logger, documentsService)

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
	extractionService.SetMetrics(metrics)
	extractionHandler := extraction.NewHandler(logger, extractionService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		OrdersHandler:     ordersHandler,
		DocumentsHandler:  documentsHandler,
		ExtractionHandler: extractionHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
