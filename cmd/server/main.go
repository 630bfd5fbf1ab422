// Package main provides the API server entry point for the payment plan
// pipeline.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payplan-sync/internal/api"
	"github.com/payplan-sync/internal/config"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
	"github.com/payplan-sync/internal/ratelimit"
	"github.com/payplan-sync/internal/service"
	"github.com/payplan-sync/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// The actor rate limiter degrades to per-process limiting when Redis
	// is unavailable; the server still comes up.
	var limiter ratelimit.Limiter
	redisClient, err := storage.NewRedisClient(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, falling back to in-process rate limiting")
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute, cfg.RateLimit.Burst)
	} else {
		defer redisClient.Close()
		limiter, err = ratelimit.NewRedisLimiter(&ratelimit.RedisLimiterConfig{
			Redis:             redisClient.Client(),
			RequestsPerWindow: cfg.RateLimit.RequestsPerMinute,
			WindowSize:        time.Minute,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create rate limiter")
		}
	}

	logger.Info("Connections established")

	// Repositories
	clientRepo := storage.NewClientRepository(postgres)
	batchRepo := storage.NewBatchRepository(postgres)
	workUnitRepo := storage.NewWorkUnitRepository(postgres)
	paymentRepo := storage.NewPaymentRepository(postgres)
	linkRepo := storage.NewPortalLinkRepository(postgres)
	notificationRepo := storage.NewNotificationRepository(postgres)
	eventRepo := storage.NewConfirmationEventRepository(postgres)

	// Mail transport
	var mailer mail.Mailer
	switch cfg.Mail.Transport {
	case "console":
		mailer = mail.NewConsoleMailer(logger)
	default:
		mailer, err = mail.NewSMTPMailer(&cfg.Mail)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create SMTP mailer")
		}
	}

	// Services
	tokens := service.NewTokenService(linkRepo, cfg.Portal.BaseURL, cfg.Portal.LinkTTL())
	sessionService := service.NewSessionService(batchRepo, logger)
	syncService := service.NewSyncService(clientRepo, batchRepo, workUnitRepo, paymentRepo, logger)
	dispatchService := service.NewDispatchService(notificationRepo, paymentRepo, workUnitRepo, clientRepo, tokens, mailer, cfg.Dispatcher.BatchSize, logger)
	scheduleService := service.NewScheduleService(clientRepo, workUnitRepo, paymentRepo, notificationRepo, dispatchService, logger)
	portalService := service.NewPortalService(linkRepo, clientRepo, paymentRepo, logger)
	paymentService := service.NewPaymentService(workUnitRepo, paymentRepo, eventRepo, logger)

	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			CronSecret:      cfg.Server.CronSecret,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Limiter:         limiter,
		},
		sessionService,
		syncService,
		scheduleService,
		dispatchService,
		portalService,
		paymentService,
		notificationRepo,
		logger,
	)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("API server stopped")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}

	logger.Info("Server stopped")
}
