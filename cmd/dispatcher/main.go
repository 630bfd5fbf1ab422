// Package main provides the standalone notification dispatcher. It polls
// for due notifications on an interval; multiple instances may run at once
// because each record is claimed exactly once.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payplan-sync/internal/config"
	"github.com/payplan-sync/internal/logging"
	"github.com/payplan-sync/internal/mail"
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
	logger := logging.GetGlobalLogger().WithField("component", "dispatcher")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clientRepo := storage.NewClientRepository(postgres)
	workUnitRepo := storage.NewWorkUnitRepository(postgres)
	paymentRepo := storage.NewPaymentRepository(postgres)
	linkRepo := storage.NewPortalLinkRepository(postgres)
	notificationRepo := storage.NewNotificationRepository(postgres)

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

	tokens := service.NewTokenService(linkRepo, cfg.Portal.BaseURL, cfg.Portal.LinkTTL())
	dispatcher := service.NewDispatchService(notificationRepo, paymentRepo, workUnitRepo, clientRepo, tokens, mailer, cfg.Dispatcher.BatchSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.WithFields(map[string]interface{}{
		"interval":   cfg.Dispatcher.Interval.String(),
		"batch_size": cfg.Dispatcher.BatchSize,
	}).Info("Dispatcher starting")

	ticker := time.NewTicker(cfg.Dispatcher.Interval)
	defer ticker.Stop()

	// Run one pass immediately rather than waiting out the first tick.
	runPass(ctx, dispatcher, logger)

	for {
		select {
		case <-ticker.C:
			runPass(ctx, dispatcher, logger)
		case <-quit:
			logger.Info("Shutdown signal received")
			cancel()
			return
		}
	}
}

func runPass(ctx context.Context, dispatcher *service.DispatchService, logger *logging.Logger) {
	passCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if _, err := dispatcher.ProcessDue(passCtx); err != nil {
		logger.WithError(err).Error("Dispatch pass failed")
	}
}
