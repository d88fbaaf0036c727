package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/ConnecteDigital/connect-financeiro/internal/amqp"
	"github.com/ConnecteDigital/connect-financeiro/internal/config"
	"github.com/ConnecteDigital/connect-financeiro/internal/core"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/storage"
	"github.com/ConnecteDigital/connect-financeiro/internal/whatsapp"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting report-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	twilioClient := whatsapp.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
	if !twilioClient.Configured() {
		logger.Warn("Twilio credentials missing, report sends will fail until configured")
	}

	// The worker always sends directly; queued deliveries end here.
	dispatcher := dispatch.New(repo, repo, twilioClient, repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	schedules := []struct {
		spec string
		kind core.PeriodKind
	}{
		{cfg.WeeklyCron, core.Weekly},
		{cfg.MonthlyCron, core.Monthly},
	}
	for _, s := range schedules {
		kind := s.kind
		if _, err := scheduler.AddFunc(s.spec, func() {
			summary, err := dispatcher.RunBatch(ctx, kind)
			if err != nil {
				logger.ErrorContext(ctx, "Scheduled batch run failed",
					applog.FieldOperation, applog.OpBatchRun,
					applog.FieldPeriodKind, string(kind),
					applog.FieldError, err.Error())
				return
			}
			logger.InfoContext(ctx, "Scheduled batch run finished",
				applog.FieldOperation, applog.OpBatchRun,
				applog.FieldPeriodKind, string(kind),
				applog.FieldSent, summary.Sent,
				applog.FieldTotal, summary.Total,
				applog.FieldErrors, len(summary.Errors))
		}); err != nil {
			logger.Error("Failed to register schedule", applog.FieldError, err.Error(), "spec", s.spec)
			os.Exit(1)
		}
		logger.Info("Registered report schedule", applog.FieldPeriodKind, string(s.kind), "spec", s.spec)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// When the API publishes to the broker instead of sending directly,
	// this worker drains the queue and forwards each rendered report.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClientWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 10)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()

		go func() {
			err := amqpClient.ConsumeDeliveries(ctx, func(msg *amqp.DeliveryMessage) error {
				return twilioClient.Send(ctx, msg.Destination, msg.Body)
			})
			if err != nil && err != context.Canceled {
				logger.Error("Message consumption failed", applog.FieldError, err.Error())
				stop()
			}
		}()
	} else {
		logger.Info("AMQP disabled, running schedules only")
	}

	<-ctx.Done()
	logger.Info("Worker stopped gracefully")
}
