package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ConnecteDigital/connect-financeiro/internal/amqp"
	"github.com/ConnecteDigital/connect-financeiro/internal/auth"
	"github.com/ConnecteDigital/connect-financeiro/internal/config"
	"github.com/ConnecteDigital/connect-financeiro/internal/dispatch"
	apphttp "github.com/ConnecteDigital/connect-financeiro/internal/http"
	applog "github.com/ConnecteDigital/connect-financeiro/internal/log"
	"github.com/ConnecteDigital/connect-financeiro/internal/storage"
	"github.com/ConnecteDigital/connect-financeiro/internal/whatsapp"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

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

	// Outbound channel: direct Twilio calls, or the broker when the report
	// worker owns the actual sends.
	var channel dispatch.Channel
	switch cfg.DeliveryMode {
	case config.DeliveryAMQP:
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
		channel = amqp.NewPublishingChannel(amqpClient)
		logger.Info("Delivery mode: amqp", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	default:
		twilioClient := whatsapp.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppFrom)
		if !twilioClient.Configured() {
			logger.Warn("Twilio credentials missing, report sends will fail until configured")
		}
		channel = twilioClient
		logger.Info("Delivery mode: direct")
	}

	dispatcher := dispatch.New(repo, repo, channel, repo)

	if cfg.AuthGatewayURL == "" {
		logger.Warn("AUTH_GATEWAY_URL not set, authenticated API routes will reject every request")
	}
	verifier := auth.NewGatewayClient(cfg.AuthGatewayURL)

	srv := apphttp.NewServer(":"+cfg.Port, dispatcher, repo, verifier, cfg.CronSecret)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 5 * time.Minute // batch runs answer synchronously
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting financeiro server", applog.FieldOperation, applog.OpStartup, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
