package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"expendables/internal/amqp"
	"expendables/internal/config"
	applog "expendables/internal/log"
	"expendables/internal/storage"
	"expendables/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New("worker", cfg.LogLevel)
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewLedgerRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open ledger repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outbox := worker.NewOutboxWorker(repo, amqpClient, cfg.OutboxBatchSize)

	// Open the current month's ledger row up front, then again on the
	// configured schedule so month boundaries never race a first request.
	if err := worker.EnsureCurrentMonth(ctx, repo); err != nil {
		logger.Error("Failed to ensure current month", "error", err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RolloverSchedule, func() {
		if err := worker.EnsureCurrentMonth(ctx, repo); err != nil {
			logger.Error("Month rollover sweep failed", "error", err)
		} else {
			logger.Info("Month rollover sweep completed")
		}
	}); err != nil {
		logger.Error("Invalid rollover schedule", "error", err, "schedule", cfg.RolloverSchedule)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return outbox.Run(gctx, cfg.OutboxInterval)
	})

	// Consume the published stream back off the queue as an audit trail,
	// the only in-repo consumer of the ledger events.
	eventLog := logger.WithComponent("events")
	g.Go(func() error {
		return amqpClient.ConsumeLedgerEvents(gctx, func(msg *amqp.LedgerEventMessage) error {
			eventLog.Info("Ledger event received",
				"id", msg.ID,
				"type", msg.Type,
				"month_key", msg.MonthKey)
			return nil
		})
	})

	logger.Info("Starting expendables worker",
		"batch_size", cfg.OutboxBatchSize,
		"interval", cfg.OutboxInterval,
		"exchange", cfg.AMQPExchange)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
