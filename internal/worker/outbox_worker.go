package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"expendables/internal/amqp"
	"expendables/internal/core"
	"expendables/internal/storage"
)

// EventPublisher is the slice of the AMQP client the worker needs.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, msg *amqp.LedgerEventMessage) error
}

// OutboxWorker drains unpublished ledger events from the outbox table to
// the message broker. Events are published in insertion order and marked
// published one by one, so a crash mid-batch re-delivers at-least-once
// rather than losing events.
type OutboxWorker struct {
	repo      *storage.LedgerRepository
	publisher EventPublisher
	batchSize int
}

func NewOutboxWorker(repo *storage.LedgerRepository, publisher EventPublisher, batchSize int) *OutboxWorker {
	return &OutboxWorker{
		repo:      repo,
		publisher: publisher,
		batchSize: batchSize,
	}
}

// DrainOnce publishes up to one batch of pending events and reports how
// many went out.
func (w *OutboxWorker) DrainOnce(ctx context.Context) (int, error) {
	events, err := w.repo.Queries().ListUnpublishedEvents(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unpublished events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	published := 0
	for _, ev := range events {
		msg := amqp.NewLedgerEventMessage(ev.ID, ev.Type, string(ev.MonthKey), ev.Payload)
		if err := w.publisher.PublishLedgerEvent(ctx, msg); err != nil {
			// Stop at the first failure to keep publication ordered.
			return published, fmt.Errorf("publish event %d: %w", ev.ID, err)
		}
		if err := w.repo.Queries().MarkEventPublished(ctx, ev.ID); err != nil {
			return published, fmt.Errorf("mark event %d published: %w", ev.ID, err)
		}
		published++
	}

	slog.InfoContext(ctx, "Drained outbox", "published", published)
	return published, nil
}

// Run drains the outbox on a fixed interval until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First pass right away so restarts don't wait a full interval.
	if _, err := w.DrainOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial outbox drain failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.DrainOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "Outbox drain failed", "error", err)
			}
		}
	}
}

// EnsureCurrentMonth opens the ledger row for the wall-clock month so the
// first request of a new month never races the rollover.
func EnsureCurrentMonth(ctx context.Context, repo *storage.LedgerRepository) error {
	key := core.MonthKey(time.Now().Format("2006-01"))
	return repo.InTx(ctx, func(q *storage.Queries) error {
		return q.InsertMonthIfAbsent(ctx, key)
	})
}
