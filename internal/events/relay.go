// Package events relays the transactional outbox to Kafka.
package events

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/safar/sportshop/internal/database"
	"github.com/safar/sportshop/internal/metrics"
	"github.com/safar/sportshop/internal/store"
)

// Relay moves pending outbox rows to a Publisher. Rows are marked published
// in the same transaction that claimed them, so a failed publish leaves them
// pending for the next tick. Delivery is at least once.
type Relay struct {
	db        *sql.DB
	publisher Publisher
	batchSize int
	interval  time.Duration
}

func NewRelay(db *sql.DB, publisher Publisher, batchSize int, interval time.Duration) *Relay {
	if batchSize < 1 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{db: db, publisher: publisher, batchSize: batchSize, interval: interval}
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "outbox relay started", "batch_size", r.batchSize, "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.drain(ctx)

		select {
		case <-ctx.Done():
			slog.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for {
		n, err := r.RelayBatch(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.WarnContext(ctx, "outbox batch failed", "error", err)
			}
			return
		}
		if n < r.batchSize {
			return
		}
	}
}

// RelayBatch publishes one batch and returns how many events it published.
func (r *Relay) RelayBatch(ctx context.Context) (int, error) {
	var published int

	err := database.WithTransaction(ctx, r.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		pending, err := store.ClaimPendingEvents(ctx, tx, r.batchSize)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		if err := r.publisher.Publish(ctx, pending); err != nil {
			return err
		}

		ids := make([]int64, len(pending))
		for i, e := range pending {
			ids[i] = e.ID
		}
		if err := store.MarkEventsPublished(ctx, tx, ids); err != nil {
			return err
		}

		published = len(pending)
		return nil
	})
	if err != nil {
		metrics.OutboxPublished.WithLabelValues("error").Inc()
		return 0, err
	}

	if published > 0 {
		metrics.OutboxPublished.WithLabelValues("ok").Add(float64(published))
		slog.DebugContext(ctx, "outbox events published", "count", published)
	}
	return published, nil
}
