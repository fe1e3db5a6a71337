package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/safar/sportshop/internal/models"
)

// EnqueueEvent writes an event to the outbox inside the caller's transaction.
func EnqueueEvent(ctx context.Context, tx *sql.Tx, eventType string, aggregateID int64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (event_id, event_type, aggregate_id, payload, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())`,
		uuid.NewString(), eventType, aggregateID, string(data), models.OutboxPending)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}

	return nil
}

// ClaimPendingEvents locks up to limit pending events, oldest first. Rows
// already locked by another relay are skipped.
func ClaimPendingEvents(ctx context.Context, tx *sql.Tx, limit int) ([]models.OutboxEvent, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, event_id, event_type, aggregate_id, payload, status, created_at, published_at
		 FROM outbox_events
		 WHERE status = $1
		 ORDER BY created_at, id
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		models.OutboxPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var events []models.OutboxEvent
	for rows.Next() {
		var e models.OutboxEvent
		var payload []byte
		err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.AggregateID, &payload, &e.Status, &e.CreatedAt, &e.PublishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func MarkEventsPublished(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE outbox_events
		 SET status = $1, published_at = NOW()
		 WHERE id = ANY($2)`,
		models.OutboxPublished, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}

	return nil
}

func CountPendingEvents(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`,
		models.OutboxPending).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return n, nil
}
