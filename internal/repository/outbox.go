package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/outbox"
)

const (
	insertOutboxSQL = `INSERT INTO outbox (event_id, topic, key, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)`

	fetchPendingOutboxSQL = `SELECT id, event_id, topic, key, payload, created_at, sent_at
	FROM outbox WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = $1`
)

var (
	_ outbox.Store  = (*OutboxRepository)(nil)
	_ outbox.Source = (*OutboxRepository)(nil)
)

// OutboxRepository stores events in the outbox table.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

// Insert stores rec, inside the caller's transaction when ctx carries one.
func (r *OutboxRepository) Insert(ctx context.Context, rec outbox.Record) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertOutboxSQL,
		rec.EventID, rec.Topic, rec.Key, rec.Payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting outbox event %q: %w", rec.EventID, err)
	}
	return nil
}

// FetchPending returns up to limit unsent records, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, fetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching pending outbox events: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Record, error) {
		var rec outbox.Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &rec.Payload, &rec.CreatedAt, &rec.SentAt)
		return rec, err
	})
}

// MarkSent records that the event was published.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, markOutboxSentSQL, id); err != nil {
		return fmt.Errorf("marking outbox event %d sent: %w", id, err)
	}
	return nil
}
