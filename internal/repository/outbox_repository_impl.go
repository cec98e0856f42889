package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formplatform/form-events/internal/model"
)

// OutboxRepositoryImpl implements OutboxRepository using PostgreSQL.
type OutboxRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewOutboxRepositoryImpl creates a new OutboxRepository implementation.
func NewOutboxRepositoryImpl(pool *pgxpool.Pool) OutboxRepository {
	return &OutboxRepositoryImpl{pool: pool}
}

// CreateEvent appends a PENDING outbox event. Called inside the producer's
// business transaction so the event never outlives a rolled-back write.
func (r *OutboxRepositoryImpl) CreateEvent(
	ctx context.Context, params *model.CreateOutboxEventParams,
) (*model.OutboxEvent, error) {
	event := &model.OutboxEvent{
		Channel: params.Channel,
		Payload: params.Payload,
		Status:  model.OutboxStatusPending,
	}

	err := db(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO outbox_events (channel, payload, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		params.Channel, params.Payload, model.OutboxStatusPending,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	return event, nil
}

// GetDeliverableEvents returns up to limit PENDING events whose next_retry_at
// is unset or has passed, oldest first.
func (r *OutboxRepositoryImpl) GetDeliverableEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT id, channel, payload, status, created_at, retry_count, next_retry_at
		 FROM outbox_events
		 WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= now())
		 ORDER BY created_at ASC
		 LIMIT $2`,
		model.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutboxEvents(rows)
}

// MarkSent marks an outbox event as delivered.
func (r *OutboxRepositoryImpl) MarkSent(ctx context.Context, id int64) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events SET status = $1 WHERE id = $2`,
		model.OutboxStatusSent, id,
	)

	return err
}

// MarkFailed marks an outbox event as permanently failed.
func (r *OutboxRepositoryImpl) MarkFailed(ctx context.Context, id int64) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events SET status = $1 WHERE id = $2`,
		model.OutboxStatusFailed, id,
	)

	return err
}

// IncrementRetry records a failed delivery attempt. The retry_count guard
// keeps the counter monotonic when two publisher instances race on the same
// event.
func (r *OutboxRepositoryImpl) IncrementRetry(
	ctx context.Context, id int64, retryCount int, nextRetryAt time.Time,
) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE outbox_events
		 SET retry_count = $2, next_retry_at = $3
		 WHERE id = $1 AND retry_count < $2`,
		id, retryCount, nextRetryAt,
	)

	return err
}

// CountByStatus counts outbox events in the given status.
func (r *OutboxRepositoryImpl) CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error) {
	var count int64

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE status = $1`,
		status,
	).Scan(&count)

	return count, err
}

func scanOutboxEvents(rows pgx.Rows) ([]*model.OutboxEvent, error) {
	var events []*model.OutboxEvent

	for rows.Next() {
		event := &model.OutboxEvent{}
		if err := rows.Scan(
			&event.ID, &event.Channel, &event.Payload, &event.Status,
			&event.CreatedAt, &event.RetryCount, &event.NextRetryAt,
		); err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, rows.Err()
}
