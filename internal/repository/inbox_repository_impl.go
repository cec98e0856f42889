package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formplatform/form-events/internal/model"
)

// InboxRepositoryImpl implements InboxRepository using PostgreSQL.
//
// The form_id unique constraint makes ingestion idempotent, and the
// conditional UPDATE in TryClaim is the only mutual-exclusion mechanism
// between instances: whichever statement matches the PENDING row first wins.
type InboxRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewInboxRepositoryImpl creates a new InboxRepository implementation.
func NewInboxRepositoryImpl(pool *pgxpool.Pool) InboxRepository {
	return &InboxRepositoryImpl{pool: pool}
}

// Exists reports whether an inbox item exists for the form ID.
func (r *InboxRepositoryImpl) Exists(ctx context.Context, formID uuid.UUID) (bool, error) {
	var exists bool

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inbox_presentations WHERE form_id = $1)`,
		formID,
	).Scan(&exists)

	return exists, err
}

// Save inserts a new PENDING item. A second arrival with the same form ID is
// a no-op.
func (r *InboxRepositoryImpl) Save(ctx context.Context, formID uuid.UUID) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`INSERT INTO inbox_presentations (id, form_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (form_id) DO NOTHING`,
		uuid.New(), formID, model.InboxStatusPending,
	)

	return err
}

// TryClaim atomically transitions the item from PENDING to DOING. It returns
// false when the item is already claimed, resolved, or unknown.
func (r *InboxRepositoryImpl) TryClaim(ctx context.Context, formID uuid.UUID) (bool, error) {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE inbox_presentations
		 SET status = $1, attempted_at = now()
		 WHERE form_id = $2 AND status = $3`,
		model.InboxStatusDoing, formID, model.InboxStatusPending,
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

// ResolveSuccess marks the claimed item DONE.
func (r *InboxRepositoryImpl) ResolveSuccess(ctx context.Context, formID uuid.UUID) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE inbox_presentations
		 SET status = $1, processed_at = now()
		 WHERE form_id = $2 AND status = $3`,
		model.InboxStatusDone, formID, model.InboxStatusDoing,
	)

	return err
}

// ResolveRetry reverts the claimed item to PENDING, increments the retry
// counter and returns the new count.
func (r *InboxRepositoryImpl) ResolveRetry(ctx context.Context, formID uuid.UUID) (int, error) {
	var retryCount int

	err := db(ctx, r.pool).QueryRow(ctx,
		`UPDATE inbox_presentations
		 SET status = $1, processed_at = NULL, retry_count = retry_count + 1
		 WHERE form_id = $2 AND status = $3
		 RETURNING retry_count`,
		model.InboxStatusPending, formID, model.InboxStatusDoing,
	).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrInboxItemNotFound
	}

	return retryCount, err
}

// ResolveFailed marks the item permanently FAILED.
func (r *InboxRepositoryImpl) ResolveFailed(ctx context.Context, formID uuid.UUID) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE inbox_presentations
		 SET status = $1, processed_at = now()
		 WHERE form_id = $2`,
		model.InboxStatusFailed, formID,
	)

	return err
}

// GetRetryCount returns the current retry counter for the form ID.
func (r *InboxRepositoryImpl) GetRetryCount(ctx context.Context, formID uuid.UUID) (int, error) {
	var retryCount int

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT retry_count FROM inbox_presentations WHERE form_id = $1`,
		formID,
	).Scan(&retryCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.ErrInboxItemNotFound
	}

	return retryCount, err
}

// FindPending returns up to limit PENDING items, oldest first.
func (r *InboxRepositoryImpl) FindPending(ctx context.Context, limit int) ([]*model.InboxItem, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT id, form_id, status, received_at, attempted_at, processed_at, retry_count
		 FROM inbox_presentations
		 WHERE status = $1
		 ORDER BY received_at ASC
		 LIMIT $2`,
		model.InboxStatusPending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// FindPendingOlderThan returns PENDING items received before the given time,
// oldest first. Used by the backlog audit.
func (r *InboxRepositoryImpl) FindPendingOlderThan(ctx context.Context, since time.Time) ([]*model.InboxItem, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT id, form_id, status, received_at, attempted_at, processed_at, retry_count
		 FROM inbox_presentations
		 WHERE status = $1 AND received_at < $2
		 ORDER BY received_at ASC`,
		model.InboxStatusPending, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInboxItems(rows)
}

// ResetStuck reverts DOING items whose claim is older than olderThan back to
// PENDING, leaving retry_count untouched. This is crash recovery, not a
// processing failure.
func (r *InboxRepositoryImpl) ResetStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE inbox_presentations
		 SET status = $1, attempted_at = NULL
		 WHERE status = $2 AND attempted_at < $3`,
		model.InboxStatusPending, model.InboxStatusDoing, olderThan,
	)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

// CountByStatus counts inbox items in the given status.
func (r *InboxRepositoryImpl) CountByStatus(ctx context.Context, status model.InboxStatus) (int64, error) {
	var count int64

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM inbox_presentations WHERE status = $1`,
		status,
	).Scan(&count)

	return count, err
}

// CountStalePending counts PENDING items received before olderThan.
func (r *InboxRepositoryImpl) CountStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	var count int64

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM inbox_presentations WHERE status = $1 AND received_at < $2`,
		model.InboxStatusPending, olderThan,
	).Scan(&count)

	return count, err
}

func scanInboxItems(rows pgx.Rows) ([]*model.InboxItem, error) {
	var items []*model.InboxItem

	for rows.Next() {
		item := &model.InboxItem{}
		if err := rows.Scan(
			&item.ID, &item.FormID, &item.Status, &item.ReceivedAt,
			&item.AttemptedAt, &item.ProcessedAt, &item.RetryCount,
		); err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
