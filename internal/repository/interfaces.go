// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/formplatform/form-events/internal/model"
)

// FormRepository defines methods for form data access.
type FormRepository interface {
	Create(ctx context.Context, form *model.Form) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Form, error)
}

// OutboxRepository defines methods for outbox event data access.
//
// CreateEvent participates in the caller's active transaction when one is
// present on the context, so the event commits or rolls back together with
// the business write.
type OutboxRepository interface {
	CreateEvent(ctx context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error)
	GetDeliverableEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
	IncrementRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time) error
	CountByStatus(ctx context.Context, status model.OutboxStatus) (int64, error)
}

// InboxRepository defines methods for inbox item data access. Every mutation
// is a single-row conditional update; no application-level locking exists.
type InboxRepository interface {
	Exists(ctx context.Context, formID uuid.UUID) (bool, error)
	Save(ctx context.Context, formID uuid.UUID) error
	TryClaim(ctx context.Context, formID uuid.UUID) (bool, error)
	ResolveSuccess(ctx context.Context, formID uuid.UUID) error
	ResolveRetry(ctx context.Context, formID uuid.UUID) (int, error)
	ResolveFailed(ctx context.Context, formID uuid.UUID) error
	GetRetryCount(ctx context.Context, formID uuid.UUID) (int, error)
	FindPending(ctx context.Context, limit int) ([]*model.InboxItem, error)
	FindPendingOlderThan(ctx context.Context, since time.Time) ([]*model.InboxItem, error)
	ResetStuck(ctx context.Context, olderThan time.Time) (int64, error)
	CountByStatus(ctx context.Context, status model.InboxStatus) (int64, error)
	CountStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

// TransactionManager defines methods for database transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
