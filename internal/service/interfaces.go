// Package service provides business logic layer implementations.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/formplatform/form-events/internal/model"
)

// FormService defines business logic methods for form submission.
type FormService interface {
	SubmitForm(ctx context.Context, params *model.SubmitFormParams) (*model.Form, error)
	GetForm(ctx context.Context, id uuid.UUID) (*model.Form, error)
}

// OutboxService defines business logic methods for outbox event delivery.
type OutboxService interface {
	ProcessDeliverableEvents(ctx context.Context, limit int) error
}

// Outcome classifies one handler run so the orchestrator's branching is a
// plain state-machine decision instead of error-type inspection.
type Outcome int

const (
	// OutcomeSuccess means the item was processed and can be resolved DONE.
	OutcomeSuccess Outcome = iota
	// OutcomeRetry means processing failed transiently and should be retried.
	OutcomeRetry
	// OutcomeFail means processing failed permanently; no retry will help.
	OutcomeFail
)

// PresentationHandler contains the side-effecting business logic invoked for
// each claimed inbox item. The returned error carries detail for logging and
// propagation; the Outcome alone drives state transitions.
type PresentationHandler interface {
	Execute(ctx context.Context, formID uuid.UUID) (Outcome, error)
}

// InboxService defines the claim/resolve engine, the processing orchestrator
// and the periodic safety nets around them.
type InboxService interface {
	Receive(ctx context.Context, formID uuid.UUID) error
	ProcessNow(ctx context.Context, formID uuid.UUID) error
	ProcessPendingBatch(ctx context.Context, limit int) error
	RecoverStuck(ctx context.Context, olderThan time.Time) (int64, error)
	AuditBacklog(ctx context.Context, since time.Time) error
}

// HealthReport is the read-only backlog signal consumed by readiness probes.
type HealthReport struct {
	Healthy bool             `json:"healthy"`
	Counts  map[string]int64 `json:"counts"`
	Message string           `json:"message,omitempty"`
}

// HealthService exposes backlog aggregates for readiness reporting. It
// performs no mutation.
type HealthService interface {
	OutboxHealth(ctx context.Context) (*HealthReport, error)
	InboxHealth(ctx context.Context) (*HealthReport, error)
}
