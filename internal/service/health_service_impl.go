package service

import (
	"context"
	"fmt"
	"time"

	"github.com/formplatform/form-events/internal/model"
	"github.com/formplatform/form-events/internal/repository"
)

// HealthThresholds holds the backlog limits beyond which a store is reported
// unhealthy.
type HealthThresholds struct {
	OutboxFailed     int64
	InboxFailed      int64
	InboxStale       int64
	InboxStaleWindow time.Duration
}

// HealthServiceImpl implements HealthService with read-only aggregate queries
// over both stores.
type HealthServiceImpl struct {
	outboxRepo repository.OutboxRepository
	inboxRepo  repository.InboxRepository
	thresholds HealthThresholds
}

// NewHealthServiceImpl creates a new HealthService implementation. Either
// repository may be nil when the service only runs on one side of the
// channel; the corresponding health method must not be called then.
func NewHealthServiceImpl(
	outboxRepo repository.OutboxRepository,
	inboxRepo repository.InboxRepository,
	thresholds HealthThresholds,
) HealthService {
	return &HealthServiceImpl{
		outboxRepo: outboxRepo,
		inboxRepo:  inboxRepo,
		thresholds: thresholds,
	}
}

// OutboxHealth reports unhealthy when too many events have permanently
// failed, which signals the channel is likely broken.
func (s *HealthServiceImpl) OutboxHealth(ctx context.Context) (*HealthReport, error) {
	failed, err := s.outboxRepo.CountByStatus(ctx, model.OutboxStatusFailed)
	if err != nil {
		return nil, err
	}

	pending, err := s.outboxRepo.CountByStatus(ctx, model.OutboxStatusPending)
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Healthy: true,
		Counts: map[string]int64{
			"failed_events":  failed,
			"pending_events": pending,
		},
	}

	if failed >= s.thresholds.OutboxFailed {
		report.Healthy = false
		report.Message = "too many failed outbox events, channel publishing may be broken"
	}

	return report, nil
}

// InboxHealth reports unhealthy when too many items have permanently failed
// or have sat PENDING beyond the staleness window.
func (s *HealthServiceImpl) InboxHealth(ctx context.Context) (*HealthReport, error) {
	failed, err := s.inboxRepo.CountByStatus(ctx, model.InboxStatusFailed)
	if err != nil {
		return nil, err
	}

	stalePending, err := s.inboxRepo.CountStalePending(ctx, time.Now().Add(-s.thresholds.InboxStaleWindow))
	if err != nil {
		return nil, err
	}

	report := &HealthReport{
		Healthy: true,
		Counts: map[string]int64{
			"failed_items":        failed,
			"stale_pending_items": stalePending,
		},
	}

	switch {
	case failed >= s.thresholds.InboxFailed:
		report.Healthy = false
		report.Message = "too many permanently failed inbox items"
	case stalePending >= s.thresholds.InboxStale:
		report.Healthy = false
		report.Message = fmt.Sprintf("too many pending inbox items older than %s", s.thresholds.InboxStaleWindow)
	}

	return report, nil
}
