package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/formplatform/form-events/internal/backoff"
	"github.com/formplatform/form-events/internal/channel"
	"github.com/formplatform/form-events/internal/repository"
)

// OutboxServiceImpl implements OutboxService: it drains deliverable events to
// the channel, retrying each event independently with exponential backoff and
// giving up permanently after maxRetries attempts.
type OutboxServiceImpl struct {
	outboxRepo repository.OutboxRepository
	sender     channel.Sender
	backoff    backoff.Exponential
	maxRetries int
	now        func() time.Time
}

// NewOutboxServiceImpl creates a new OutboxService implementation.
func NewOutboxServiceImpl(
	outboxRepo repository.OutboxRepository,
	sender channel.Sender,
	backoffPolicy backoff.Exponential,
	maxRetries int,
) OutboxService {
	return &OutboxServiceImpl{
		outboxRepo: outboxRepo,
		sender:     sender,
		backoff:    backoffPolicy,
		maxRetries: maxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ProcessDeliverableEvents runs one publisher cycle: fetch up to limit
// deliverable events, send each synchronously, and advance its state. A
// failing event never blocks the rest of the batch.
func (s *OutboxServiceImpl) ProcessDeliverableEvents(ctx context.Context, limit int) error {
	events, err := s.outboxRepo.GetDeliverableEvents(ctx, limit)
	if err != nil {
		return err
	}

	for _, event := range events {
		if err := s.sender.Send(ctx, event.Channel, event.Payload); err != nil {
			s.recordFailedAttempt(ctx, event.ID, event.RetryCount, err)

			continue
		}

		if err := s.outboxRepo.MarkSent(ctx, event.ID); err != nil {
			slog.Error("failed to mark outbox event as sent",
				slog.Int64("event_id", event.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		slog.Info("published outbox event",
			slog.Int64("event_id", event.ID),
			slog.String("channel", event.Channel),
		)
	}

	return nil
}

// recordFailedAttempt bumps the retry counter with backoff and, once the
// retry budget is exhausted, marks the event permanently FAILED.
func (s *OutboxServiceImpl) recordFailedAttempt(ctx context.Context, eventID int64, retryCount int, sendErr error) {
	newCount := retryCount + 1
	nextRetryAt := s.backoff.NextRetryAt(s.now(), newCount)

	slog.Warn("failed to publish outbox event, will retry",
		slog.Int64("event_id", eventID),
		slog.Int("retry_count", newCount),
		slog.Time("next_retry_at", nextRetryAt),
		slog.String("error", sendErr.Error()),
	)

	if err := s.outboxRepo.IncrementRetry(ctx, eventID, newCount, nextRetryAt); err != nil {
		slog.Error("failed to record outbox retry",
			slog.Int64("event_id", eventID),
			slog.String("error", err.Error()),
		)

		return
	}

	if newCount >= s.maxRetries {
		if err := s.outboxRepo.MarkFailed(ctx, eventID); err != nil {
			slog.Error("failed to mark outbox event as failed",
				slog.Int64("event_id", eventID),
				slog.String("error", err.Error()),
			)

			return
		}

		slog.Error("outbox event permanently failed, operator intervention required",
			slog.Int64("event_id", eventID),
			slog.Int("retry_count", newCount),
		)
	}
}
