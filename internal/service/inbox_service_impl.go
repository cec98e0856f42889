package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/formplatform/form-events/internal/repository"
)

// InboxServiceImpl implements InboxService. Claiming is decoupled from
// resolving so that a crash between the two leaves a recoverable DOING row
// with a stale attempted_at, never a silent loss or a duplicate run.
type InboxServiceImpl struct {
	inboxRepo      repository.InboxRepository
	handler        PresentationHandler
	maxRetries     int
	handlerTimeout time.Duration
}

// NewInboxServiceImpl creates a new InboxService implementation.
func NewInboxServiceImpl(
	inboxRepo repository.InboxRepository,
	handler PresentationHandler,
	maxRetries int,
	handlerTimeout time.Duration,
) InboxService {
	return &InboxServiceImpl{
		inboxRepo:      inboxRepo,
		handler:        handler,
		maxRetries:     maxRetries,
		handlerTimeout: handlerTimeout,
	}
}

// Receive durably records an incoming form ID. A duplicate arrival is a
// no-op. After recording, it attempts immediate processing; a processing
// failure is only logged because the scheduler retries PENDING items anyway.
// An error is returned only when recording itself fails, so the entry point
// can leave the message unacknowledged for redelivery.
func (s *InboxServiceImpl) Receive(ctx context.Context, formID uuid.UUID) error {
	exists, err := s.inboxRepo.Exists(ctx, formID)
	if err != nil {
		return fmt.Errorf("failed to check inbox for form %s: %w", formID, err)
	}

	if exists {
		slog.Info("form already recorded in inbox, skipping", slog.String("form_id", formID.String()))
		return nil
	}

	if err := s.inboxRepo.Save(ctx, formID); err != nil {
		return fmt.Errorf("failed to record form %s in inbox: %w", formID, err)
	}

	slog.Info("form recorded in inbox", slog.String("form_id", formID.String()))

	if err := s.ProcessNow(ctx, formID); err != nil {
		slog.Warn("immediate processing failed, scheduler will retry",
			slog.String("form_id", formID.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// ProcessNow claims, processes and resolves one inbox item. Losing the claim
// race is not an error. The handler's error is re-raised after bookkeeping so
// callers keep visibility into what went wrong.
func (s *InboxServiceImpl) ProcessNow(ctx context.Context, formID uuid.UUID) error {
	claimed, err := s.inboxRepo.TryClaim(ctx, formID)
	if err != nil {
		return fmt.Errorf("failed to claim form %s: %w", formID, err)
	}

	if !claimed {
		slog.Info("form already claimed or resolved by another run, skipping",
			slog.String("form_id", formID.String()),
		)

		return nil
	}

	outcome, handlerErr := s.runHandler(ctx, formID)

	switch outcome {
	case OutcomeSuccess:
		if err := s.inboxRepo.ResolveSuccess(ctx, formID); err != nil {
			return fmt.Errorf("failed to resolve form %s as done: %w", formID, err)
		}

		slog.Info("form processed successfully", slog.String("form_id", formID.String()))

		return nil
	case OutcomeFail:
		s.resolvePermanently(ctx, formID, handlerErr)

		return handlerErr
	case OutcomeRetry:
		s.resolveForRetry(ctx, formID, handlerErr)

		return handlerErr
	default:
		return handlerErr
	}
}

// runHandler invokes the business handler under the per-item timeout. A
// handler that panics or hangs must not wedge the scheduler cycle forever.
func (s *InboxServiceImpl) runHandler(ctx context.Context, formID uuid.UUID) (Outcome, error) {
	if s.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.handlerTimeout)

		defer cancel()
	}

	return s.handler.Execute(ctx, formID)
}

// resolveForRetry reverts the item to PENDING and, once the retry budget is
// exhausted, overrides the revert with a permanent FAILED resolution.
func (s *InboxServiceImpl) resolveForRetry(ctx context.Context, formID uuid.UUID, handlerErr error) {
	retryCount, err := s.inboxRepo.ResolveRetry(ctx, formID)
	if err != nil {
		slog.Error("failed to revert form to pending",
			slog.String("form_id", formID.String()),
			slog.String("error", err.Error()),
		)

		return
	}

	if retryCount >= s.maxRetries {
		s.resolvePermanently(ctx, formID, handlerErr)

		return
	}

	slog.Warn("form processing failed, reverted to pending for retry",
		slog.String("form_id", formID.String()),
		slog.Int("retry_count", retryCount),
		slog.String("error", errText(handlerErr)),
	)
}

func (s *InboxServiceImpl) resolvePermanently(ctx context.Context, formID uuid.UUID, handlerErr error) {
	if err := s.inboxRepo.ResolveFailed(ctx, formID); err != nil {
		slog.Error("failed to mark form as permanently failed",
			slog.String("form_id", formID.String()),
			slog.String("error", err.Error()),
		)

		return
	}

	slog.Error("form processing permanently failed, operator intervention required",
		slog.String("form_id", formID.String()),
		slog.String("error", errText(handlerErr)),
	)
}

// ProcessPendingBatch runs one scheduler cycle over up to limit PENDING
// items, oldest first. Per-item errors are logged so one poison item never
// blocks the batch.
func (s *InboxServiceImpl) ProcessPendingBatch(ctx context.Context, limit int) error {
	items, err := s.inboxRepo.FindPending(ctx, limit)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}

	slog.Info("processing pending inbox items", slog.Int("count", len(items)))

	for _, item := range items {
		if err := s.ProcessNow(ctx, item.FormID); err != nil {
			slog.Error("error processing inbox item",
				slog.String("form_id", item.FormID.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// RecoverStuck reverts items stuck in DOING since before olderThan back to
// PENDING. This is the only mechanism that rescues items abandoned by a
// crashed run.
func (s *InboxServiceImpl) RecoverStuck(ctx context.Context, olderThan time.Time) (int64, error) {
	recovered, err := s.inboxRepo.ResetStuck(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	if recovered > 0 {
		slog.Warn("recovered inbox items stuck in doing state",
			slog.Int64("count", recovered),
			slog.Time("stuck_since", olderThan),
		)
	}

	return recovered, nil
}

// AuditBacklog logs PENDING items older than since for observability. It
// takes no corrective action; the scheduler keeps retrying them.
func (s *InboxServiceImpl) AuditBacklog(ctx context.Context, since time.Time) error {
	items, err := s.inboxRepo.FindPendingOlderThan(ctx, since)
	if err != nil {
		return err
	}

	if len(items) == 0 {
		slog.Info("backlog audit found no stale pending inbox items")
		return nil
	}

	slog.Warn("backlog audit found stale pending inbox items, scheduler will keep retrying",
		slog.Int("count", len(items)),
	)

	for _, item := range items {
		slog.Warn("stale pending inbox item",
			slog.String("form_id", item.FormID.String()),
			slog.Time("received_at", item.ReceivedAt),
			slog.Int("retry_count", item.RetryCount),
		)
	}

	return nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
