package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/formplatform/form-events/internal/model"
	"github.com/formplatform/form-events/internal/repository"
)

// fakeClock is a manually advanced clock shared by fakes and services under
// test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// memOutboxRepo is an in-memory OutboxRepository mirroring the SQL semantics
// of the Postgres implementation, including the deliverability filter and the
// monotonic retry_count guard.
type memOutboxRepo struct {
	mu     sync.Mutex
	nextID int64
	events map[int64]*model.OutboxEvent
	now    func() time.Time
}

var _ repository.OutboxRepository = (*memOutboxRepo)(nil)

func newMemOutboxRepo(now func() time.Time) *memOutboxRepo {
	return &memOutboxRepo{events: make(map[int64]*model.OutboxEvent), now: now}
}

func (r *memOutboxRepo) CreateEvent(_ context.Context, params *model.CreateOutboxEventParams) (*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	event := &model.OutboxEvent{
		ID:        r.nextID,
		Channel:   params.Channel,
		Payload:   params.Payload,
		Status:    model.OutboxStatusPending,
		CreatedAt: r.now(),
	}
	r.events[event.ID] = event

	return event, nil
}

func (r *memOutboxRepo) GetDeliverableEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	var deliverable []*model.OutboxEvent

	for _, event := range r.events {
		if event.Status != model.OutboxStatusPending {
			continue
		}

		if event.NextRetryAt != nil && event.NextRetryAt.After(now) {
			continue
		}

		copied := *event
		deliverable = append(deliverable, &copied)
	}

	sort.Slice(deliverable, func(i, j int) bool {
		if deliverable[i].CreatedAt.Equal(deliverable[j].CreatedAt) {
			return deliverable[i].ID < deliverable[j].ID
		}

		return deliverable[i].CreatedAt.Before(deliverable[j].CreatedAt)
	})

	if len(deliverable) > limit {
		deliverable = deliverable[:limit]
	}

	return deliverable, nil
}

func (r *memOutboxRepo) MarkSent(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event, ok := r.events[id]; ok {
		event.Status = model.OutboxStatusSent
	}

	return nil
}

func (r *memOutboxRepo) MarkFailed(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event, ok := r.events[id]; ok {
		event.Status = model.OutboxStatusFailed
	}

	return nil
}

func (r *memOutboxRepo) IncrementRetry(_ context.Context, id int64, retryCount int, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event, ok := r.events[id]; ok && event.RetryCount < retryCount {
		event.RetryCount = retryCount
		at := nextRetryAt
		event.NextRetryAt = &at
	}

	return nil
}

func (r *memOutboxRepo) CountByStatus(_ context.Context, status model.OutboxStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64

	for _, event := range r.events {
		if event.Status == status {
			count++
		}
	}

	return count, nil
}

func (r *memOutboxRepo) get(id int64) model.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return *r.events[id]
}

// memInboxRepo is an in-memory InboxRepository mirroring the conditional
// single-row updates of the Postgres implementation.
type memInboxRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*model.InboxItem
	now   func() time.Time
}

var _ repository.InboxRepository = (*memInboxRepo)(nil)

func newMemInboxRepo(now func() time.Time) *memInboxRepo {
	return &memInboxRepo{items: make(map[uuid.UUID]*model.InboxItem), now: now}
}

func (r *memInboxRepo) Exists(_ context.Context, formID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.items[formID]

	return ok, nil
}

func (r *memInboxRepo) Save(_ context.Context, formID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[formID]; ok {
		return nil
	}

	r.items[formID] = &model.InboxItem{
		ID:         uuid.New(),
		FormID:     formID,
		Status:     model.InboxStatusPending,
		ReceivedAt: r.now(),
	}

	return nil
}

func (r *memInboxRepo) TryClaim(_ context.Context, formID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[formID]
	if !ok || item.Status != model.InboxStatusPending {
		return false, nil
	}

	item.Status = model.InboxStatusDoing
	at := r.now()
	item.AttemptedAt = &at

	return true, nil
}

func (r *memInboxRepo) ResolveSuccess(_ context.Context, formID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[formID]
	if !ok || item.Status != model.InboxStatusDoing {
		return nil
	}

	item.Status = model.InboxStatusDone
	at := r.now()
	item.ProcessedAt = &at

	return nil
}

func (r *memInboxRepo) ResolveRetry(_ context.Context, formID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[formID]
	if !ok || item.Status != model.InboxStatusDoing {
		return 0, model.ErrInboxItemNotFound
	}

	item.Status = model.InboxStatusPending
	item.ProcessedAt = nil
	item.RetryCount++

	return item.RetryCount, nil
}

func (r *memInboxRepo) ResolveFailed(_ context.Context, formID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[formID]
	if !ok {
		return nil
	}

	item.Status = model.InboxStatusFailed
	at := r.now()
	item.ProcessedAt = &at

	return nil
}

func (r *memInboxRepo) GetRetryCount(_ context.Context, formID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[formID]
	if !ok {
		return 0, model.ErrInboxItemNotFound
	}

	return item.RetryCount, nil
}

func (r *memInboxRepo) FindPending(_ context.Context, limit int) ([]*model.InboxItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.InboxItem

	for _, item := range r.items {
		if item.Status == model.InboxStatusPending {
			copied := *item
			pending = append(pending, &copied)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ReceivedAt.Before(pending[j].ReceivedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

func (r *memInboxRepo) FindPendingOlderThan(_ context.Context, since time.Time) ([]*model.InboxItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*model.InboxItem

	for _, item := range r.items {
		if item.Status == model.InboxStatusPending && item.ReceivedAt.Before(since) {
			copied := *item
			pending = append(pending, &copied)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].ReceivedAt.Before(pending[j].ReceivedAt)
	})

	return pending, nil
}

func (r *memInboxRepo) ResetStuck(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reset int64

	for _, item := range r.items {
		if item.Status == model.InboxStatusDoing && item.AttemptedAt != nil && item.AttemptedAt.Before(olderThan) {
			item.Status = model.InboxStatusPending
			item.AttemptedAt = nil
			reset++
		}
	}

	return reset, nil
}

func (r *memInboxRepo) CountByStatus(_ context.Context, status model.InboxStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64

	for _, item := range r.items {
		if item.Status == status {
			count++
		}
	}

	return count, nil
}

func (r *memInboxRepo) CountStalePending(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64

	for _, item := range r.items {
		if item.Status == model.InboxStatusPending && item.ReceivedAt.Before(olderThan) {
			count++
		}
	}

	return count, nil
}

func (r *memInboxRepo) get(formID uuid.UUID) model.InboxItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	return *r.items[formID]
}

func (r *memInboxRepo) setAttemptedAt(formID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[formID].AttemptedAt = &at
}

func (r *memInboxRepo) setReceivedAt(formID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[formID].ReceivedAt = at
}

// fakeSender records sends and fails on demand.
type sentMessage struct {
	channel string
	payload string
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith error
}

var errChannelDown = errors.New("channel unavailable")

func (s *fakeSender) Send(_ context.Context, channel, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWith != nil {
		return s.failWith
	}

	s.sent = append(s.sent, sentMessage{channel: channel, payload: payload})

	return nil
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sent)
}

// flakySender fails sends whose payload matches a marker.
type flakySender struct {
	fakeSender
	failPayload string
}

func (s *flakySender) Send(ctx context.Context, channel, payload string) error {
	if payload == s.failPayload {
		return errChannelDown
	}

	return s.fakeSender.Send(ctx, channel, payload)
}

// scriptedHandler implements PresentationHandler through a function.
type scriptedHandler struct {
	mu    sync.Mutex
	fn    func(formID uuid.UUID) (Outcome, error)
	calls int
}

func (h *scriptedHandler) Execute(_ context.Context, formID uuid.UUID) (Outcome, error) {
	h.mu.Lock()
	h.calls++
	fn := h.fn
	h.mu.Unlock()

	if fn == nil {
		return OutcomeSuccess, nil
	}

	return fn(formID)
}

func (h *scriptedHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.calls
}
