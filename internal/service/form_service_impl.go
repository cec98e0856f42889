package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formplatform/form-events/internal/model"
	"github.com/formplatform/form-events/internal/repository"
)

// FormServiceImpl implements FormService for form submission business logic.
type FormServiceImpl struct {
	formRepo       repository.FormRepository
	outboxRepo     repository.OutboxRepository
	transactionMgr repository.TransactionManager
}

// NewFormServiceImpl creates a new FormService implementation.
func NewFormServiceImpl(
	formRepo repository.FormRepository,
	outboxRepo repository.OutboxRepository,
	transactionMgr repository.TransactionManager,
) FormService {
	return &FormServiceImpl{
		formRepo:       formRepo,
		outboxRepo:     outboxRepo,
		transactionMgr: transactionMgr,
	}
}

// SubmitForm persists a new form and its form-created outbox event in one
// transaction. If the transaction rolls back, neither the form nor the event
// survives; once it commits, the event is guaranteed to be delivered later
// even if the channel is down right now.
func (s *FormServiceImpl) SubmitForm(ctx context.Context, params *model.SubmitFormParams) (*model.Form, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	form := &model.Form{
		ID:        uuid.New(),
		Data:      params.Data,
		CreatedAt: time.Now().UTC(),
	}

	err := s.transactionMgr.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.formRepo.Create(ctx, form); err != nil {
			return fmt.Errorf("failed to create form: %w", err)
		}

		return s.createFormCreatedEvent(ctx, form)
	})
	if err != nil {
		return nil, err
	}

	return form, nil
}

// GetForm retrieves a form by ID.
func (s *FormServiceImpl) GetForm(ctx context.Context, id uuid.UUID) (*model.Form, error) {
	return s.formRepo.GetByID(ctx, id)
}

func (s *FormServiceImpl) createFormCreatedEvent(ctx context.Context, form *model.Form) error {
	payload, err := json.Marshal(model.FormCreatedEvent{
		FormID: form.ID.String(),
		Event:  model.EventActionFormCreated,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = s.outboxRepo.CreateEvent(ctx, &model.CreateOutboxEventParams{
		Channel: model.ChannelFormCreated,
		Payload: string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	return nil
}
