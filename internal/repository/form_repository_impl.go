package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formplatform/form-events/internal/model"
)

// FormRepositoryImpl implements FormRepository using PostgreSQL.
type FormRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewFormRepositoryImpl creates a new FormRepository implementation.
func NewFormRepositoryImpl(pool *pgxpool.Pool) FormRepository {
	return &FormRepositoryImpl{pool: pool}
}

// Create persists a new form. It participates in the caller's transaction
// when one is active on the context.
func (r *FormRepositoryImpl) Create(ctx context.Context, form *model.Form) error {
	_, err := db(ctx, r.pool).Exec(ctx,
		`INSERT INTO forms (id, data, created_at) VALUES ($1, $2, $3)`,
		form.ID, form.Data, form.CreatedAt,
	)

	return err
}

// GetByID retrieves a form by ID.
func (r *FormRepositoryImpl) GetByID(ctx context.Context, id uuid.UUID) (*model.Form, error) {
	form := &model.Form{}

	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT id, data, created_at FROM forms WHERE id = $1`,
		id,
	).Scan(&form.ID, &form.Data, &form.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrFormNotFound
	}

	if err != nil {
		return nil, err
	}

	return form, nil
}
