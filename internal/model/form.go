// Package model defines domain models and data structures.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Form represents a submitted form.
type Form struct {
	ID        uuid.UUID      `json:"id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// SubmitFormParams represents parameters for submitting a new form.
type SubmitFormParams struct {
	Data map[string]any `json:"data"`
}

// Validate validates the submit form parameters.
func (p *SubmitFormParams) Validate() error {
	if len(p.Data) == 0 {
		return ErrEmptyFormData
	}

	return nil
}

// EventAction represents the type of event action.
type EventAction string

const (
	// EventActionFormCreated represents the form creation event action.
	EventActionFormCreated EventAction = "FORM_CREATED"
)

// ChannelFormCreated is the logical channel name for form creation events.
const ChannelFormCreated = "form-created"

// FormCreatedEvent represents the payload for form creation events.
type FormCreatedEvent struct {
	FormID string      `json:"formId"`
	Event  EventAction `json:"event"`
}
