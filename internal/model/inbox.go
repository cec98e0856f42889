package model

import (
	"time"

	"github.com/google/uuid"
)

// InboxStatus represents the processing state of an inbox item.
type InboxStatus string

const (
	// InboxStatusPending indicates the item is awaiting processing.
	InboxStatusPending InboxStatus = "PENDING"
	// InboxStatusDoing indicates one instance holds the processing claim.
	InboxStatusDoing InboxStatus = "DOING"
	// InboxStatusDone indicates processing completed successfully.
	InboxStatusDone InboxStatus = "DONE"
	// InboxStatusFailed indicates the retry budget was exhausted.
	InboxStatusFailed InboxStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s InboxStatus) Terminal() bool {
	return s == InboxStatusDone || s == InboxStatusFailed
}

// InboxItem represents a durably recorded incoming event, keyed by form ID
// for deduplication.
type InboxItem struct {
	ID          uuid.UUID   `json:"id"`
	FormID      uuid.UUID   `json:"form_id"`
	Status      InboxStatus `json:"status"`
	ReceivedAt  time.Time   `json:"received_at"`
	AttemptedAt *time.Time  `json:"attempted_at"`
	ProcessedAt *time.Time  `json:"processed_at"`
	RetryCount  int         `json:"retry_count"`
}
