package model

import "time"

// OutboxStatus represents the lifecycle state of an outbox event.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the event is awaiting delivery.
	OutboxStatusPending OutboxStatus = "PENDING"
	// OutboxStatusSent indicates the event was delivered to the channel.
	OutboxStatusSent OutboxStatus = "SENT"
	// OutboxStatusFailed indicates delivery was given up after exhausting retries.
	OutboxStatusFailed OutboxStatus = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s OutboxStatus) Terminal() bool {
	return s == OutboxStatusSent || s == OutboxStatusFailed
}

// OutboxEvent represents an outbox event for reliable message delivery.
// Events are created inside the producer's business transaction and mutated
// only by the outbox publisher.
type OutboxEvent struct {
	ID          int64        `json:"id"`
	Channel     string       `json:"channel"`
	Payload     string       `json:"payload"`
	Status      OutboxStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	RetryCount  int          `json:"retry_count"`
	NextRetryAt *time.Time   `json:"next_retry_at"`
}

// CreateOutboxEventParams represents parameters for creating a new outbox event.
type CreateOutboxEventParams struct {
	Channel string
	Payload string
}
