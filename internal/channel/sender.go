// Package channel provides the message channel abstraction and its Redis
// Streams implementation.
package channel

import "context"

// Sender delivers one payload to a logical channel. Delivery is at-least-once
// from the outbox publisher's point of view: a send that fails after the
// broker accepted it will be retried, so receivers must deduplicate.
type Sender interface {
	Send(ctx context.Context, channel, payload string) error
}

// DeadLetterer routes messages that must not be retried (malformed input) to
// an out-of-band destination for later inspection.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, channel, payload, reason string) error
}
