package channel

import (
	"context"

	"github.com/redis/rueidis"
)

// DeadLetterSuffix is appended to a stream key to form its dead-letter stream.
const DeadLetterSuffix = ":dead-letter"

// RedisStreamSender implements Sender and DeadLetterer on top of Redis
// Streams. The logical channel name is used as the stream key.
type RedisStreamSender struct {
	redisClient rueidis.Client
}

// NewRedisStreamSender creates a new Redis Streams sender.
func NewRedisStreamSender(redisClient rueidis.Client) *RedisStreamSender {
	return &RedisStreamSender{redisClient: redisClient}
}

// Send appends the payload to the channel's stream.
func (s *RedisStreamSender) Send(ctx context.Context, channel, payload string) error {
	cmd := s.redisClient.B().Xadd().Key(channel).Id("*").
		FieldValue().
		FieldValue("channel", channel).
		FieldValue("payload", payload).
		Build()

	return s.redisClient.Do(ctx, cmd).Error()
}

// DeadLetter appends the payload and a failure reason to the channel's
// dead-letter stream.
func (s *RedisStreamSender) DeadLetter(ctx context.Context, channel, payload, reason string) error {
	cmd := s.redisClient.B().Xadd().Key(channel + DeadLetterSuffix).Id("*").
		FieldValue().
		FieldValue("payload", payload).
		FieldValue("reason", reason).
		Build()

	return s.redisClient.Do(ctx, cmd).Error()
}
