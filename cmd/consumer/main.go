// Package main provides the presentation receiver: it consumes form-created
// events from Redis Streams, records them durably in the inbox, and runs the
// periodic processing, recovery and audit tasks around the inbox store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/formplatform/form-events/internal/channel"
	"github.com/formplatform/form-events/internal/config"
	"github.com/formplatform/form-events/internal/logger"
	"github.com/formplatform/form-events/internal/model"
	"github.com/formplatform/form-events/internal/repository"
	"github.com/formplatform/form-events/internal/scheduler"
	"github.com/formplatform/form-events/internal/service"
)

const (
	redisBlockTimeout = 1000 // milliseconds
	errorRetryDelay   = 1 * time.Second
	signalBufferSize  = 1
	exitCode          = 1

	streamKey = model.ChannelFormCreated
	groupName = "presentation-receiver"

	processingDelay = 100 * time.Millisecond
)

// presentationHandler is the injected business logic for one claimed inbox
// item. Real deployments replace the body with their side effects; failures
// there are classified as retryable or permanent through the Outcome.
type presentationHandler struct{}

// Execute processes a presentation by its form ID.
func (*presentationHandler) Execute(_ context.Context, formID uuid.UUID) (service.Outcome, error) {
	slog.Info("processing presentation", slog.String("form_id", formID.String()))

	// Placeholder for the actual presentation build.
	time.Sleep(processingDelay)

	slog.Info("presentation processed", slog.String("form_id", formID.String()))

	return service.OutcomeSuccess, nil
}

// MessageHandler consumes form-created messages from Redis Streams and feeds
// them into the inbox.
type MessageHandler struct {
	redisClient  rueidis.Client
	inboxService service.InboxService
	deadLetterer channel.DeadLetterer
}

// NewMessageHandler creates a new message handler instance.
func NewMessageHandler(
	redisClient rueidis.Client,
	inboxService service.InboxService,
	deadLetterer channel.DeadLetterer,
) *MessageHandler {
	return &MessageHandler{
		redisClient:  redisClient,
		inboxService: inboxService,
		deadLetterer: deadLetterer,
	}
}

func createConsumerGroup(ctx context.Context, redisClient rueidis.Client) {
	createGroupCmd := redisClient.B().XgroupCreate().Key(streamKey).Group(groupName).Id("0").Mkstream().Build()
	if err := redisClient.Do(ctx, createGroupCmd).Error(); err != nil {
		slog.Info("consumer group creation result (may already exist)", slog.String("error", err.Error()))
	}
}

func (h *MessageHandler) readMessages(ctx context.Context, consumerName string) (map[string][]rueidis.XRangeEntry, error) {
	readCmd := h.redisClient.B().Xreadgroup().Group(groupName, consumerName).
		Count(1).
		Block(redisBlockTimeout).
		Streams().
		Key(streamKey).
		Id(">").
		Build()

	result := h.redisClient.Do(ctx, readCmd)
	if err := result.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil // block timeout, nothing to read
		}

		return nil, err
	}

	return result.AsXRead()
}

func (h *MessageHandler) acknowledgeMessage(ctx context.Context, messageID string) {
	ackCmd := h.redisClient.B().Xack().Key(streamKey).Group(groupName).Id(messageID).Build()
	if err := h.redisClient.Do(ctx, ackCmd).Error(); err != nil {
		slog.Error("failed to ACK message",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	} else {
		slog.Debug("ACKed message", slog.String("message_id", messageID))
	}
}

func (h *MessageHandler) consumeMessages(ctx context.Context, consumerName string) error {
	streams, err := h.readMessages(ctx, consumerName)
	if err != nil {
		return err
	}

	if streams == nil {
		return nil
	}

	for streamName, messages := range streams {
		slog.Debug("processing stream",
			slog.String("stream", streamName),
			slog.Int("message_count", len(messages)),
		)

		for _, message := range messages {
			h.handleMessage(ctx, message)
		}
	}

	return nil
}

// handleMessage records one incoming message in the inbox. A malformed
// message is dead-lettered and ACKed so it never loops; a transient store
// failure leaves the message unacknowledged so the broker redelivers it.
func (h *MessageHandler) handleMessage(ctx context.Context, message rueidis.XRangeEntry) {
	formID, err := extractFormID(message)
	if err != nil {
		slog.Error("discarding malformed message",
			slog.String("message_id", message.ID),
			slog.String("error", err.Error()),
		)

		if dlqErr := h.deadLetterer.DeadLetter(ctx, streamKey, message.FieldValues["payload"], err.Error()); dlqErr != nil {
			slog.Error("failed to dead-letter message",
				slog.String("message_id", message.ID),
				slog.String("error", dlqErr.Error()),
			)
		}

		h.acknowledgeMessage(ctx, message.ID)

		return
	}

	if err := h.inboxService.Receive(ctx, formID); err != nil {
		// Leave unACKed: the inbox store refused the write, so the broker
		// must redeliver this message later.
		slog.Error("failed to record message in inbox, leaving for redelivery",
			slog.String("message_id", message.ID),
			slog.String("error", err.Error()),
		)

		return
	}

	h.acknowledgeMessage(ctx, message.ID)
}

func extractFormID(message rueidis.XRangeEntry) (uuid.UUID, error) {
	payloadStr, ok := message.FieldValues["payload"]
	if !ok {
		return uuid.Nil, errors.New("missing payload in message")
	}

	var event model.FormCreatedEvent
	if err := json.Unmarshal([]byte(payloadStr), &event); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse form-created payload: %w", err)
	}

	formID, err := uuid.Parse(event.FormID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid formId in payload: %w", err)
	}

	return formID, nil
}

func runConsumerLoop(ctx context.Context, handler *MessageHandler, consumerName string) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("consumer stopped")
			return
		default:
			if err := handler.consumeMessages(ctx, consumerName); err != nil {
				slog.Error("error consuming messages", slog.String("error", err.Error()))
				time.Sleep(errorRetryDelay)
			}
		}
	}
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping consumer")
		cancel()
	}()

	return ctx, cancel
}

func registerTasks(sched *scheduler.Scheduler, cfg *config.Config, inboxService service.InboxService) {
	sched.Register("inbox-processor", cfg.InboxPollInterval, func(ctx context.Context) error {
		return inboxService.ProcessPendingBatch(ctx, cfg.InboxBatchSize)
	})

	sched.Register("stuck-claim-recovery", cfg.StuckRecoveryEvery, func(ctx context.Context) error {
		_, err := inboxService.RecoverStuck(ctx, time.Now().Add(-cfg.StuckThreshold))
		return err
	})

	sched.Register("backlog-audit", cfg.BacklogAuditEvery, func(ctx context.Context) error {
		return inboxService.AuditBacklog(ctx, time.Now().Add(-cfg.BacklogAuditLookback))
	})
}

func serveHealth(cfg *config.Config, healthService service.HealthService) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report, err := healthService.InboxHealth(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if !report.Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
			return
		}
	})

	go func() {
		if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
			slog.Error("health endpoint stopped", slog.String("error", err.Error()))
		}
	}()
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel)
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	inboxRepo := repository.NewInboxRepositoryImpl(dbPool)
	inboxService := service.NewInboxServiceImpl(
		inboxRepo,
		&presentationHandler{},
		cfg.InboxMaxRetries,
		cfg.InboxHandlerTimeout,
	)
	healthService := service.NewHealthServiceImpl(nil, inboxRepo, service.HealthThresholds{
		InboxFailed:      cfg.InboxFailedThreshold,
		InboxStale:       cfg.InboxStaleThreshold,
		InboxStaleWindow: cfg.InboxStaleWindow,
	})
	sender := channel.NewRedisStreamSender(redisClient)

	handler := NewMessageHandler(redisClient, inboxService, sender)
	ctx, cancel := setupSignalHandling()
	defer cancel()

	createConsumerGroup(ctx, redisClient)

	sched := scheduler.New()
	registerTasks(sched, cfg, inboxService)
	sched.Start(ctx)

	serveHealth(cfg, healthService)

	slog.Info("starting message consumer",
		slog.String("service", "consumer"),
		slog.String("stream", streamKey),
		slog.String("group", groupName),
		slog.String("consumer", cfg.ConsumerName),
	)

	runConsumerLoop(ctx, handler, cfg.ConsumerName)

	sched.Stop()
}
