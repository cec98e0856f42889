// Package main provides the outbox publisher that drains deliverable events
// from the outbox table to Redis Streams on a fixed interval.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/formplatform/form-events/internal/backoff"
	"github.com/formplatform/form-events/internal/channel"
	"github.com/formplatform/form-events/internal/config"
	"github.com/formplatform/form-events/internal/logger"
	"github.com/formplatform/form-events/internal/repository"
	"github.com/formplatform/form-events/internal/scheduler"
	"github.com/formplatform/form-events/internal/service"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping publisher")
		cancel()
	}()

	return ctx, cancel
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

	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	sender := channel.NewRedisStreamSender(redisClient)
	outboxService := service.NewOutboxServiceImpl(
		outboxRepo,
		sender,
		backoff.Exponential{Base: cfg.PublisherBackoffBase, Cap: cfg.PublisherBackoffCap},
		cfg.PublisherMaxRetries,
	)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	sched := scheduler.New()
	sched.Register("outbox-publisher", cfg.PublisherPollInterval, func(ctx context.Context) error {
		return outboxService.ProcessDeliverableEvents(ctx, cfg.PublisherBatchSize)
	})

	slog.Info("starting outbox publisher",
		slog.String("service", "publisher"),
		slog.Duration("poll_interval", cfg.PublisherPollInterval),
		slog.Int("batch_size", cfg.PublisherBatchSize),
	)

	sched.Start(ctx)

	<-ctx.Done()
	sched.Stop()

	slog.Info("publisher stopped")
}
