package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize      = 50
	fallbackPollInterval   = 500 * time.Millisecond
	fallbackPublishTimeout = 15 * time.Second
	fallbackMaxAttempts    = 10
	backoffCeiling         = 10 * time.Second
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// eventStore is the slice of outbox.Repository the publisher drives. All
// calls run inside the batch transaction.
type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Deps are the collaborators of a Service. Guard, Metrics and Topics are
// optional; Topics defaults to the Pub/Sub client's publishers.
type Deps struct {
	Logger   *logger.Logger
	DB       txRunner
	PubSub   pubSubClient
	Store    eventStore
	Registry resolver
	Guard    publishGuard
	Metrics  *metrics.OutboxMetrics
	Topics   topicFunc
}

// Service drains outbox_events to Pub/Sub. A batch is claimed with FOR UPDATE
// SKIP LOCKED inside one transaction, so replicas never publish the same row
// concurrently.
type Service struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pubSubClient
	store       eventStore
	registry    resolver
	sink        *topicSink
	metrics     *metrics.OutboxMetrics
	pace        *pacer
	batchSize   int
	maxAttempts int
}

func NewService(cfg config.OutboxConfig, deps Deps) (*Service, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("outbox publisher: logger is required")
	case deps.DB == nil:
		return nil, errors.New("outbox publisher: db is required")
	case deps.PubSub == nil:
		return nil, errors.New("outbox publisher: pubsub client is required")
	case deps.Store == nil:
		return nil, errors.New("outbox publisher: event store is required")
	case deps.Registry == nil:
		return nil, errors.New("outbox publisher: event registry is required")
	}

	topics := deps.Topics
	if topics == nil {
		topics = gcpTopics(deps.PubSub)
	}

	return &Service{
		logg:     deps.Logger,
		db:       deps.DB,
		pubsub:   deps.PubSub,
		store:    deps.Store,
		registry: deps.Registry,
		sink: &topicSink{
			topics:  topics,
			guard:   deps.Guard,
			timeout: positive(cfg.PublishTimeout, fallbackPublishTimeout),
			logg:    deps.Logger,
		},
		metrics:     deps.Metrics,
		pace:        newPacer(positive(cfg.PollInterval(), fallbackPollInterval), backoffCeiling),
		batchSize:   positive(cfg.BatchSize, fallbackBatchSize),
		maxAttempts: positive(cfg.MaxAttempts, fallbackMaxAttempts),
	}, nil
}

func positive[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx ends. A non-empty batch is followed by another poll
// right away; a failed batch backs off.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ping(ctx); err != nil {
		return err
	}

	for {
		busy, err := s.drain(ctx)
		var delay time.Duration
		switch {
		case ctx.Err() != nil:
			s.logg.Info(ctx, "outbox publisher stopping")
			return ctx.Err()
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			delay = s.pace.failed()
		case busy:
			s.pace.idle()
			continue
		default:
			delay = s.pace.idle()
		}
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func (s *Service) ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database not ready: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub not ready: %w", err)
	}
	return nil
}

// drain handles one batch and reports whether it claimed any rows.
func (s *Service) drain(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	started := time.Now()
	var claimed int
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.store.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			if err := s.settle(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	if claimed > 0 {
		s.metrics.ObserveBatch(time.Since(started))
	}
	return claimed > 0, err
}

// settle publishes one row and records the outcome on it. The returned error
// is a bookkeeping failure that must abort the batch; publish failures are
// written to the row instead.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, logFields(event, nil))
	}
	fields := logFields(event, resolved)

	sent, err := s.sink.deliver(ctx, event, resolved)
	switch {
	case err == nil:
		if err := s.store.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.metrics.IncPublished(event.EventType.String())
		msg := "outbox event published"
		if !sent {
			msg = "outbox event already delivered"
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), msg)
		return nil
	case permanent(err):
		return s.park(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	case event.AttemptCount+1 >= s.maxAttempts:
		fields["attempt_count"] = event.AttemptCount + 1
		return s.park(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, err), fields)
	}

	fields["attempt_count"] = event.AttemptCount + 1
	s.metrics.IncFailed(event.EventType.String())
	s.logg.Log(s.logg.WithFields(ctx, fields), zerolog.WarnLevel, "outbox publish failed, will retry", err)
	if err := s.store.MarkFailedTx(tx, event.ID, err); err != nil {
		return fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	return nil
}

func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason.String()
	s.logg.Log(s.logg.WithFields(ctx, fields), zerolog.WarnLevel, "outbox event dead-lettered", cause)
	if err := s.store.DeadLetterTx(tx, event, reason, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(reason.String())
	return nil
}

func logFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType.String(),
		"aggregate_type": event.AggregateType.String(),
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		if id := resolved.Envelope.EventID; id != "" {
			fields["event_id"] = id
		}
	}
	return fields
}
