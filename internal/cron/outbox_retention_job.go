package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
)

const (
	defaultOutboxRetentionDays = 30
	defaultDLQRetentionDays    = 90

	tableOutboxEvents = "outbox_events"
	tableOutboxDLQ    = "outbox_dlq"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settledEventPruner interface {
	DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Events  settledEventPruner
	DLQ     deadLetterPruner
	Metrics *metrics.JobMetrics

	// TerminalAttempts must match the publisher's max attempts so that
	// dead-lettered rows are recognised as settled.
	TerminalAttempts int
	EventRetention   time.Duration
	DLQRetention     time.Duration
}

// NewOutboxRetentionJob prunes settled outbox rows and aged DLQ entries.
// A nil DLQ pruner keeps dead letters forever.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.TerminalAttempts <= 0 {
		return nil, fmt.Errorf("terminal attempts must be positive")
	}
	eventRetention := params.EventRetention
	if eventRetention <= 0 {
		eventRetention = defaultOutboxRetentionDays * 24 * time.Hour
	}
	dlqRetention := params.DLQRetention
	if dlqRetention <= 0 {
		dlqRetention = defaultDLQRetentionDays * 24 * time.Hour
	}
	return &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		events:           params.Events,
		dlq:              params.DLQ,
		metrics:          params.Metrics,
		terminalAttempts: params.TerminalAttempts,
		eventRetention:   eventRetention,
		dlqRetention:     dlqRetention,
		now:              time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	events           settledEventPruner
	dlq              deadLetterPruner
	metrics          *metrics.JobMetrics
	terminalAttempts int
	eventRetention   time.Duration
	dlqRetention     time.Duration
	now              func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	err := j.prune(ctx, tableOutboxEvents, now.Add(-j.eventRetention), func(tx *gorm.DB, cutoff time.Time) (int64, error) {
		return j.events.DeleteSettledBefore(ctx, tx, cutoff, j.terminalAttempts)
	})
	if j.dlq != nil {
		err = multierr.Append(err, j.prune(ctx, tableOutboxDLQ, now.Add(-j.dlqRetention), func(tx *gorm.DB, cutoff time.Time) (int64, error) {
			return j.dlq.DeleteFailedBefore(ctx, tx, cutoff)
		}))
	}
	return err
}

func (j *outboxRetentionJob) prune(ctx context.Context, table string, cutoff time.Time, del func(*gorm.DB, time.Time) (int64, error)) error {
	var deleted int64
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := del(tx, cutoff)
		deleted = n
		return err
	}); err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	j.metrics.AddPruned(table, deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"table":        table,
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "retention prune complete")
	return nil
}
