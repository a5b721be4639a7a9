package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/angelmondragon/scentmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/scentmarket-backend/internal/cron"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		bootstrap.Fatal(ctx, nil, "cron worker failed", err)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, serviceName, bootstrap.WithRedis())
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx = rt.LogContext(ctx)

	reg := metrics.NewRegistry()
	service, err := newCronService(rt, metrics.NewJobMetrics(reg))
	if err != nil {
		return fmt.Errorf("cron wiring: %w", err)
	}

	stopMetrics := rt.ServeMetrics(ctx, reg)
	defer stopMetrics()

	rt.Logger.Info(ctx, "cron worker started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(ctx, "cron worker stopped")
	return nil
}

func newCronService(rt *bootstrap.Runtime, jobMetrics *metrics.JobMetrics) (*cron.Service, error) {
	cfg := rt.Config
	lock, err := cron.NewRedisLock(rt.Redis, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, err
	}

	gdb := rt.DB.DB()
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           rt.Logger,
		DB:               rt.DB,
		Events:           outbox.NewRepository(gdb),
		DLQ:              outbox.NewDLQRepository(gdb),
		Metrics:          jobMetrics,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
		EventRetention:   days(cfg.Cron.OutboxRetentionDays),
		DLQRetention:     days(cfg.Cron.DLQRetentionDays),
	})
	if err != nil {
		return nil, err
	}
	jobs, err := cron.NewRegistry(retention)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   rt.Logger,
		Registry: jobs,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
}

// lockKey is scoped per environment.
func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return redis.Key(serviceName, "lock", env)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
