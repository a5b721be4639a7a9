package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/angelmondragon/scentmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/registry"
	"github.com/angelmondragon/scentmarket-backend/pkg/pubsub"
)

const serviceKind = "outbox-publisher"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		bootstrap.Fatal(ctx, nil, "outbox publisher failed", err)
	}
}

func run(ctx context.Context) error {
	rt, err := bootstrap.Start(ctx, serviceKind, bootstrap.WithRedis())
	if err != nil {
		return err
	}
	defer rt.Close()
	logg, cfg := rt.Logger, rt.Config
	ctx = rt.LogContext(ctx)

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "closing pubsub client", err)
		}
	}()

	events, err := registry.NewEventRegistry(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("event registry: %w", err)
	}
	if err := pubsubClient.CheckTopics(ctx, events.Topics()...); err != nil {
		return fmt.Errorf("event topics: %w", err)
	}
	guard, err := idempotency.NewPublishGuard(rt.Redis, cfg.Outbox.PublishGuardTTL)
	if err != nil {
		return fmt.Errorf("publish guard: %w", err)
	}

	reg := metrics.NewRegistry()
	service, err := NewService(cfg.Outbox, Deps{
		Logger:   logg,
		DB:       rt.DB,
		PubSub:   pubsubClient,
		Store:    outbox.NewRepository(rt.DB.DB()),
		Registry: events,
		Guard:    guard,
		Metrics:  metrics.NewOutboxMetrics(reg),
	})
	if err != nil {
		return err
	}

	stopMetrics := rt.ServeMetrics(ctx, reg)
	defer stopMetrics()

	logg.Info(logg.WithField(ctx, "topics", events.Topics()), "outbox publisher started")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "outbox publisher stopped")
	return nil
}
