package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/registry"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicFunc returns the publisher for a topic, or nil when none is configured.
type topicFunc func(topic string) publisher

// publishGuard remembers event ids that already reached a topic.
type publishGuard interface {
	Claim(ctx context.Context, topic, eventID string) (bool, error)
	Release(ctx context.Context, topic, eventID string) error
}

// topicSink delivers resolved events. With a guard it delivers each event id
// to a topic at most once per guard TTL, even across publisher restarts.
type topicSink struct {
	topics  topicFunc
	guard   publishGuard
	timeout time.Duration
	logg    *logger.Logger
}

// deliver reports sent=false when the guard shows the event already went out.
func (k *topicSink) deliver(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) (sent bool, err error) {
	topic := resolved.Descriptor.Topic
	eventID := resolved.Envelope.EventID
	if eventID == "" {
		eventID = event.ID.String()
	}

	if k.guard != nil {
		fresh, err := k.guard.Claim(ctx, topic, eventID)
		switch {
		case err != nil:
			return false, fmt.Errorf("claim publish guard: %w", err)
		case !fresh:
			return false, nil
		}
	}

	if err := k.send(ctx, topic, messageFor(event, eventID)); err != nil {
		if k.guard != nil {
			if relErr := k.guard.Release(ctx, topic, eventID); relErr != nil {
				k.logg.Error(k.logg.WithField(ctx, "event_id", eventID), "release publish guard", relErr)
			}
		}
		return false, err
	}
	return true, nil
}

func (k *topicSink) send(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := k.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	res := pub.Publish(ctx, msg)
	if res == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %s returned no publish result", topic))
	}
	_, err := res.Get(ctx)
	return err
}

// messageFor carries the envelope bytes as-is; attributes let subscribers
// filter without decoding the body.
func messageFor(event models.OutboxEvent, eventID string) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     event.EventType.String(),
			"aggregate_type": event.AggregateType.String(),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// permanent reports failures a retry cannot fix: registry rejections and
// Pub/Sub statuses caused by the message or the topic setup.
func permanent(err error) bool {
	var rejected registry.NonRetryableError
	if errors.As(err, &rejected) {
		return true
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied, codes.FailedPrecondition:
		return true
	default:
		return false
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

// gcpTopics adapts the Pub/Sub client; an unknown topic yields nil.
func gcpTopics(client pubSubClient) topicFunc {
	return func(topic string) publisher {
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p: p}
	}
}
