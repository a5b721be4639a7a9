package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/scentmarket-backend/pkg/redis"
)

// PublishGuard records which outbox events already reached a topic so a
// publisher that crashes between publish and commit does not send them twice.
// Keys follow `sm:idempotency:outbox:published:<topic>:<event_id>`.
type PublishGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewPublishGuard builds a guard whose claims expire after ttl.
func NewPublishGuard(store redis.IdempotencyStore, ttl time.Duration) (*PublishGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &PublishGuard{store: store, ttl: ttl}, nil
}

// Claim returns true when the caller is the first to publish eventID to topic.
func (g *PublishGuard) Claim(ctx context.Context, topic, eventID string) (bool, error) {
	key, err := g.key(topic, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
}

// Release drops a claim after a failed publish so the next attempt can retry.
func (g *PublishGuard) Release(ctx context.Context, topic, eventID string) error {
	key, err := g.key(topic, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *PublishGuard) key(topic, eventID string) (string, error) {
	topic = strings.TrimSpace(topic)
	eventID = strings.TrimSpace(eventID)
	if topic == "" {
		return "", errors.New("topic is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(fmt.Sprintf("outbox:published:%s", topic), eventID), nil
}
