package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/scentmarket-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t),
		AttemptCount:  attempts,
		CreatedAt:     time.Now(),
	}
}

func TestProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub, okRegistry(), nil)

	processed, err := svc.drain(context.Background())
	require.NoError(t, err)
	require.True(t, processed)

	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Len(t, pub.sent, 2)
	assert.Equal(t, string(enums.EventOrderCreated), pub.sent[1].Attributes["event_type"])
	assert.Equal(t, repo.events[1].AggregateID.String(), pub.sent[1].Attributes["aggregate_id"])
}

func TestProcessBatchEmptyReportsIdle(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, okRegistry(), nil)
	processed, err := svc.drain(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchDeadLettersUnresolvableEvent(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	svc := newTestService(t, repo, &fakePublisher{}, reg, nil)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.parked, 1)
	entry := repo.parked[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestProcessBatchDeadLettersAtMaxAttempts(t *testing.T) {
	event := orderEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	svc := newTestService(t, repo, pub, okRegistry(), nil)
	svc.maxAttempts = 2

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.parked, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, repo.parked[0].ErrorReason)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchDeadLettersPermanentGRPCStatus(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: status.Error(codes.NotFound, "topic not found")},
	}}
	svc := newTestService(t, repo, pub, okRegistry(), nil)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	require.Len(t, repo.parked, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, repo.parked[0].ErrorReason)
}

func TestGuardSkipsAlreadyPublishedEvent(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	guard := newFakeGuard()
	guard.claimed["orders-topic/"+event.ID.String()] = true
	svc := newTestService(t, repo, pub, okRegistry(), guard)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	assert.Empty(t, pub.sent)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestGuardReleasedOnPublishFailure(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}}
	guard := newFakeGuard()
	svc := newTestService(t, repo, pub, okRegistry(), guard)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{event.ID}, repo.failed)
	assert.Empty(t, guard.claimed)
	assert.Equal(t, 1, guard.releases)
}

func TestGuardErrorCountsAsRetryableFailure(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	guard := newFakeGuard()
	guard.err = errors.New("redis down")
	svc := newTestService(t, repo, pub, okRegistry(), guard)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	assert.Empty(t, pub.sent)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.failed)
}

func TestProcessBatchRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetrics(reg)
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0), orderEvent(t, 0)}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{},
		fakePublishResult{err: errors.New("transient")},
	}}
	svc := newTestService(t, repo, pub, okRegistry(), nil)
	svc.metrics = m

	_, err := svc.drain(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	totals := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				totals[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, totals["outbox_events_published_total"])
	assert.Equal(t, 1.0, totals["outbox_events_failed_total"])
}

func TestProcessBatchPropagatesBookkeepingErrors(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{orderEvent(t, 0)}, markErr: errors.New("db gone")}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	svc := newTestService(t, repo, pub, okRegistry(), nil)

	_, err := svc.drain(context.Background())
	require.Error(t, err)
}

func TestPacerBacksOffAndResets(t *testing.T) {
	p := newPacer(100*time.Millisecond, time.Second)
	p.spread = 0

	assert.Equal(t, 200*time.Millisecond, p.failed())
	assert.Equal(t, 400*time.Millisecond, p.failed())
	assert.Equal(t, 800*time.Millisecond, p.failed())
	assert.Equal(t, time.Second, p.failed())
	assert.Equal(t, time.Second, p.failed())
	assert.Equal(t, 100*time.Millisecond, p.idle())
	assert.Equal(t, 200*time.Millisecond, p.failed())
}

func TestPacerJitterStaysInSpread(t *testing.T) {
	p := newPacer(time.Second, 10*time.Second)
	for range 20 {
		d := p.idle()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+p.spread)
	}
}

func TestMessageForCarriesRoutingAttributes(t *testing.T) {
	event := orderEvent(t, 0)
	msg := messageFor(event, "evt-1")
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, "evt-1", msg.Attributes["event_id"])
	assert.Equal(t, "order", msg.Attributes["aggregate_type"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
}

func TestMissingTopicPublisherDeadLetters(t *testing.T) {
	event := orderEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	svc := newTestService(t, repo, nil, okRegistry(), nil)

	_, err := svc.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, repo.parked, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, repo.parked[0].ErrorReason)
}

func TestRunStopsOnCancel(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, okRegistry(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceRequiresDeps(t *testing.T) {
	_, err := NewService(config.OutboxConfig{}, Deps{})
	require.ErrorContains(t, err, "logger is required")

	_, err = NewService(config.OutboxConfig{}, Deps{Logger: logger.Nop(), DB: fakeDB{}, PubSub: fakePubSubClient{}})
	require.ErrorContains(t, err, "event store is required")
}

func TestNewServiceFillsDefaults(t *testing.T) {
	svc, err := NewService(config.OutboxConfig{}, Deps{
		Logger:   logger.Nop(),
		DB:       fakeDB{},
		PubSub:   fakePubSubClient{},
		Store:    &fakeRepo{},
		Registry: okRegistry(),
	})
	require.NoError(t, err)
	assert.Equal(t, fallbackBatchSize, svc.batchSize)
	assert.Equal(t, fallbackMaxAttempts, svc.maxAttempts)
	assert.Equal(t, fallbackPublishTimeout, svc.sink.timeout)
	assert.Nil(t, svc.sink.topics("orders-topic"))
}

// newTestService wires fakes; a nil pub leaves every topic unconfigured.
func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher, reg resolver, guard publishGuard) *Service {
	t.Helper()
	deps := Deps{
		Logger:   logger.Nop(),
		DB:       fakeDB{},
		PubSub:   fakePubSubClient{},
		Store:    repo,
		Registry: reg,
		Topics: func(string) publisher {
			if pub == nil {
				return nil
			}
			return pub
		},
	}
	if guard != nil {
		deps.Guard = guard
	}
	svc, err := NewService(config.OutboxConfig{BatchSize: 2, PollIntervalMS: 10, MaxAttempts: 5}, deps)
	require.NoError(t, err)
	return svc
}

func okRegistry() *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "orders-topic", AggregateType: enums.AggregateOrder},
		Payload:    &payloads.OrderCreatedEvent{},
	}}
}

func mustEnvelopePayload(t *testing.T) models.JSONB {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return models.JSONB(payload)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	parked    []models.OutboxDLQ
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) DeadLetterTx(_ *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, _ int) error {
	f.parked = append(f.parked, event.DeadLetter(reason, cause, time.Now()))
	f.terminal = append(f.terminal, event.ID)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return fakePublishResult{}
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, nil
}

type fakeGuard struct {
	claimed  map[string]bool
	releases int
	err      error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claimed: map[string]bool{}}
}

func (g *fakeGuard) Claim(_ context.Context, topic, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	key := topic + "/" + eventID
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, topic, eventID string) error {
	g.releases++
	delete(g.claimed, topic+"/"+eventID)
	return nil
}
