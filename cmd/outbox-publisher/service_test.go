package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorpage-backend/pkg/config"
	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/enums"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/creatorpage-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func orderResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "cp-domain-events",
			AggregateType: enums.AggregateOrder,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: time.Now(),
		},
		Payload: &payloads.OrderResolvedEvent{},
	}
}

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			orderEvent(t, enums.EventOrderPaid, 0),
			orderEvent(t, enums.EventOrderExpired, 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.failed) != 1 || repo.failed[0] != repo.events[0].ID {
		t.Fatalf("expected first row to be marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != repo.events[1].ID {
		t.Fatalf("expected second row to be published, got %v", repo.published)
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("transient failures must not be terminal")
	}
}

func TestServiceProcessBatchEmptyReportsIdle(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{resolved: orderResolved()}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("expected idle batch")
	}
}

func TestServiceProcessBatchParksNonRetryable(t *testing.T) {
	event := orderEvent(t, enums.EventOrderPaid, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row to be parked, got %v", repo.terminal)
	}
	if len(repo.published) != 0 || len(repo.failed) != 0 {
		t.Fatalf("parked row must not be published or retried")
	}
}

func TestServiceProcessBatchParksAfterMaxAttempts(t *testing.T) {
	event := orderEvent(t, enums.EventOrderFailed, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: orderResolved()}, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected row to be parked, got %v", repo.terminal)
	}
	if repo.terminalAttempts != 2 {
		t.Fatalf("expected attempt count 2, got %d", repo.terminalAttempts)
	}
}

func TestServiceMissingPublisherIsTerminal(t *testing.T) {
	event := orderEvent(t, enums.EventOrderOpened, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: orderResolved()}, nil)
	service.publisherFactory = func(string) publisher { return nil }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected unconfigured topic to park the row")
	}
}

func TestMessageAttributesCarryActor(t *testing.T) {
	event := orderEvent(t, enums.EventOrderPaid, 0)
	resolved := orderResolved()
	resolved.Envelope = outbox.PayloadEnvelope{EventID: "evt-1", Actor: &outbox.ActorRef{ID: "guest:asha@example.com"}}

	attrs := messageAttributes(event, resolved)
	if attrs["event_type"] != string(enums.EventOrderPaid) || attrs["aggregate_type"] != string(enums.AggregateOrder) {
		t.Fatalf("unexpected attributes %v", attrs)
	}
	if attrs["actor"] != "guest:asha@example.com" {
		t.Fatalf("expected actor attribute, got %q", attrs["actor"])
	}
	resolved.Envelope = outbox.PayloadEnvelope{EventID: "evt-2"}
	if _, ok := messageAttributes(event, resolved)["actor"]; ok {
		t.Fatalf("actor attribute should be omitted when unknown")
	}
}

func TestPublishedMessageCarriesOrderAndIntent(t *testing.T) {
	orderID := uuid.New()
	intentID := uuid.New()
	resolved := orderResolved()
	resolved.Payload = &payloads.OrderResolvedEvent{OrderID: orderID, IntentID: &intentID, Status: enums.OrderStatusPaid}

	event := orderEvent(t, enums.EventOrderPaid, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event, orderEvent(t, enums.EventOrderPaid, 0)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, nil)
	factoryCalls := 0
	service.publisherFactory = func(string) publisher {
		factoryCalls++
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 2 {
		t.Fatalf("expected two messages, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["order_id"] != orderID.String() || attrs["intent_id"] != intentID.String() || attrs["order_status"] != "paid" {
		t.Fatalf("expected order correlation attributes, got %v", attrs)
	}
	if attrs["event_id"] != event.ID.String() {
		t.Fatalf("envelope attributes must win over payload ones, got %v", attrs)
	}
	if factoryCalls != 1 {
		t.Fatalf("expected one publisher per topic, factory called %d times", factoryCalls)
	}

	service.Close()
	if pub.stops != 1 || len(service.publishers) != 0 {
		t.Fatalf("expected cached publisher to be stopped, stops=%d", pub.stops)
	}
}

func TestNextBackoffCaps(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("expected cap at 10s, got %s", got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         reg,
		PublisherFactory: func(_ string) publisher { return pub },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
}

func (f *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, attempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = attempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	stops    int
}

func (f *fakePublisher) Stop() { f.stops++ }

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

func TestUnprovisionedTopics(t *testing.T) {
	missing := unprovisionedTopics([]string{"cp-domain-events", "cp-order-events"}, []string{"cp-domain-events"})
	if len(missing) != 1 || missing[0] != "cp-order-events" {
		t.Fatalf("unexpected missing topics %v", missing)
	}
	if got := unprovisionedTopics([]string{"cp-domain-events"}, []string{"cp-domain-events"}); len(got) != 0 {
		t.Fatalf("expected none missing, got %v", got)
	}
}
