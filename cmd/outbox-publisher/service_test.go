package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			donationEvent(t, "event-one", 0),
			donationEvent(t, "event-two", 0),
		},
	}
	pub := &fakePublisher{
		results: []publishResult{
			fakePublishResult{err: errors.New("transient")},
			fakePublishResult{},
		},
	}
	service := newTestService(t, repo, pub, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if len(repo.terminal) != 0 {
		t.Fatalf("transient failure must not be terminal")
	}
}

func TestServicePublishSetsAttributes(t *testing.T) {
	event := donationEvent(t, "evt-attrs", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_id"] != "evt-attrs" {
		t.Fatalf("unexpected event_id attribute %q", msg.Attributes["event_id"])
	}
	if msg.Attributes["event_type"] != string(enums.EventDonationPaid) {
		t.Fatalf("unexpected event_type attribute %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", msg.Attributes["aggregate_id"])
	}
	if string(msg.Data) != string(event.Payload) {
		t.Fatalf("payload not forwarded verbatim")
	}
}

func TestServiceSchedulesRetryWithBackoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	event := donationEvent(t, "evt-retry", 2)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}}
	service := newTestService(t, repo, pub, nil)
	service.now = func() time.Time { return now }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.nextAttempts) != 1 {
		t.Fatalf("expected one retry scheduled, got %d", len(repo.nextAttempts))
	}
	// third attempt: 5s doubled twice
	if want := now.Add(20 * time.Second); !repo.nextAttempts[0].Equal(want) {
		t.Fatalf("expected next attempt %s, got %s", want, repo.nextAttempts[0])
	}
}

func TestServiceParksEventAtMaxAttempts(t *testing.T) {
	event := donationEvent(t, "max-attempts", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	service := newTestService(t, repo, pub, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event parked as terminal, got %v", repo.terminal)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal event must not be rescheduled")
	}
}

func TestServiceParksUndecodablePayload(t *testing.T) {
	event := donationEvent(t, "broken", 0)
	event.Payload = json.RawMessage(`not-json`)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected undecodable event parked, got %d", len(repo.terminal))
	}
	if len(pub.messages) != 0 {
		t.Fatalf("undecodable event must not be published")
	}
}

func TestServiceSubmitsWholeBatchBeforeWaiting(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{donationEvent(t, "a", 0), donationEvent(t, "b", 0)}}
	pub := &orderedPublisher{}
	service := newTestService(t, repo, pub, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	want := []string{"publish", "publish", "get", "get"}
	if len(pub.calls) != len(want) {
		t.Fatalf("unexpected call sequence %v", pub.calls)
	}
	for i := range want {
		if pub.calls[i] != want[i] {
			t.Fatalf("unexpected call sequence %v", pub.calls)
		}
	}
}

func TestServiceRecordsOutcomeMetrics(t *testing.T) {
	broken := donationEvent(t, "broken", 0)
	broken.Payload = json.RawMessage(`{}`)
	repo := &fakeRepo{events: []models.OutboxEvent{donationEvent(t, "ok", 0), donationEvent(t, "flaky", 0), broken}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{err: errors.New("unavailable")}}}
	service := newTestService(t, repo, pub, nil)
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}

	want := `
# HELP tipjar_outbox_events_total Outbox rows handled by the publisher, by event type and outcome.
# TYPE tipjar_outbox_events_total counter
tipjar_outbox_events_total{event_type="donation_paid",outcome="parked"} 1
tipjar_outbox_events_total{event_type="donation_paid",outcome="published"} 1
tipjar_outbox_events_total{event_type="donation_paid",outcome="retry"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "tipjar_outbox_events_total"); err != nil {
		t.Fatal(err)
	}
}

func TestServiceEmptyBatch(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, nil)
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("empty batch should not report processed")
	}
}

func TestNewServiceRequiresPublisher(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
	})
	if err == nil {
		t.Fatalf("expected error when topic publisher is unavailable")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
		PubSub: config.PubSubConfig{DonationEventsTopic: "tipjar-donation-events"},
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		Publisher:  pub,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func donationEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventDonationPaid,
		AggregateType: enums.AggregateDonation,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(tb, eventID),
		AttemptCount:  attempts,
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events       []models.OutboxEvent
	published    []uuid.UUID
	failed       []uuid.UUID
	nextAttempts []time.Time
	terminal     []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, nextAttemptAt time.Time) error {
	f.failed = append(f.failed, id)
	f.nextAttempts = append(f.nextAttempts, nextAttemptAt)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) DonationEventsPublisher() *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

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

type orderedPublisher struct {
	calls []string
}

func (o *orderedPublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	o.calls = append(o.calls, "publish")
	return orderedResult{o}
}

type orderedResult struct{ o *orderedPublisher }

func (r orderedResult) Get(context.Context) (string, error) {
	r.o.calls = append(r.o.calls, "get")
	return "server-id", nil
}
