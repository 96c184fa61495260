package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/retry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	batchPublishTimeout = 15 * time.Second

	idleJitter      = 250 * time.Millisecond
	maxErrorBackoff = 10 * time.Second
	retryBaseDelay  = 5 * time.Second
	retryMaxDelay   = 15 * time.Minute
)

// errNotRetryable marks failures that no later attempt can fix.
var errNotRetryable = errors.New("outbox event not retryable")

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	DonationEventsPublisher() *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, nextAttemptAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	PubSub     pubSubClient
	Repository outboxRepository
	Publisher  publisher
	Metrics    *metrics.OutboxMetrics
	Now        func() time.Time
}

// Service moves committed outbox rows to the donation events topic.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	pubsub       pubSubClient
	publisher    publisher
	metrics      *metrics.OutboxMetrics
	topic        string
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	}

	topic := params.Config.PubSub.DonationEventsTopic
	pub := params.Publisher
	if pub == nil {
		if p := params.PubSub.DonationEventsPublisher(); p != nil {
			pub = gcpPublisher{p}
		}
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher not configured for topic %q", topic)
	}

	cfg := params.Config.Outbox
	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		publisher:    pub,
		metrics:      params.Metrics,
		topic:        topic,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: defaultPollInterval,
		now:          params.Now,
	}
	if cfg.PollIntervalMS > 0 {
		s.pollInterval = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx ends. Full batches are followed immediately by the next
// poll; batch errors back off exponentially up to maxErrorBackoff.
func (s *Service) Run(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		wait := retry.WithJitter(s.pollInterval, idleJitter)
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = retry.Next(backoff, s.pollInterval, maxErrorBackoff)
			wait = retry.WithJitter(backoff, idleJitter)
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// processBatch locks one batch, hands every row to Pub/Sub before waiting on
// any result, then records each row's outcome. One failing row never blocks
// the rest.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	started := time.Now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil || len(events) == 0 {
			return err
		}
		processed = true

		publishCtx, cancel := context.WithTimeout(ctx, batchPublishTimeout)
		defer cancel()

		pending := make([]publishResult, len(events))
		outcomes := make([]error, len(events))
		for i, event := range events {
			pending[i], outcomes[i] = s.submit(publishCtx, event)
		}
		for i := range events {
			if outcomes[i] == nil {
				_, outcomes[i] = pending[i].Get(publishCtx)
			}
		}

		for i, event := range events {
			if err := s.record(ctx, tx, event, outcomes[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if processed {
		s.metrics.ObserveBatch(time.Since(started))
	}
	return processed, err
}

func (s *Service) submit(ctx context.Context, event models.OutboxEvent) (publishResult, error) {
	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", errNotRetryable, err)
	}
	result := s.publisher.Publish(ctx, &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":     envelope.EventID,
			"event_type":   string(event.EventType),
			"aggregate_id": event.AggregateID.String(),
		},
	})
	if result == nil {
		return nil, fmt.Errorf("%w: publisher returned nil for topic %s", errNotRetryable, s.topic)
	}
	return result, nil
}

// record marks the row published, rescheduled or parked.
func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, publishErr error) error {
	eventType := string(event.EventType)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    eventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
		"topic":         s.topic,
	})

	if publishErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncEvent(eventType, metrics.OutboxPublished)
		s.logg.Info(ctx, "outbox event published")
		return nil
	}

	attempt := event.AttemptCount + 1
	ctx = s.logg.WithFields(ctx, map[string]any{"attempt_count": attempt, "error": publishErr.Error()})

	if errors.Is(publishErr, errNotRetryable) || attempt >= s.maxAttempts {
		if err := s.repo.MarkTerminalTx(tx, event.ID, publishErr, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.IncEvent(eventType, metrics.OutboxParked)
		s.logg.Warn(ctx, "outbox event will not be retried")
		return nil
	}

	next := s.now().Add(retry.Exponential(attempt, retryBaseDelay, retryMaxDelay))
	if err := s.repo.MarkFailedTx(tx, event.ID, publishErr, next); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	s.metrics.IncEvent(eventType, metrics.OutboxRetry)
	s.logg.Warn(s.logg.WithField(ctx, "next_attempt_at", next), "outbox publish failed")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gcpPublisher adapts the SDK publisher so tests can swap in fakes.
type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}
