package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const (
	IntakeQueued    = "queued"
	IntakeDuplicate = "duplicate"
	IntakeIgnored   = "ignored"
	IntakeRejected  = "rejected"

	// inline processing runs right after the insert; the worker waits this long
	// before it may pick the same row.
	inlineGrace = 30 * time.Second
)

type intakeMetrics interface {
	IncReceived(eventType, outcome string)
}

type ServiceParams struct {
	Inbox     *InboxRepository
	Processor *Processor
	Logger    *logger.Logger
	Metrics   intakeMetrics
	Inline    bool
	Now       func() time.Time
}

// Service accepts verified Stripe events into the inbox.
type Service struct {
	inbox     *InboxRepository
	processor *Processor
	logg      *logger.Logger
	metrics   intakeMetrics
	inline    bool
	now       func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Inbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inbox repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Inline && params.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "processor required for inline processing")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		inbox:     params.Inbox,
		processor: params.Processor,
		logg:      params.Logger,
		metrics:   params.Metrics,
		inline:    params.Inline,
		now:       now,
	}, nil
}

// HandleEvent records a verified event. An error means nothing durable was
// written and Stripe should redeliver.
func (s *Service) HandleEvent(ctx context.Context, event *stripego.Event) (string, error) {
	if event == nil || event.Data == nil {
		return IntakeRejected, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	eventType := string(event.Type)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id": event.ID,
		"event_type":      eventType,
	})

	if event.Type != stripego.EventTypeCheckoutSessionCompleted {
		s.logg.Info(ctx, "stripe event ignored")
		s.count(eventType, IntakeIgnored)
		return IntakeIgnored, nil
	}

	var session stripego.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		s.count(eventType, IntakeRejected)
		return IntakeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	paymentIntentID := ""
	if session.PaymentIntent != nil {
		paymentIntentID = session.PaymentIntent.ID
	}
	if paymentIntentID == "" {
		// no charge to reconcile (e.g. a zero-amount session)
		s.logg.Warn(s.logg.WithField(ctx, "checkout_session_id", session.ID), "checkout session completed without payment intent")
		s.count(eventType, IntakeIgnored)
		return IntakeIgnored, nil
	}

	row := &models.StripeWebhookEvent{
		StripeEventID:     event.ID,
		EventType:         eventType,
		PaymentIntentID:   paymentIntentID,
		CheckoutSessionID: session.ID,
		Payload:           json.RawMessage(event.Data.Raw),
		NextAttemptAt:     s.now(),
	}
	if s.inline {
		row.NextAttemptAt = row.NextAttemptAt.Add(inlineGrace)
	}

	queued, err := s.inbox.Enqueue(ctx, row)
	if err != nil {
		return IntakeRejected, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue stripe event")
	}
	if !queued {
		s.logg.Info(ctx, "stripe event already enqueued")
		s.count(eventType, IntakeDuplicate)
		return IntakeDuplicate, nil
	}
	s.count(eventType, IntakeQueued)

	if s.inline {
		outcome, err := s.processor.Process(ctx, row)
		if err != nil {
			s.logg.Error(ctx, "inline reconciliation outcome not recorded", err)
		} else {
			s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "inline reconciliation finished")
		}
	}
	return IntakeQueued, nil
}

func (s *Service) count(eventType, outcome string) {
	if s.metrics != nil {
		s.metrics.IncReceived(eventType, outcome)
	}
}
