package stripewebhook

import (
	"context"
	"time"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/retry"
)

const (
	defaultMaxAttempts = 8
	defaultBatchSize   = 25
	defaultBaseBackoff = 30 * time.Second
	defaultMaxBackoff  = 30 * time.Minute
	defaultLease       = 2 * time.Minute
	backoffJitter      = 5 * time.Second

	OutcomeProcessed = "processed"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
)

type reconciler interface {
	Reconcile(ctx context.Context, paymentIntentID string) error
}

type processorMetrics interface {
	IncProcessed(outcome string)
	ObserveReconcile(d time.Duration)
}

type ProcessorParams struct {
	Inbox       *InboxRepository
	Reconciler  reconciler
	Logger      *logger.Logger
	Metrics     processorMetrics
	MaxAttempts int
	BatchSize   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Lease       time.Duration
	Now         func() time.Time
}

// Processor drives inbox rows through reconciliation with retries.
type Processor struct {
	inbox       *InboxRepository
	reconciler  reconciler
	logg        *logger.Logger
	metrics     processorMetrics
	maxAttempts int
	batchSize   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
	lease       time.Duration
	now         func() time.Time
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Inbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inbox repository required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	p := &Processor{
		inbox:       params.Inbox,
		reconciler:  params.Reconciler,
		logg:        params.Logger,
		metrics:     params.Metrics,
		maxAttempts: params.MaxAttempts,
		batchSize:   params.BatchSize,
		baseBackoff: params.BaseBackoff,
		maxBackoff:  params.MaxBackoff,
		lease:       params.Lease,
		now:         params.Now,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = defaultMaxAttempts
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.baseBackoff <= 0 {
		p.baseBackoff = defaultBaseBackoff
	}
	if p.maxBackoff <= 0 {
		p.maxBackoff = defaultMaxBackoff
	}
	if p.lease <= 0 {
		p.lease = defaultLease
	}
	if p.now == nil {
		p.now = func() time.Time { return time.Now().UTC() }
	}
	return p, nil
}

// ProcessDue claims one batch of due rows and reconciles each. It returns the
// number of rows claimed.
func (p *Processor) ProcessDue(ctx context.Context) (int, error) {
	rows, err := p.inbox.ClaimDue(ctx, p.now(), p.batchSize, p.lease)
	if err != nil {
		return 0, err
	}
	for i := range rows {
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		if _, err := p.Process(ctx, &rows[i]); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

// Process reconciles one row and records the outcome. The returned error is
// only set when the outcome itself could not be stored.
func (p *Processor) Process(ctx context.Context, row *models.StripeWebhookEvent) (string, error) {
	ctx = p.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   row.StripeEventID,
		"payment_intent_id": row.PaymentIntentID,
		"attempt":           row.AttemptCount + 1,
	})

	started := time.Now()
	reconcileErr := p.reconciler.Reconcile(ctx, row.PaymentIntentID)
	if p.metrics != nil {
		p.metrics.ObserveReconcile(time.Since(started))
	}

	attempts := row.AttemptCount + 1
	outcome, err := p.record(ctx, row, attempts, reconcileErr)
	if p.metrics != nil && err == nil {
		p.metrics.IncProcessed(outcome)
	}
	return outcome, err
}

func (p *Processor) record(ctx context.Context, row *models.StripeWebhookEvent, attempts int, reconcileErr error) (string, error) {
	now := p.now()
	if reconcileErr == nil {
		return OutcomeProcessed, p.inbox.MarkProcessed(ctx, row.ID, attempts, now)
	}

	logCtx := p.logg.WithField(ctx, "error", reconcileErr.Error())
	if IsPermanent(reconcileErr) || attempts >= p.maxAttempts {
		p.logg.Error(logCtx, "stripe webhook event dead-lettered", reconcileErr)
		return OutcomeFailed, p.inbox.MarkFailed(ctx, row.ID, attempts, reconcileErr)
	}

	delay := retry.WithJitter(retry.Exponential(attempts, p.baseBackoff, p.maxBackoff), backoffJitter)
	next := now.Add(delay)
	p.logg.Warn(p.logg.WithField(logCtx, "next_attempt_at", next.Format(time.RFC3339)), "stripe webhook reconciliation will be retried")
	return OutcomeRetry, p.inbox.MarkRetry(ctx, row.ID, attempts, next, reconcileErr)
}

// Run polls until ctx is cancelled. Empty polls wait interval; errors back off.
func (p *Processor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	backoff := interval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		claimed, err := p.ProcessDue(ctx)
		if err != nil && ctx.Err() == nil {
			p.logg.Error(ctx, "webhook inbox batch failed", err)
			backoff = retry.Next(backoff, interval, time.Minute)
			if err := sleep(ctx, retry.WithJitter(backoff, 250*time.Millisecond)); err != nil {
				return err
			}
			continue
		}
		backoff = interval

		if claimed >= p.batchSize {
			continue
		}
		if err := sleep(ctx, retry.WithJitter(interval, 250*time.Millisecond)); err != nil {
			return err
		}
	}
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
