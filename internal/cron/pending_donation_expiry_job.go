package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/internal/donations"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox/payloads"
)

const (
	defaultPendingTTL      = 48 * time.Hour
	defaultExpiryBatchSize = 200
	expiryReason           = "checkout_abandoned"
)

// PendingDonationExpiryJobParams configure the abandoned checkout sweeper.
type PendingDonationExpiryJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Donations *donations.Repository
	Outbox    outboxEmitter
	TTL       time.Duration
	BatchSize int
}

// NewPendingDonationExpiryJob cancels donations whose checkout was never completed.
func NewPendingDonationExpiryJob(params PendingDonationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Donations == nil {
		return nil, fmt.Errorf("donations repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatchSize
	}
	return &pendingDonationExpiryJob{
		logg:      params.Logger,
		db:        params.DB,
		donations: params.Donations,
		outbox:    params.Outbox,
		ttl:       ttl,
		batchSize: batch,
		now:       time.Now,
	}, nil
}

type pendingDonationExpiryJob struct {
	logg      *logger.Logger
	db        txRunner
	donations *donations.Repository
	outbox    outboxEmitter
	ttl       time.Duration
	batchSize int
	now       func() time.Time
}

func (j *pendingDonationExpiryJob) Name() string { return "pending-donation-expiry" }

func (j *pendingDonationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.donations.ListStalePending(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale pending donations: %w", err)
	}

	var (
		errs      error
		cancelled int
	)
	for _, donation := range stale {
		ok, err := j.expire(ctx, donation)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire donation %s: %w", donation.ID, err))
			continue
		}
		if ok {
			cancelled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":     cutoff,
		"candidates": len(stale),
		"cancelled":  cancelled,
	})
	j.logg.Info(logCtx, "pending donation expiry complete")
	return errs
}

// expire reports false when a webhook settled the donation first.
func (j *pendingDonationExpiryJob) expire(ctx context.Context, donation models.Donation) (bool, error) {
	var cancelled bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		at := j.now().UTC()
		ok, err := j.donations.WithTx(tx).MarkCancelled(ctx, donation.ID, at)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		cancelled = true
		return j.outbox.Emit(ctx, tx, cancelledEvent(donation, at))
	})
	return cancelled, err
}

func cancelledEvent(donation models.Donation, at time.Time) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventDonationCancelled,
		AggregateType: enums.AggregateDonation,
		AggregateID:   donation.ID,
		Actor:         &outbox.ActorRef{UserID: donation.UserID, Source: "cron"},
		Version:       1,
		OccurredAt:    at,
		Data: payloads.DonationCancelledEvent{
			DonationID:  donation.ID,
			UserID:      donation.UserID,
			Reason:      expiryReason,
			CancelledAt: at,
		},
	}
}
