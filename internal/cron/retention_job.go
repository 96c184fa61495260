package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const defaultRetentionDays = 30

type inboxPruner interface {
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewWebhookInboxRetentionJob prunes processed Stripe webhook rows older than
// days. Pending and failed rows are kept for inspection.
func NewWebhookInboxRetentionJob(logg *logger.Logger, inbox inboxPruner, days int) (Job, error) {
	if inbox == nil {
		return nil, errors.New("webhook inbox repository required")
	}
	return newRetentionJob("webhook-inbox-retention", logg, days, inbox.DeleteProcessedBefore)
}

// NewOutboxRetentionJob prunes published outbox rows older than days.
// Undelivered and parked events stay for the publisher and for operators.
func NewOutboxRetentionJob(logg *logger.Logger, repo outboxPruner, days int) (Job, error) {
	if repo == nil {
		return nil, errors.New("outbox repository required")
	}
	return newRetentionJob("outbox-retention", logg, days, func(ctx context.Context, cutoff time.Time) (int64, error) {
		return repo.DeletePublishedBefore(ctx, nil, cutoff)
	})
}

type retentionJob struct {
	name  string
	logg  *logger.Logger
	keep  time.Duration
	prune func(ctx context.Context, cutoff time.Time) (int64, error)
	now   func() time.Time
}

func newRetentionJob(name string, logg *logger.Logger, days int, prune func(context.Context, time.Time) (int64, error)) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if days <= 0 {
		days = defaultRetentionDays
	}
	return &retentionJob{
		name:  name,
		logg:  logg,
		keep:  time.Duration(days) * 24 * time.Hour,
		prune: prune,
		now:   time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	deleted, err := j.prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
