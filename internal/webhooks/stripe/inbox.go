package stripewebhook

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
)

const inboxEventIDConstraint = "ux_stripe_webhook_events_event_id"

// InboxRepository stores verified Stripe events until they are reconciled.
type InboxRepository struct {
	db *gorm.DB
}

func NewInboxRepository(db *gorm.DB) *InboxRepository {
	return &InboxRepository{db: db}
}

// Enqueue inserts the event. It returns false without error when the Stripe
// event id is already stored.
func (r *InboxRepository) Enqueue(ctx context.Context, event *models.StripeWebhookEvent) (bool, error) {
	if event.Status == "" {
		event.Status = enums.WebhookEventStatusPending
	}
	if event.NextAttemptAt.IsZero() {
		event.NextAttemptAt = time.Now().UTC()
	}
	err := r.db.WithContext(ctx).Create(event).Error
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err, inboxEventIDConstraint) {
		return false, nil
	}
	return false, err
}

func (r *InboxRepository) FindByStripeEventID(ctx context.Context, stripeEventID string) (*models.StripeWebhookEvent, error) {
	var row models.StripeWebhookEvent
	err := r.db.WithContext(ctx).Where("stripe_event_id = ?", stripeEventID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ClaimDue leases up to limit pending rows whose next attempt is due by pushing
// next_attempt_at out by lease. Concurrent workers skip the locked rows.
func (r *InboxRepository) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]models.StripeWebhookEvent, error) {
	var rows []models.StripeWebhookEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", enums.WebhookEventStatusPending, now).
			Order("next_attempt_at ASC").
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return tx.Model(&models.StripeWebhookEvent{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"next_attempt_at": now.Add(lease),
				"updated_at":      now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *InboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, attempts int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        enums.WebhookEventStatusProcessed,
			"attempt_count": attempts,
			"processed_at":  at,
			"last_error":    nil,
			"updated_at":    at,
		}).Error
}

func (r *InboxRepository) MarkRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("id = ? AND status = ?", id, enums.WebhookEventStatusPending).
		Updates(map[string]any{
			"attempt_count":   attempts,
			"next_attempt_at": next,
			"last_error":      errorText(cause),
			"updated_at":      time.Now().UTC(),
		}).Error
}

// MarkFailed dead-letters the row; only manual intervention revives it.
func (r *InboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, cause error) error {
	return r.db.WithContext(ctx).
		Model(&models.StripeWebhookEvent{}).
		Where("id = ? AND status = ?", id, enums.WebhookEventStatusPending).
		Updates(map[string]any{
			"status":        enums.WebhookEventStatusFailed,
			"attempt_count": attempts,
			"last_error":    errorText(cause),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// DeleteProcessedBefore removes processed rows older than cutoff. Failed rows
// are kept for inspection.
func (r *InboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", enums.WebhookEventStatusProcessed, cutoff).
		Delete(&models.StripeWebhookEvent{})
	return res.RowsAffected, res.Error
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > 2000 {
		msg = msg[:2000]
	}
	return &msg
}
