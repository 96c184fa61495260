package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StripeWebhookEvent is a verified Stripe event waiting for (or done with) reconciliation.
type StripeWebhookEvent struct {
	ID                uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StripeEventID     string                   `gorm:"column:stripe_event_id;not null"`
	EventType         string                   `gorm:"column:event_type;not null"`
	PaymentIntentID   string                   `gorm:"column:payment_intent_id;not null"`
	CheckoutSessionID string                   `gorm:"column:checkout_session_id;not null"`
	Payload           json.RawMessage          `gorm:"column:payload;type:jsonb;not null"`
	Status            enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null;default:pending"`
	AttemptCount      int                      `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt     time.Time                `gorm:"column:next_attempt_at;not null"`
	LastError         *string                  `gorm:"column:last_error"`
	ProcessedAt       *time.Time               `gorm:"column:processed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (StripeWebhookEvent) TableName() string { return "stripe_webhook_events" }

func (e *StripeWebhookEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
