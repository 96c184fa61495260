package models

import (
	"time"

	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Donation is one payment attempt. Amount is net of the platform fee and never
// recomputed after creation.
type Donation struct {
	ID                      uuid.UUID            `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                  uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	Amount                  int64                `gorm:"column:amount;not null"`
	Price                   int64                `gorm:"column:price;not null"`
	Fee                     int64                `gorm:"column:fee;not null"`
	DonorName               string               `gorm:"column:donor_name;not null"`
	DonorMessage            string               `gorm:"column:donor_message;not null"`
	Status                  enums.DonationStatus `gorm:"column:status;type:donation_status;not null;default:PENDING"`
	StripeCheckoutSessionID *string              `gorm:"column:stripe_checkout_session_id"`
	StripePaymentIntentID   *string              `gorm:"column:stripe_payment_intent_id"`
	PaidAt                  *time.Time           `gorm:"column:paid_at"`
	CancelledAt             *time.Time           `gorm:"column:cancelled_at"`
	CreatedAt               time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *Donation) BeforeCreate(*gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
