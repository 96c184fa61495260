package payloads

import (
	"time"

	"github.com/google/uuid"
)

// DonationPaidEvent is emitted when the webhook reconciler marks a donation PAID.
type DonationPaidEvent struct {
	DonationID      uuid.UUID `json:"donationId"`
	UserID          uuid.UUID `json:"userId"`
	Amount          int64     `json:"amount"`
	DonorName       string    `json:"donorName"`
	DonorMessage    string    `json:"donorMessage"`
	PaymentIntentID string    `json:"paymentIntentId"`
	PaidAt          time.Time `json:"paidAt"`
}

// DonationCancelledEvent is emitted when a stale PENDING donation expires.
type DonationCancelledEvent struct {
	DonationID  uuid.UUID `json:"donationId"`
	UserID      uuid.UUID `json:"userId"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelledAt"`
}
