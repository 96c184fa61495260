package enums

// OutboxAggregateType maps to the aggregate_type enum.
type OutboxAggregateType string

const AggregateDonation OutboxAggregateType = "donation"

func (a OutboxAggregateType) IsValid() bool {
	return oneOf(a, []OutboxAggregateType{AggregateDonation})
}

// OutboxEventType maps to the event_type enum. Values are also the Pub/Sub
// "eventType" attribute.
type OutboxEventType string

const (
	EventDonationPaid      OutboxEventType = "donation_paid"
	EventDonationCancelled OutboxEventType = "donation_cancelled"
)

func (e OutboxEventType) IsValid() bool {
	return oneOf(e, []OutboxEventType{EventDonationPaid, EventDonationCancelled})
}

// WebhookEventStatus tracks a Stripe inbox row through reconciliation.
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

func (s WebhookEventStatus) String() string { return string(s) }

func (s WebhookEventStatus) IsValid() bool {
	return oneOf(s, []WebhookEventStatus{WebhookEventStatusPending, WebhookEventStatusProcessed, WebhookEventStatusFailed})
}
