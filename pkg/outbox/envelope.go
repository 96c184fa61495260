package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is the current shape of PayloadEnvelope.
const EnvelopeVersion = 1

// ActorRef names the creator a donation event belongs to and what moved it
// ("stripe" for webhooks, "cron" for expiry).
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Source string    `json:"source,omitempty"`
}

// PayloadEnvelope is what outbox_events.payload holds and what subscribers
// receive as the Pub/Sub message body. Data is one of the payloads package
// types, selected by the row's event type.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("marshal event data: %w", err)
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	version := event.Version
	if version <= 0 {
		version = EnvelopeVersion
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}, nil
}

// DecodeEnvelope parses a stored payload. A payload without an event id or
// data can never be published and is reported as an error.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode outbox envelope: %w", err)
	}
	switch {
	case envelope.EventID == "":
		return envelope, errors.New("outbox envelope missing eventId")
	case len(envelope.Data) == 0 || string(envelope.Data) == "null":
		return envelope, errors.New("outbox envelope missing data")
	}
	return envelope, nil
}
