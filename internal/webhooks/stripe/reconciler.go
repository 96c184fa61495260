package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/internal/donations"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/tipjar-backend/pkg/stripe"
)

const (
	defaultDonorName    = "Anônimo"
	defaultDonorMessage = "Sem mensagem"
)

// ErrPermanent marks reconciliation failures that no retry can fix.
var ErrPermanent = errors.New("permanent reconciliation failure")

// IsPermanent reports whether err should dead-letter the inbox row.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

func permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type paymentIntentFetcher interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripego.PaymentIntent, error)
}

type ReconcilerParams struct {
	Payments  paymentIntentFetcher
	Donations *donations.Repository
	Tx        txRunner
	Outbox    outboxEmitter
	Logger    *logger.Logger
	Now       func() time.Time
}

// Reconciler applies a settled PaymentIntent to its donation.
type Reconciler struct {
	payments  paymentIntentFetcher
	donations *donations.Repository
	tx        txRunner
	outbox    outboxEmitter
	logg      *logger.Logger
	now       func() time.Time
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment intent fetcher required")
	}
	if params.Donations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "donation repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		payments:  params.Payments,
		donations: params.Donations,
		tx:        params.Tx,
		outbox:    params.Outbox,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// Reconcile re-reads the PaymentIntent from Stripe and marks its donation PAID.
// Only the call that moves the donation to PAID emits donation_paid; a repeat
// refreshes the donor fields and keeps the original paid_at.
func (r *Reconciler) Reconcile(ctx context.Context, paymentIntentID string) error {
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return permanent(pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required"))
	}
	ctx = r.logg.WithField(ctx, "payment_intent_id", paymentIntentID)

	intent, err := r.payments.GetPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		wrapped := pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve payment intent")
		if stripe.IsNotFound(err) || !stripe.IsRetryable(err) {
			return permanent(wrapped)
		}
		return wrapped
	}
	if intent == nil {
		return permanent(pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found"))
	}

	rawID := stripe.MetadataValue(intent.Metadata, donations.MetadataDonationID)
	if rawID == "" {
		return permanent(pkgerrors.New(pkgerrors.CodeValidation, "donationId missing from payment intent metadata"))
	}
	donationID, err := uuid.Parse(rawID)
	if err != nil {
		return permanent(pkgerrors.Wrap(pkgerrors.CodeValidation, err, "donationId is not a uuid"))
	}
	ctx = r.logg.WithDonationID(ctx, donationID)

	update := donations.PaidUpdate{
		DonorName:       orDefault(stripe.MetadataValue(intent.Metadata, donations.MetadataDonorName), defaultDonorName),
		DonorMessage:    orDefault(stripe.MetadataValue(intent.Metadata, donations.MetadataDonorMessage), defaultDonorMessage),
		PaymentIntentID: intent.ID,
		PaidAt:          r.now(),
	}
	if update.PaymentIntentID == "" {
		update.PaymentIntentID = paymentIntentID
	}

	var settled bool
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := r.donations.WithTx(tx)
		var err error
		settled, err = repo.MarkPaid(ctx, donationID, update)
		if errors.Is(err, donations.ErrDonationNotFound) {
			return permanent(pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "mark donation paid"))
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark donation paid")
		}
		if !settled {
			return nil
		}
		donation, err := repo.FindByID(ctx, donationID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload donation")
		}
		paidAt := update.PaidAt
		if donation.PaidAt != nil {
			paidAt = *donation.PaidAt
		}
		return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDonationPaid,
			AggregateType: enums.AggregateDonation,
			AggregateID:   donation.ID,
			Actor:         &outbox.ActorRef{UserID: donation.UserID, Source: "stripe"},
			OccurredAt:    paidAt,
			Data: payloads.DonationPaidEvent{
				DonationID:      donation.ID,
				UserID:          donation.UserID,
				Amount:          donation.Amount,
				DonorName:       donation.DonorName,
				DonorMessage:    donation.DonorMessage,
				PaymentIntentID: update.PaymentIntentID,
				PaidAt:          paidAt,
			},
		})
	})
	if err != nil {
		return err
	}

	if !settled {
		r.logg.Debug(ctx, "donation already paid, donor fields refreshed")
		return nil
	}
	r.logg.Info(ctx, "donation marked paid")
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
