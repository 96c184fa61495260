package stripewebhook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/internal/donations"
	"github.com/angelmondragon/tipjar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
)

type fakePayments struct {
	intents map[string]*stripego.PaymentIntent
	err     error
	calls   int
}

func (f *fakePayments) GetPaymentIntent(_ context.Context, id string) (*stripego.PaymentIntent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	pi, ok := f.intents[id]
	if !ok {
		return nil, &stripego.Error{HTTPStatusCode: http.StatusNotFound, Code: stripego.ErrorCodeResourceMissing}
	}
	return pi, nil
}

type fixture struct {
	conn       *gorm.DB
	creator    models.User
	donation   *models.Donation
	payments   *fakePayments
	reconciler *Reconciler
	paidAt     time.Time
	clock      *time.Time
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	creator := dbtest.SeedUser(t, conn, "Ana", "ana", "acct_1")
	repo := donations.NewRepository(conn)
	donation := &models.Donation{
		UserID:       creator.ID,
		Amount:       1800,
		Price:        2000,
		Fee:          200,
		DonorName:    "Bia",
		DonorMessage: "Valeu!",
	}
	require.NoError(t, repo.Create(context.Background(), donation))

	payments := &fakePayments{intents: map[string]*stripego.PaymentIntent{}}
	paidAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	clock := paidAt
	rec, err := NewReconciler(ReconcilerParams{
		Payments:  payments,
		Donations: repo,
		Tx:        txFor(conn),
		Outbox:    outbox.NewService(outbox.NewRepository(conn), testLogger()),
		Logger:    testLogger(),
		Now:       func() time.Time { return clock },
	})
	require.NoError(t, err)
	return &fixture{conn: conn, creator: creator, donation: donation, payments: payments, reconciler: rec, paidAt: paidAt, clock: &clock}
}

type gormTx struct{ db *gorm.DB }

func (g gormTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return g.db.WithContext(ctx).Transaction(fn)
}

func txFor(conn *gorm.DB) txRunner { return gormTx{db: conn} }

func (f *fixture) intent(id string, metadata map[string]string) {
	f.payments.intents[id] = &stripego.PaymentIntent{ID: id, Metadata: metadata}
}

func (f *fixture) load(t *testing.T) models.Donation {
	t.Helper()
	var d models.Donation
	require.NoError(t, f.conn.Where("id = ?", f.donation.ID).Take(&d).Error)
	return d
}

func TestReconcileMarksDonationPaid(t *testing.T) {
	f := newFixture(t)
	f.intent("pi_1", map[string]string{
		"donationId":   f.donation.ID.String(),
		"donorName":    "Bia",
		"donorMessage": "Valeu!",
	})

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "pi_1"))

	d := f.load(t)
	assert.Equal(t, enums.DonationStatusPaid, d.Status)
	assert.Equal(t, "Bia", d.DonorName)
	assert.Equal(t, "Valeu!", d.DonorMessage)
	assert.Equal(t, int64(1800), d.Amount)
	require.NotNil(t, d.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *d.StripePaymentIntentID)
	require.NotNil(t, d.PaidAt)
	assert.True(t, d.PaidAt.Equal(f.paidAt))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventDonationPaid, events[0].EventType)
	assert.Equal(t, f.donation.ID, events[0].AggregateID)
	envelope, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	assert.Contains(t, string(envelope.Data), `"amount":1800`)
}

func TestReconcileDefaultsBlankDonorFields(t *testing.T) {
	f := newFixture(t)
	f.intent("pi_2", map[string]string{
		"donationId":   f.donation.ID.String(),
		"donorMessage": "   ",
	})

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "pi_2"))

	d := f.load(t)
	assert.Equal(t, "Anônimo", d.DonorName)
	assert.Equal(t, "Sem mensagem", d.DonorMessage)
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.intent("pi_3", map[string]string{"donationId": f.donation.ID.String(), "donorName": "Bia", "donorMessage": "Valeu!"})

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "pi_3"))
	first := f.load(t)

	*f.clock = f.paidAt.Add(time.Hour)
	f.intent("pi_3", map[string]string{"donationId": f.donation.ID.String(), "donorName": "Bia S.", "donorMessage": "Valeu!"})
	require.NoError(t, f.reconciler.Reconcile(context.Background(), "pi_3"))
	second := f.load(t)

	assert.Equal(t, enums.DonationStatusPaid, second.Status)
	assert.Equal(t, "Bia S.", second.DonorName)
	assert.Equal(t, first.Amount, second.Amount)
	require.NotNil(t, second.PaidAt)
	assert.True(t, second.PaidAt.Equal(f.paidAt), "paid_at moved to %s", second.PaidAt)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestReconcileRevivesCancelledDonation(t *testing.T) {
	f := newFixture(t)
	ok, err := donations.NewRepository(f.conn).MarkCancelled(context.Background(), f.donation.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	f.intent("pi_late", map[string]string{"donationId": f.donation.ID.String()})

	require.NoError(t, f.reconciler.Reconcile(context.Background(), "pi_late"))
	assert.Equal(t, enums.DonationStatusPaid, f.load(t).Status)
}

func TestReconcilePermanentFailures(t *testing.T) {
	f := newFixture(t)
	f.intent("pi_no_meta", nil)
	f.intent("pi_bad_id", map[string]string{"donationId": "not-a-uuid"})
	f.intent("pi_unknown", map[string]string{"donationId": uuid.NewString()})

	for _, id := range []string{"pi_no_meta", "pi_bad_id", "pi_unknown", "pi_missing_at_stripe", ""} {
		err := f.reconciler.Reconcile(context.Background(), id)
		require.Error(t, err, id)
		assert.True(t, IsPermanent(err), "expected permanent failure for %q: %v", id, err)
	}

	assert.Equal(t, enums.DonationStatusPending, f.load(t).Status)
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReconcileTransientStripeFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.payments.err = errors.New("connection reset")

	err := f.reconciler.Reconcile(context.Background(), "pi_1")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	f.payments.err = &stripego.Error{HTTPStatusCode: http.StatusServiceUnavailable, Type: stripego.ErrorTypeAPI}
	err = f.reconciler.Reconcile(context.Background(), "pi_1")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
