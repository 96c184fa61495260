package donations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tipjar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
)

func seedDonation(t *testing.T, repo *Repository, user models.User, createdAt time.Time) *models.Donation {
	t.Helper()
	d := &models.Donation{
		UserID:       user.ID,
		Amount:       1800,
		Price:        2000,
		Fee:          200,
		DonorName:    "Bia",
		DonorMessage: "Valeu!",
		CreatedAt:    createdAt,
	}
	require.NoError(t, repo.Create(context.Background(), d))
	return d
}

func TestRepositoryFindCreatorByAccountID(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.SeedUser(t, conn, "Ana", "ana", "acct_1")
	repo := NewRepository(conn)

	found, err := repo.FindCreatorByAccountID(context.Background(), "acct_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, user.ID, found.ID)

	missing, err := repo.FindCreatorByAccountID(context.Background(), "acct_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepositoryMarkPaidSettlesOnce(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.SeedUser(t, conn, "Ana", "ana", "acct_1")
	repo := NewRepository(conn)
	d := seedDonation(t, repo, user, time.Now().UTC())

	paidAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	settled, err := repo.MarkPaid(context.Background(), d.ID, PaidUpdate{DonorName: "Anônimo", DonorMessage: "Sem mensagem", PaymentIntentID: "pi_1", PaidAt: paidAt})
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = repo.MarkPaid(context.Background(), d.ID, PaidUpdate{DonorName: "Bia", DonorMessage: "Valeu!", PaymentIntentID: "pi_1", PaidAt: paidAt.Add(time.Hour)})
	require.NoError(t, err)
	assert.False(t, settled)

	stored, err := repo.FindByID(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusPaid, stored.Status)
	assert.Equal(t, "Bia", stored.DonorName)
	assert.Equal(t, "Valeu!", stored.DonorMessage)
	assert.Equal(t, int64(1800), stored.Amount)
	require.NotNil(t, stored.StripePaymentIntentID)
	assert.Equal(t, "pi_1", *stored.StripePaymentIntentID)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaidAt.Equal(paidAt), "paid_at moved to %s", stored.PaidAt)
}

func TestRepositoryMarkPaidUnknownDonation(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))

	settled, err := repo.MarkPaid(context.Background(), uuid.New(), PaidUpdate{DonorName: "x", DonorMessage: "y", PaymentIntentID: "pi", PaidAt: time.Now().UTC()})
	require.ErrorIs(t, err, ErrDonationNotFound)
	assert.False(t, settled)
}

func TestRepositoryCancelOnlyPending(t *testing.T) {
	conn := dbtest.Open(t)
	user := dbtest.SeedUser(t, conn, "Ana", "ana", "acct_1")
	repo := NewRepository(conn)
	now := time.Now().UTC()

	stale := seedDonation(t, repo, user, now.Add(-72*time.Hour))
	fresh := seedDonation(t, repo, user, now.Add(-time.Hour))
	paid := seedDonation(t, repo, user, now.Add(-96*time.Hour))
	_, err := repo.MarkPaid(context.Background(), paid.ID, PaidUpdate{DonorName: "x", DonorMessage: "y", PaymentIntentID: "pi", PaidAt: now})
	require.NoError(t, err)

	rows, err := repo.ListStalePending(context.Background(), now.Add(-48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)

	ok, err := repo.MarkCancelled(context.Background(), stale.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkCancelled(context.Background(), paid.ID, now)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusPending, stored.Status)

	stored, err = repo.FindByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DonationStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
}
