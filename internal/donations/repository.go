package donations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
)

// Repository persists donations and resolves the creator behind a checkout.
type Repository struct {
	db *gorm.DB
}

// PaidUpdate carries the fields the reconciler overwrites when a payment settles.
type PaidUpdate struct {
	DonorName       string
	DonorMessage    string
	PaymentIntentID string
	PaidAt          time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindCreatorByAccountID returns nil when no user owns the connected account.
func (r *Repository) FindCreatorByAccountID(ctx context.Context, accountID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("stripe_connected_account_id = ?", accountID).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repository) Create(ctx context.Context, donation *models.Donation) error {
	if donation.Status == "" {
		donation.Status = enums.DonationStatusPending
	}
	return r.db.WithContext(ctx).Create(donation).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var donation models.Donation
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&donation).Error; err != nil {
		return nil, err
	}
	return &donation, nil
}

func (r *Repository) SetCheckoutSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stripe_checkout_session_id": sessionID,
			"updated_at":                 time.Now().UTC(),
		}).Error
}

// ErrDonationNotFound is returned when an update targets a missing donation.
var ErrDonationNotFound = errors.New("donation not found")

// MarkPaid settles the donation and reports whether this call moved it to
// PAID. Re-applying only refreshes the donor fields; paid_at keeps the first
// settlement time.
func (r *Repository) MarkPaid(ctx context.Context, id uuid.UUID, update PaidUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND status <> ?", id, enums.DonationStatusPaid).
		Updates(map[string]any{
			"status":                   enums.DonationStatusPaid,
			"donor_name":               update.DonorName,
			"donor_message":            update.DonorMessage,
			"stripe_payment_intent_id": update.PaymentIntentID,
			"paid_at":                  gorm.Expr("COALESCE(paid_at, ?)", update.PaidAt),
			"updated_at":               time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	res = r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"donor_name":    update.DonorName,
			"donor_message": update.DonorMessage,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrDonationNotFound
	}
	return false, nil
}

// ListStalePending returns PENDING donations created before cutoff, oldest first.
func (r *Repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Donation, error) {
	var rows []models.Donation
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.DonationStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkCancelled flips a donation to CANCELLED only while it is still PENDING.
func (r *Repository) MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Where("id = ? AND status = ?", id, enums.DonationStatusPending).
		Updates(map[string]any{
			"status":       enums.DonationStatusCancelled,
			"cancelled_at": at,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
