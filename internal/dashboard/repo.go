package dashboard

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns the user's donations newest first.
func (r *Repository) List(ctx context.Context, opts listQuery) ([]models.Donation, error) {
	query := r.db.WithContext(ctx).Model(&models.Donation{}).Where("user_id = ?", opts.userID)
	if opts.status != "" {
		query = query.Where("status = ?", opts.status)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.CreatedAt, opts.cursor.CreatedAt, opts.cursor.ID)
	}
	query = query.Order("created_at DESC").Order("id DESC")
	if opts.limit > 0 {
		query = query.Limit(opts.limit)
	}

	var rows []models.Donation
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// PaidTotals counts PAID donations and sums their net amounts.
func (r *Repository) PaidTotals(ctx context.Context, userID uuid.UUID) (count int64, amount int64, err error) {
	var totals struct {
		Count  int64
		Amount int64
	}
	err = r.db.WithContext(ctx).
		Model(&models.Donation{}).
		Select("COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount").
		Where("user_id = ? AND status = ?", userID, enums.DonationStatusPaid).
		Scan(&totals).Error
	return totals.Count, totals.Amount, err
}

// ConnectedAccountID returns the user's Stripe account id, empty when unset or
// the user is unknown.
func (r *Repository) ConnectedAccountID(ctx context.Context, userID uuid.UUID) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id", "stripe_connected_account_id").Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return user.ConnectedAccountID(), nil
}
