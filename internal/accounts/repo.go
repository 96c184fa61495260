package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ConnectedAccountID returns the stored Stripe account id, or "" when unset.
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

// SaveConnectedAccountID stores the account id on the user row. It fails with
// gorm.ErrRecordNotFound when the user does not exist.
func (r *Repository) SaveConnectedAccountID(ctx context.Context, userID uuid.UUID, accountID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"stripe_connected_account_id": accountID,
			"updated_at":                  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
