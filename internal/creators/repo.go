package creators

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
)

// Repository reads and updates creator profile columns on the users table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByUsername returns nil, nil when no creator owns the username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.takeUser(ctx, "username = ?", username)
}

// FindByID returns nil, nil when the user does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.takeUser(ctx, "id = ?", id)
}

func (r *Repository) takeUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	switch err := r.db.WithContext(ctx).Where(where, arg).Take(&user).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &user, nil
}

// UpdateField sets a single profile column. Missing users surface as
// gorm.ErrRecordNotFound.
func (r *Repository) UpdateField(ctx context.Context, id uuid.UUID, column string, value any) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       value,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
