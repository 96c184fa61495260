package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is a creator account. Rows are provisioned by the auth provider; this
// service owns the profile and Stripe columns.
type User struct {
	ID                       uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name                     *string   `gorm:"column:name"`
	Email                    *string   `gorm:"column:email"`
	Username                 *string   `gorm:"column:username"`
	Bio                      *string   `gorm:"column:bio"`
	Image                    *string   `gorm:"column:image"`
	StripeConnectedAccountID *string   `gorm:"column:stripe_connected_account_id"`
	CreatedAt                time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// DisplayName returns the name or an empty string.
func (u *User) DisplayName() string {
	if u == nil || u.Name == nil {
		return ""
	}
	return *u.Name
}

// ConnectedAccountID returns the Stripe account id or an empty string.
func (u *User) ConnectedAccountID() string {
	if u == nil || u.StripeConnectedAccountID == nil {
		return ""
	}
	return *u.StripeConnectedAccountID
}
