package creators

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/pkg/db/models"
)

// ProfileDTO is the public view of a creator.
type ProfileDTO struct {
	ID                       uuid.UUID `json:"id"`
	Name                     *string   `json:"name"`
	Username                 *string   `json:"username"`
	Bio                      *string   `json:"bio"`
	Image                    *string   `json:"image"`
	ConnectedStripeAccountID *string   `json:"connected_stripe_account_id"`
}

// MeDTO adds the private fields the owner sees.
type MeDTO struct {
	ProfileDTO
	Email *string `json:"email"`
}

type UpdateNameInput struct {
	Name string `json:"name"`
}

type UpdateBioInput struct {
	Bio string `json:"bio"`
}

type UpdateUsernameInput struct {
	Username *string `json:"username"`
}

type UsernameResult struct {
	Username string `json:"username"`
}

func profileFromModel(u *models.User) ProfileDTO {
	return ProfileDTO{
		ID:                       u.ID,
		Name:                     u.Name,
		Username:                 u.Username,
		Bio:                      u.Bio,
		Image:                    u.Image,
		ConnectedStripeAccountID: u.StripeConnectedAccountID,
	}
}

func meFromModel(u *models.User) *MeDTO {
	return &MeDTO{ProfileDTO: profileFromModel(u), Email: u.Email}
}
