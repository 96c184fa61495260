package controllers

import (
	"net/http"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	"github.com/angelmondragon/tipjar-backend/api/validators"
	"github.com/angelmondragon/tipjar-backend/internal/donations"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const (
	maxDonorNameLen    = 120
	maxDonorMessageLen = 1000
)

type checkoutRequest struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Price     int64  `json:"price"`
	CreatorID string `json:"creator_id"`
}

// DonationCheckout opens a Stripe Checkout Session for an anonymous visitor.
func DonationCheckout(svc donations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donation service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateCheckout(r.Context(), donations.CreateCheckoutInput{
			Slug:      validators.SanitizeString(payload.Slug, 0),
			Name:      validators.SanitizeString(payload.Name, maxDonorNameLen),
			Message:   validators.SanitizeString(payload.Message, maxDonorMessageLen),
			Price:     payload.Price,
			CreatorID: validators.SanitizeString(payload.CreatorID, 0),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
