package controllers

import (
	"net/http"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	"github.com/angelmondragon/tipjar-backend/internal/accounts"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

// CreateStripeAccount provisions the caller's Express account and returns the
// onboarding link.
func CreateStripeAccount(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		link, err := svc.CreateAccount(r.Context(), callerID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, link)
	}
}

func StripeOnboardingLink(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.OnboardingLink(r.Context(), callerID(r)))
	}
}
