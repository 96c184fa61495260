package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	"github.com/angelmondragon/tipjar-backend/api/validators"
	"github.com/angelmondragon/tipjar-backend/internal/dashboard"
	"github.com/angelmondragon/tipjar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	pkgpagination "github.com/angelmondragon/tipjar-backend/pkg/pagination"
)

type urlResponse struct {
	URL *string `json:"url"`
}

func unauthenticated() error {
	return pkgerrors.New(pkgerrors.CodeUnauthorized, dashboard.MsgUnauthenticated)
}

// DashboardDonations lists the caller's PAID donations with cursor pagination.
func DashboardDonations(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		userID := callerID(r)
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, unauthenticated())
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pkgpagination.DefaultLimit, 1, pkgpagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cursor, err := validators.QueryString(r, "cursor")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListPaidDonations(r.Context(), userID, pkgpagination.Params{
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// DashboardAllDonations feeds the dashboard table. ?status= narrows it to one
// donation status.
func DashboardAllDonations(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		raw, err := validators.QueryString(r, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status enums.DonationStatus
		if raw != "" {
			if status, err = enums.ParseDonationStatus(raw); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithPublicMessage(dashboard.MsgInvalidStatus))
				return
			}
		}
		responses.WriteSuccess(w, svc.ListDonations(r.Context(), callerID(r), status))
	}
}

func DashboardStats(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		stats, err := svc.Stats(r.Context(), callerID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stats)
	}
}

// DashboardStripeLogin returns an Express dashboard login link, or a null url
// when the caller has no usable connected account.
func DashboardStripeLogin(svc dashboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dashboard service unavailable"))
			return
		}
		accountID, err := svc.ConnectedAccountID(r.Context(), callerID(r))
		if err != nil && logg != nil {
			logg.Error(r.Context(), "load connected account failed", err)
		}
		responses.WriteSuccess(w, urlResponse{URL: svc.LoginLink(r.Context(), accountID)})
	}
}
