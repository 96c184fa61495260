package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	"github.com/angelmondragon/tipjar-backend/api/validators"
	"github.com/angelmondragon/tipjar-backend/internal/creators"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

func creatorsUnavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "creators service unavailable")
}

// CreatorProfile serves the public donation page data for a username.
func CreatorProfile(svc creators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, creatorsUnavailable())
			return
		}
		profile, err := svc.PublicProfile(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

func Me(svc creators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, creatorsUnavailable())
			return
		}
		me, err := svc.Me(r.Context(), callerID(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, me)
	}
}

func UpdateName(svc creators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, creatorsUnavailable())
			return
		}
		var payload creators.UpdateNameInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateName(r.Context(), callerID(r), payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"updated": true})
	}
}

func UpdateBio(svc creators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, creatorsUnavailable())
			return
		}
		var payload creators.UpdateBioInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateBio(r.Context(), callerID(r), payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"updated": true})
	}
}

// UpdateUsername responds with the slug actually stored.
func UpdateUsername(svc creators.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, creatorsUnavailable())
			return
		}
		var payload creators.UpdateUsernameInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.UpdateUsername(r.Context(), callerID(r), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
