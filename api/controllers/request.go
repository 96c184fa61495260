package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/api/middleware"
)

// callerID returns uuid.Nil when the request carries no authenticated user;
// services turn that into their own 401.
func callerID(r *http.Request) uuid.UUID {
	return middleware.UserIDFromContext(r.Context())
}
