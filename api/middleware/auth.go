package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/tipjar-backend/api/responses"
	pkgAuth "github.com/angelmondragon/tipjar-backend/pkg/auth"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/tipjar-backend/pkg/errors"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
)

const msgUnauthenticated = "Usuário não autenticado"

// Auth validates a bearer token minted by the auth provider and seeds the
// request context with the caller's user id.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticate(cfg, r.Header.Get("Authorization"))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			ctx := WithUserID(r.Context(), userID)
			if logg != nil {
				ctx = logg.WithUserID(ctx, userID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(cfg config.JWTConfig, header string) (uuid.UUID, error) {
	token, ok := bearerToken(header)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgUnauthenticated)
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token").WithPublicMessage(msgUnauthenticated)
	}
	if claims.UserID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, msgUnauthenticated)
	}
	return claims.UserID, nil
}

// bearerToken accepts "Bearer <jwt>" in any case, or a bare token.
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	switch {
	case !found:
		if header == "" || strings.EqualFold(header, "bearer") {
			return "", false
		}
		return header, true
	case strings.EqualFold(scheme, "bearer"):
		token := strings.TrimSpace(rest)
		return token, token != ""
	default:
		return "", false
	}
}
