package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Name   string
	JTI    string
}

// AccessTokenClaims is the token shape shared with the auth provider.
type AccessTokenClaims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email,omitempty"`
	Name   string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}
