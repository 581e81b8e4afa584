package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

// AccessTokenPayload captures the identity carried by an access token.
// TenantID is empty for developers, who are not bound to one tenant.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	Role     enums.UserRole
	TenantID *uuid.UUID
	JTI      string
}

// AccessTokenClaims represents the typed JWT issued by the identity provider.
type AccessTokenClaims struct {
	UserID   uuid.UUID      `json:"user_id"`
	Role     enums.UserRole `json:"role"`
	TenantID *uuid.UUID     `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}
