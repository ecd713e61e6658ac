package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// AccountID identifies the reseller account the token acts for; Role drives
// the admin-only endpoints (see internal/rbac).
type Claims struct {
	jwt.RegisteredClaims

	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}
