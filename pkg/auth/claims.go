package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// Caller is the identity behind a function or read call.
type Caller struct {
	Subject string
	Role    enums.CallerRole
	TokenID string
}

// callerClaims is the HS256 body shared with the hosting platform.
type callerClaims struct {
	Role enums.CallerRole `json:"role"`
	jwt.RegisteredClaims
}
