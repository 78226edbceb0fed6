package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// clockSkew tolerates drift between the platform that mints and this service.
const clockSkew = 30 * time.Second

// ErrRoleNotAllowed is returned for well-signed tokens whose role may not call the ledger.
var ErrRoleNotAllowed = errors.New("role may not call this api")

// Authority issues and verifies caller tokens with one shared secret.
type Authority struct {
	key    []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

// NewAuthority builds an Authority. The issuer claim is only checked when configured.
func NewAuthority(cfg config.JWTConfig) (*Authority, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	a := &Authority{key: []byte(cfg.Secret), issuer: cfg.Issuer, now: time.Now}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return a.now() }),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	a.parser = jwt.NewParser(opts...)
	return a, nil
}

// Issue signs a token for subject valid for ttl.
func (a *Authority) Issue(subject string, role enums.CallerRole, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrRoleNotAllowed, role)
	}
	now := a.now()
	claims := callerClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and issuer, then the role claim.
func (a *Authority) Verify(token string) (Caller, error) {
	var claims callerClaims
	if _, err := a.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}); err != nil {
		return Caller{}, err
	}
	if !claims.Role.IsValid() {
		return Caller{}, fmt.Errorf("%w: %q", ErrRoleNotAllowed, claims.Role)
	}
	return Caller{Subject: claims.Subject, Role: claims.Role, TokenID: claims.ID}, nil
}
