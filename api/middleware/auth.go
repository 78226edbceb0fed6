package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/donation-ledger/api/responses"
	"github.com/angelmondragon/donation-ledger/pkg/auth"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

// TokenVerifier turns a bearer token into a caller.
type TokenVerifier interface {
	Verify(token string) (auth.Caller, error)
}

// Auth requires an "Authorization: Bearer <jwt>" header and puts the caller
// on the request context.
func Auth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			caller, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithCaller(r.Context(), caller)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"caller":      caller.Subject,
					"caller_role": caller.Role.String(),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
