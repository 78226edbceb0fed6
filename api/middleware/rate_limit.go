package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/donation-ledger/api/responses"
	"github.com/angelmondragon/donation-ledger/api/validators"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

// maxPeekBody bounds how much of a body RateLimit reads to find the donor email.
const maxPeekBody = 64 << 10

type counterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(scope string, parts ...string) string
}

// RateLimitPolicy caps calls per token subject and per donor email inside
// fixed windows. A zero limit disables that dimension.
type RateLimitPolicy struct {
	Name      string
	Window    time.Duration
	PerCaller int
	PerEmail  int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && (p.PerCaller > 0 || p.PerEmail > 0)
}

// rateClock is swapped in tests.
var rateClock = time.Now

// RateLimit runs after Auth. The donor email comes from the JSON body's
// `email` field; batch calls only count against the caller.
func RateLimit(policy RateLimitPolicy, store counterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			now := rateClock()
			bucket := now.Unix() / int64(policy.Window.Seconds())
			retryAfter := policy.Window - time.Duration(now.UnixNano()%int64(policy.Window))

			check := func(kind, id string, limit int) bool {
				key := store.RateLimitKey(policy.Name, kind, id, strconv.FormatInt(bucket, 10))
				count, err := store.IncrWithTTL(ctx, key, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return false
				}
				if count <= int64(limit) {
					return true
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.Name,
						"kind":     kind,
						"key_hash": id,
						"attempts": count,
						"limit":    limit,
					}), "rate limit exceeded")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return false
			}

			if caller, ok := CallerFromContext(ctx); ok && policy.PerCaller > 0 {
				if !check("caller", caller.Subject, policy.PerCaller) {
					return
				}
			}
			if policy.PerEmail > 0 && r.Body != nil {
				body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
				r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
				if email := donorEmail(body); email != "" {
					if !check("email", digest(email), policy.PerEmail) {
						return
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func donorEmail(payload []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return validators.NormalizeEmail(body.Email)
}

// digest keeps donor emails out of redis keys and logs.
func digest(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:12])
}
