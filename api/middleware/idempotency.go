package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/donation-ledger/api/responses"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgredis "github.com/angelmondragon/donation-ledger/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	maxIdempotencyKey  = 255
	maxIdempotentBody  = 1 << 20
	pendingClaimTTL    = 2 * time.Minute
	pendingStateMarker = "pending"
)

type storedResponse struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent replays the first successful response for a repeated
// Idempotency-Key. Keys are scoped to the token subject and route pattern.
// While the first call runs, repeats get a 409; failed or panicking calls
// release the key so the client can retry.
func Idempotent(store pkgredis.IdempotencyStore, logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			idemKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if idemKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(idemKey) > maxIdempotencyKey {
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is too long"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody+1))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			if len(body) > maxIdempotentBody {
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeValidation, "request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			pattern := routePattern(r)
			hash := requestHash(r.Method, pattern, body)
			key := store.IdempotencyKey(idempotencyScope(ctx, pattern), idemKey)

			pending, _ := json.Marshal(storedResponse{State: pendingStateMarker, RequestHash: hash})
			claimed, err := store.SetNX(ctx, key, string(pending), pendingClaimTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				replay(ctx, store, logg, w, key, hash)
				return
			}

			released := false
			release := func() {
				if released {
					return
				}
				released = true
				if err := store.Del(context.WithoutCancel(ctx), key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
			}
			defer release()

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			status := rec.statusCode()
			if status < 200 || status >= 300 {
				return
			}

			done, err := json.Marshal(storedResponse{
				State:       "done",
				RequestHash: hash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				if logg != nil {
					logg.Error(ctx, "encode idempotent response", err)
				}
				return
			}
			if err := store.Set(context.WithoutCancel(ctx), key, string(done), ttl); err != nil {
				if logg != nil {
					logg.Error(ctx, "store idempotent response", err)
				}
				return
			}
			released = true
		})
	}
}

func replay(ctx context.Context, store pkgredis.IdempotencyStore, logg *logger.Logger, w http.ResponseWriter, key, hash string) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, pkgredis.Nil) {
		responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency key"))
		return
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	if stored.RequestHash != hash {
		responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with a different request"))
		return
	}
	if stored.State == pendingStateMarker {
		responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func idempotencyScope(ctx context.Context, pattern string) string {
	subject := "anonymous"
	if caller, ok := CallerFromContext(ctx); ok && caller.Subject != "" {
		subject = caller.Subject
	}
	return subject + "|" + pattern
}

func requestHash(method, pattern string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(pattern))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
