package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/donation-ledger/api/responses"
	stripewebhook "github.com/angelmondragon/donation-ledger/internal/webhooks/stripe"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const maxWebhookBody = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, mode enums.StripeMode, event *stripe.Event) (*stripewebhook.Outcome, error)
}

// EventGuard claims Stripe event ids so each event is handled once per mode.
type EventGuard interface {
	Claim(ctx context.Context, mode enums.StripeMode, eventID, eventType string) (stripewebhook.Claim, error)
	Complete(ctx context.Context, mode enums.StripeMode, eventID, eventType string) error
	Abandon(ctx context.Context, mode enums.StripeMode, eventID string) error
}

// EventVerifier checks a payload against one mode's signing secret.
type EventVerifier interface {
	ConstructEvent(payload []byte, sigHeader string) (stripe.Event, error)
}

// VerifierFunc returns the verifier for a mode.
type VerifierFunc func(mode enums.StripeMode) (EventVerifier, error)

// StripeVerifiers adapts the per-mode client set.
func StripeVerifiers(clients *pkgstripe.Clients) VerifierFunc {
	return func(mode enums.StripeMode) (EventVerifier, error) {
		client, err := clients.ForMode(mode)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// StripeWebhook verifies and dedupes Stripe events posted to /webhooks/stripe/{mode}.
func StripeWebhook(svc StripeWebhookService, verifiers VerifierFunc, guard EventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifiers == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stripe client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		mode, err := enums.ParseStripeMode(chi.URLParam(r, "mode"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe mode must be test or live"))
			return
		}
		verifier, err := verifiers(mode)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe client unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := verifier.ConstructEvent(payload, sigHeader)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		eventType := string(event.Type)
		claim, err := guard.Claim(ctx, mode, event.ID, eventType)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim stripe event"))
			return
		}
		switch claim {
		case stripewebhook.ClaimDone:
			responses.WriteSuccess(w, map[string]any{"event_id": event.ID, "duplicate": true})
			return
		case stripewebhook.ClaimInFlight:
			// Stripe retries non-2xx deliveries, so the in-flight copy gets to finish
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeConflict, "stripe event is still being processed"))
			return
		}

		out, err := svc.HandleEvent(ctx, mode, &event)
		if err != nil {
			if abandonErr := guard.Abandon(context.WithoutCancel(ctx), mode, event.ID); abandonErr != nil && logg != nil {
				logg.Error(ctx, "release stripe event claim", abandonErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(context.WithoutCancel(ctx), mode, event.ID, eventType); err != nil && logg != nil {
			logg.Error(ctx, "record stripe event", err)
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":    event.ID,
				"event_type":  eventType,
				"stripe_mode": mode.String(),
				"resynced":    out.Resynced,
			}), "stripe event processed")
		}
		responses.WriteSuccess(w, out)
	}
}
