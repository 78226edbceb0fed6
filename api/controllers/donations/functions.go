package donations

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/donation-ledger/api/responses"
	"github.com/angelmondragon/donation-ledger/api/validators"
	internaldonations "github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/snapshot"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

// SyncService is the write side used by the sync function.
type SyncService interface {
	SyncCustomer(ctx context.Context, req internaldonations.SyncRequest) (*internaldonations.SyncResult, error)
	SyncBatch(ctx context.Context, req internaldonations.BatchRequest) (*internaldonations.BatchResult, error)
}

// SnapshotService builds audit snapshots.
type SnapshotService interface {
	Build(ctx context.Context, req snapshot.Request) (*snapshot.Snapshot, error)
}

type syncRequest struct {
	Email      string     `json:"email" validate:"omitempty,email,excluded_with=Emails"`
	Emails     []string   `json:"emails" validate:"omitempty,max=500,dive,email"`
	StripeMode string     `json:"stripe_mode" validate:"required,stripe_mode"`
	Since      *time.Time `json:"since"`
	Until      *time.Time `json:"until"`
}

// SyncDonationHistory runs a single-donor sync when `email` is set and a
// sequential batch otherwise.
func SyncDonationHistory(svc SyncService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sync service unavailable"))
			return
		}

		var body syncRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		mode := enums.StripeMode(body.StripeMode)

		if email := strings.TrimSpace(body.Email); email != "" {
			res, err := svc.SyncCustomer(r.Context(), internaldonations.SyncRequest{
				Email: email,
				Mode:  mode,
				Since: body.Since,
				Until: body.Until,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, res)
			return
		}

		res, err := svc.SyncBatch(r.Context(), internaldonations.BatchRequest{
			Emails: body.Emails,
			Mode:   mode,
			Since:  body.Since,
			Until:  body.Until,
		})
		if res == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "failed", res.Failed), "batch sync finished with failures")
		}
		responses.WriteSuccess(w, res)
	}
}

type snapshotRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	StripeMode string `json:"stripe_mode" validate:"required,stripe_mode"`
	Timezone   string `json:"timezone" validate:"omitempty,max=64"`
}

// DonationMappingSnapshot returns the read-only audit view of one donor's day.
func DonationMappingSnapshot(svc SnapshotService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "snapshot service unavailable"))
			return
		}

		var body snapshotRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := svc.Build(r.Context(), snapshot.Request{
			Email:    body.Email,
			Date:     body.Date,
			Mode:     enums.StripeMode(body.StripeMode),
			Timezone: validators.SanitizeString(body.Timezone, 64),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}
