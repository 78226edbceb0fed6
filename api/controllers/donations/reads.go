package donations

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/donation-ledger/api/responses"
	"github.com/angelmondragon/donation-ledger/api/validators"
	internaldonations "github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/pagination"
)

// Reader exposes the cached rows to read endpoints.
type Reader interface {
	ListTransactions(ctx context.Context, params internaldonations.TransactionQuery) ([]models.DonationStripeTransaction, *pagination.Cursor, error)
	ListSyncStatuses(ctx context.Context, mode enums.StripeMode, limit int) ([]models.DonationSyncStatus, error)
}

type transactionPage struct {
	Transactions []models.DonationStripeTransaction `json:"transactions"`
	NextCursor   string                             `json:"next_cursor,omitempty"`
}

// ListTransactions pages through cached transactions, newest first.
func ListTransactions(repo Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donations repository unavailable"))
			return
		}

		mode, err := parseMode(r, true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		email, err := validators.ParseQueryEmail(r, "email")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(strings.TrimSpace(r.URL.Query().Get("cursor")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		rows, next, err := repo.ListTransactions(r.Context(), internaldonations.TransactionQuery{
			Email:  email,
			Mode:   mode,
			Limit:  limit,
			Cursor: cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list donation transactions"))
			return
		}

		page := transactionPage{Transactions: rows}
		if page.Transactions == nil {
			page.Transactions = []models.DonationStripeTransaction{}
		}
		if next != nil {
			page.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, page)
	}
}

// SyncStatus lists the latest per-donor sync outcomes.
func SyncStatus(repo Reader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "donations repository unavailable"))
			return
		}

		mode, err := parseMode(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := repo.ListSyncStatuses(r.Context(), mode, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sync statuses"))
			return
		}
		if rows == nil {
			rows = []models.DonationSyncStatus{}
		}
		responses.WriteSuccess(w, rows)
	}
}

func parseMode(r *http.Request, required bool) (enums.StripeMode, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("stripe_mode"))
	if raw == "" {
		if required {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe_mode is required").WithDetails(map[string]any{"field": "stripe_mode"})
		}
		return "", nil
	}
	mode, err := enums.ParseStripeMode(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "stripe_mode must be test or live")
	}
	return mode, nil
}
