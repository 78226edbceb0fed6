package shipping

import (
	"context"
	"net/http"

	"github.com/angelmondragon/donation-ledger/api/responses"
	"github.com/angelmondragon/donation-ledger/api/validators"
	internalshipping "github.com/angelmondragon/donation-ledger/internal/shipping"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

// Calculator quotes shipping for a checkout session.
type Calculator interface {
	Calculate(ctx context.Context, req internalshipping.Request) (*internalshipping.Quote, error)
}

// CalculateShipping returns the cheapest carrier rate for a session's order.
func CalculateShipping(svc Calculator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipping service unavailable"))
			return
		}

		var body internalshipping.Request
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Calculate(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
