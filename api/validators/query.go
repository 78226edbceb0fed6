package validators

import (
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
)

func queryError(key, message string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseQueryInt reads an optional integer query parameter bounded by [lo, hi].
func ParseQueryInt(r *http.Request, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, queryError(key, "query parameter must be numeric", nil)
	}
	if n < lo || n > hi {
		return 0, queryError(key, "query parameter out of range", map[string]any{"min": lo, "max": hi})
	}
	return n, nil
}

// ParseQueryEmail reads an optional, normalized email filter.
func ParseQueryEmail(r *http.Request, key string) (string, error) {
	email := NormalizeEmail(r.URL.Query().Get(key))
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", queryError(key, "query parameter must be an email", nil)
	}
	return email, nil
}
