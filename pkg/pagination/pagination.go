package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultLimit is used when a read endpoint gets no limit.
	DefaultLimit = 25
	// MaxLimit caps keyset reads against the transaction cache.
	MaxLimit = 100
)

var errMalformedCursor = errors.New("malformed cursor")

// Cursor is a keyset position over (transaction_created_at, id), newest first.
// A page continues with rows strictly older than the cursor.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

// After returns the cursor that resumes after a row with the given keys.
func After(at time.Time, id uuid.UUID) *Cursor {
	return &Cursor{At: at.UTC(), ID: id}
}

// NormalizeLimit clamps limit into [1, MaxLimit], defaulting non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// FetchSize is the row count to request so a full page can tell whether another follows.
func FetchSize(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts rows fetched with FetchSize back to limit and reports whether more remain.
func Trim[T any](rows []T, limit int) ([]T, bool) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}

// EncodeCursor renders the cursor as an opaque, URL-safe token.
func EncodeCursor(c Cursor) string {
	raw := strconv.FormatInt(c.At.UTC().UnixNano(), 36) + "." + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// ParseCursor decodes a token produced by EncodeCursor. An empty token is a nil cursor.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedCursor, err)
	}
	ts, id, ok := strings.Cut(string(raw), ".")
	if !ok {
		return nil, errMalformedCursor
	}
	nanos, err := strconv.ParseInt(ts, 36, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errMalformedCursor, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", errMalformedCursor, err)
	}
	return &Cursor{At: time.Unix(0, nanos).UTC(), ID: parsed}, nil
}
