package donations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	internaldonations "github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/pagination"
)

type stubReader struct {
	query   internaldonations.TransactionQuery
	rows    []models.DonationStripeTransaction
	next    *pagination.Cursor
	status  []models.DonationSyncStatus
	stModes []enums.StripeMode
}

func (s *stubReader) ListTransactions(ctx context.Context, params internaldonations.TransactionQuery) ([]models.DonationStripeTransaction, *pagination.Cursor, error) {
	s.query = params
	return s.rows, s.next, nil
}

func (s *stubReader) ListSyncStatuses(ctx context.Context, mode enums.StripeMode, limit int) ([]models.DonationSyncStatus, error) {
	s.stModes = append(s.stModes, mode)
	return s.status, nil
}

func TestListTransactionsPassesCursorAndReturnsNext(t *testing.T) {
	in := pagination.Cursor{At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ID: uuid.New()}
	out := pagination.Cursor{At: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), ID: uuid.New()}
	repo := &stubReader{rows: []models.DonationStripeTransaction{{ID: uuid.New(), ExternalKey: "in_1"}}, next: &out}

	req := httptest.NewRequest(http.MethodGet, "/?stripe_mode=live&email=a@example.org&limit=10&cursor="+pagination.EncodeCursor(in), nil)
	rec := httptest.NewRecorder()
	ListTransactions(repo, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if repo.query.Limit != 10 || repo.query.Mode != enums.StripeModeLive || repo.query.Cursor == nil || repo.query.Cursor.ID != in.ID {
		t.Fatalf("unexpected query %+v", repo.query)
	}

	var body struct {
		Data transactionPage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.NextCursor != pagination.EncodeCursor(out) || len(body.Data.Transactions) != 1 {
		t.Fatalf("unexpected page %+v", body.Data)
	}
}

func TestListTransactionsRequiresMode(t *testing.T) {
	rec := httptest.NewRecorder()
	ListTransactions(&stubReader{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	ListTransactions(&stubReader{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?stripe_mode=live&cursor=@@@@", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d", rec.Code)
	}
}

func TestSyncStatusModeOptional(t *testing.T) {
	repo := &stubReader{}
	rec := httptest.NewRecorder()
	SyncStatus(repo, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	SyncStatus(repo, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?stripe_mode=test", nil))
	if len(repo.stModes) != 2 || repo.stModes[0] != "" || repo.stModes[1] != enums.StripeModeTest {
		t.Fatalf("unexpected modes %v", repo.stModes)
	}
}
