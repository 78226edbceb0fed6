package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

func TestRequestIDReusesCleanHeader(t *testing.T) {
	var seen string
	h := RequestID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "edge-123" || rec.Header().Get(requestIDHeader) != "edge-123" {
		t.Fatalf("expected forwarded id, got %q", seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "has space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen == "has space" || seen == "" {
		t.Fatalf("expected a minted id, got %q", seen)
	}
}

func TestLoggingWritesOneLinePerRequest(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})

	r := chi.NewRouter()
	r.Use(Logging(logg))
	r.Get("/api/v1/donations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short"))
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/donations/42", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log: %v", err)
	}
	if entry["status"] != float64(http.StatusTeapot) || entry["bytes"] != float64(5) {
		t.Fatalf("unexpected log entry %v", entry)
	}
	if entry["route"] != "/api/v1/donations/{id}" {
		t.Fatalf("expected route pattern, got %v", entry["route"])
	}
}

func TestRecovererReturnsInternalError(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/v1/sync-donation-history", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value leaked to the client: %s", rec.Body.String())
	}
}
