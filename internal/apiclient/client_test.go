package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"tourdesk/internal/calendar"
	"tourdesk/internal/money"
	"tourdesk/internal/status"
	"tourdesk/internal/transform"
)

type recorded struct {
	Method      string
	Path        string
	Query       string
	Auth        string
	Idempotency string
	Body        map[string]any
}

type stubAPI struct {
	mu       sync.Mutex
	requests []recorded
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (s *stubAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{
		Method:      r.Method,
		Path:        r.URL.Path,
		Query:       r.URL.RawQuery,
		Auth:        r.Header.Get("Authorization"),
		Idempotency: r.Header.Get("Idempotency-Key"),
	}
	if r.ContentLength > 0 {
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
	}
	s.mu.Lock()
	s.requests = append(s.requests, rec)
	s.mu.Unlock()
	s.handler(w, r)
}

func (s *stubAPI) last() recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *stubAPI) {
	t.Helper()
	stub := &stubAPI{handler: handler}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		BaseURL:       srv.URL + "/v1/",
		Actor:         "portal",
		ServiceSecret: "test-secret",
		Timeout:       2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, stub
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestListBookingsSendsFilterAndToken(t *testing.T) {
	c, stub := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{
			{"id": "b1", "status": "pending", "customer_name": "Ana", "participants": 2},
		}})
	})
	items, err := c.ListBookings(context.Background(), Filter{Status: status.BookingPending, VendorID: "v1"})
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(items) != 1 || items[0].Status != status.BookingPending || items[0].Participants != 2 {
		t.Fatalf("items: %+v", items)
	}
	req := stub.last()
	if req.Path != "/v1/bookings" || req.Query != "status=pending&vendor_id=v1" {
		t.Fatalf("request: %+v", req)
	}
	if req.Idempotency != "" {
		t.Fatalf("GET should not carry an idempotency key")
	}
	token := strings.TrimPrefix(req.Auth, "Bearer ")
	claims := &jwtlib.RegisteredClaims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(*jwtlib.Token) (any, error) {
		return []byte("test-secret"), nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		t.Fatalf("token: %v", err)
	}
	if sub, _ := claims.GetSubject(); sub != "portal" {
		t.Fatalf("subject: %q", sub)
	}
}

func TestMutationsCarryIdempotencyKey(t *testing.T) {
	c, stub := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "b1", "status": "confirmed"})
	})
	b, err := c.UpdateBookingStatus(context.Background(), "b1", status.BookingConfirmed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if b.Status != status.BookingConfirmed {
		t.Fatalf("status: %s", b.Status)
	}
	first := stub.last()
	if first.Method != http.MethodPatch || first.Path != "/v1/bookings/b1/status" || first.Body["status"] != "confirmed" {
		t.Fatalf("request: %+v", first)
	}
	if _, err := c.UpdateBookingStatus(context.Background(), "b1", status.BookingConfirmed); err != nil {
		t.Fatalf("update again: %v", err)
	}
	second := stub.last()
	if first.Idempotency == "" || first.Idempotency == second.Idempotency {
		t.Fatalf("expected a fresh idempotency key per request: %q %q", first.Idempotency, second.Idempotency)
	}
}

func TestErrors(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing") {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such refund"})
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": map[string]any{"message": "refund already processed"}})
	})
	_, err := c.GetRefund(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if StatusOf(err) != http.StatusNotFound {
		t.Fatalf("status of not found: %d", StatusOf(err))
	}
	_, err = c.ProcessRefund(context.Background(), "r1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message() != "refund already processed" {
		t.Fatalf("message: %q", apiErr.Message())
	}
}

func TestPackagesGoThroughTransform(t *testing.T) {
	c, stub := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{
				{"id": "p1", "name": "Half day", "base_price": "45.00", "options_config": `{"inclusions":["Lunch"]}`},
			}})
		default:
			writeJSON(w, http.StatusCreated, map[string]any{"id": "p2", "name": "Full day", "base_price": "90.00"})
		}
	})
	pkgs, err := c.ListPackages(context.Background(), "a1")
	if err != nil {
		t.Fatalf("list packages: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].BasePrice != 4500 || pkgs[0].Options.Inclusions[0] != "Lunch" {
		t.Fatalf("packages: %+v", pkgs)
	}
	if pkgs[0].Options.BookingOptions.AdvanceBookingDays != 1 {
		t.Fatalf("defaults not applied")
	}
	saved, err := c.SavePackage(context.Background(), transform.Package{ActivityID: "a1", Name: "Full day", BasePrice: 9000})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	req := stub.last()
	if req.Method != http.MethodPost || req.Path != "/v1/activities/a1/packages" || req.Body["base_price"] != "90.00" {
		t.Fatalf("save request: %+v", req)
	}
	if saved.ID != "p2" || saved.Currency != transform.DefaultCurrency {
		t.Fatalf("saved: %+v", saved)
	}
}

func TestAvailabilityRoundTrip(t *testing.T) {
	c, stub := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{
				{"date": "2024-02-10", "status": "blocked"},
				{"date": "2024-02-11", "status": "available", "price_override_cents": 15000},
			}})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	got, err := c.ListAvailability(context.Background(), "r1", "2024-01-28", "2024-03-09")
	if err != nil {
		t.Fatalf("list availability: %v", err)
	}
	if got["2024-02-10"].Status != calendar.Blocked || *got["2024-02-11"].PriceOverride != money.Cents(15000) {
		t.Fatalf("overrides: %+v", got)
	}
	if req := stub.last(); req.Query != "from=2024-01-28&to=2024-03-09" {
		t.Fatalf("query: %q", req.Query)
	}
	if err := c.SaveAvailability(context.Background(), "r1", calendar.BulkEdit([]string{"2024-02-12"}, calendar.Override{Status: calendar.Maintenance})); err != nil {
		t.Fatalf("save availability: %v", err)
	}
	req := stub.last()
	rows, _ := req.Body["items"].([]any)
	if req.Method != http.MethodPut || len(rows) != 1 {
		t.Fatalf("save request: %+v", req)
	}
}
