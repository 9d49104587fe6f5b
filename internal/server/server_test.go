package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tourdesk/internal/calendar"
	"tourdesk/internal/config"
	"tourdesk/internal/db"
	"tourdesk/internal/engine"
	"tourdesk/internal/engine/enginetest"
	"tourdesk/internal/events"
	"tourdesk/internal/migrate"
	"tourdesk/internal/money"
	"tourdesk/internal/repo"
	"tourdesk/internal/transform"
)

type testServer struct {
	URL    string
	Log    events.Log
	Repo   repo.Repo
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	conn := openTestDB(t)
	cfg := config.Default()
	cfg.Invoice.DefaultTaxPercent = 10
	log := events.Log{DB: conn}
	e := engine.New(enginetest.New(), log, cfg, nil)
	handler, err := New(Config{Engine: e, Events: repo.Repo{DB: conn}, BasePath: DefaultBasePath})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Log:    log,
		Repo:   repo.Repo{DB: conn},
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	reader := bytes.NewReader(nil)
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthAndOpenAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, body)
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/openapi.json", nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("/api/v0/calendar/{year}/{month}")) {
		t.Fatalf("openapi: %d", res.StatusCode)
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	const n = 8
	bodies := make([][]byte, n)
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/api/v0/openapi.json")
			if err != nil {
				return
			}
			defer res.Body.Close()
			codes[i] = res.StatusCode
			bodies[i], _ = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if codes[i] != http.StatusOK || len(bodies[i]) == 0 || !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("request %d: %d, %d bytes", i, codes[i], len(bodies[i]))
		}
	}
}

func TestCalendarGrid(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/calendar/2024/2", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("calendar: %d %s", res.StatusCode, body)
	}
	var cal CalendarResponse
	if err := json.Unmarshal(body, &cal); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cal.Cells) != 42 || cal.Cells[0].Date != "2024-01-28" || cal.DaysInMonth != 29 {
		t.Fatalf("unexpected grid: %d cells, first %s, days %d", len(cal.Cells), cal.Cells[0].Date, cal.DaysInMonth)
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/calendar/2024/13", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("month 13: %d %s", res.StatusCode, body)
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code != "bad_request" {
		t.Fatalf("error envelope: %s", body)
	}
}

func TestInvoiceTotals(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	items := []map[string]any{
		{"description": "Kayak", "quantity": 2, "unit_price_cents": 10000, "discount_bp": 1000},
		{"description": "Snacks", "quantity": 1, "unit_price_cents": 5000},
	}
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/invoices/totals", map[string]any{"items": items})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("totals: %d %s", res.StatusCode, body)
	}
	var totals money.Totals
	if err := json.Unmarshal(body, &totals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if totals.Subtotal != 25000 || totals.DiscountTotal != 2000 || totals.TaxAmount != 2300 || totals.Total != 25300 {
		t.Fatalf("configured tax totals: %+v", totals)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/invoices/totals", map[string]any{"items": items, "tax_percent": 0})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("flat tax: %d %s", res.StatusCode, body)
	}
	_ = json.Unmarshal(body, &totals)
	if totals.Total != 23000 {
		t.Fatalf("zero tax total: %s", totals.Total)
	}

	bad := []map[string]any{{"quantity": -1, "unit_price_cents": 100}}
	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/invoices/totals", map[string]any{"items": bad})
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("negative quantity: %d %s", res.StatusCode, body)
	}
}

func TestStatusTables(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/statuses/booking/confirmed/next", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("next: %d %s", res.StatusCode, body)
	}
	var next NextStatusesResponse
	if err := json.Unmarshal(body, &next); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(next.Next) != 3 || next.Next[0] != "checked_in" || next.Terminal {
		t.Fatalf("next: %+v", next)
	}

	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/statuses/refund/completed/next", nil)
	_ = json.Unmarshal(body, &next)
	if res.StatusCode != http.StatusOK || len(next.Next) != 0 || !next.Terminal {
		t.Fatalf("terminal refund: %d %+v", res.StatusCode, next)
	}

	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/statuses/invoice", nil)
	var table StatusTableResponse
	if err := json.Unmarshal(body, &table); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("table: %d %s", res.StatusCode, body)
	}
	if len(table.Statuses) != 5 || len(table.Transitions["sent"]) != 3 {
		t.Fatalf("invoice table: %+v", table)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/statuses/voucher", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown kind: %d", res.StatusCode)
	}
}

func TestPackageNormalize(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	raw := map[string]any{
		"id":             "p1",
		"activity_id":    "a1",
		"name":           "Sunset kayak",
		"base_price":     "12.50",
		"options_config": `{"pricingTiers":[{"name":"Group","price":"10.00","minParticipants":4}],"inclusions":["Paddle"]}`,
		"legacy_code":    "SK-1",
	}
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/packages/normalize", raw)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("normalize: %d %s", res.StatusCode, body)
	}
	var pkg transform.Package
	if err := json.Unmarshal(body, &pkg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pkg.BasePrice != 1250 || pkg.Currency != "USD" || !pkg.IsActive {
		t.Fatalf("package: %+v", pkg)
	}
	if len(pkg.Options.PricingTiers) != 1 || pkg.Options.PricingTiers[0].Price != 1000 {
		t.Fatalf("tiers: %+v", pkg.Options.PricingTiers)
	}
	if pkg.Extra["legacy_code"] != "SK-1" {
		t.Fatalf("extra lost: %+v", pkg.Extra)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/packages/denormalize", pkg)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("denormalize: %d %s", res.StatusCode, body)
	}
	var back map[string]any
	_ = json.Unmarshal(body, &back)
	if back["base_price"] != "12.50" || back["legacy_code"] != "SK-1" {
		t.Fatalf("backend record: %v", back)
	}

	pkg.Name = ""
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/packages/denormalize", pkg)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("nameless package: %d", res.StatusCode)
	}
}

func TestAvailabilityEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/availability/bulk", map[string]any{
		"existing": map[string]any{"2024-02-10": map[string]any{"status": "blocked", "min_stay": 3}},
		"from":     "2024-02-11",
		"to":       "2024-02-10",
		"patch":    map[string]any{"status": "maintenance"},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("bulk: %d %s", res.StatusCode, body)
	}
	var bulk AvailabilityBulkResponse
	if err := json.Unmarshal(body, &bulk); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bulk.Changed) != 2 || bulk.Overrides["2024-02-10"].MinStay != nil || bulk.Overrides["2024-02-10"].Status != "maintenance" {
		t.Fatalf("bulk: %+v", bulk)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/availability/merge", map[string]any{
		"year":             2024,
		"month":            2,
		"base_price_cents": 9000,
		"overrides":        bulk.Overrides,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("merge: %d %s", res.StatusCode, body)
	}
	var merged AvailabilityMergeResponse
	if err := json.Unmarshal(body, &merged); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(merged.Days) != 42 {
		t.Fatalf("days: %d", len(merged.Days))
	}
	for _, d := range merged.Days {
		switch d.Date {
		case "2024-02-10", "2024-02-11":
			if d.Status != "maintenance" || !d.Overridden {
				t.Fatalf("override missing on %s: %+v", d.Date, d)
			}
		case "2024-02-12":
			if d.Status != "available" || d.Price != 9000 {
				t.Fatalf("base missing: %+v", d)
			}
		}
	}

	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/availability/bulk", map[string]any{
		"dates": []string{"2024-02-30"},
		"patch": map[string]any{"status": "blocked"},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid date: %d", res.StatusCode)
	}

	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/availability/bulk", map[string]any{
		"from":  "0001-01-01",
		"to":    "9999-12-31",
		"patch": map[string]any{"status": "blocked"},
	})
	if res.StatusCode != http.StatusBadRequest || !strings.Contains(string(body), "date range too long") {
		t.Fatalf("oversized range: %d %s", res.StatusCode, body)
	}

	many := make([]string, 0, calendar.MaxRangeDays+1)
	for i := 0; i <= calendar.MaxRangeDays; i++ {
		many = append(many, time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC).Format(calendar.DateLayout))
	}
	res, body = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v0/availability/bulk", map[string]any{
		"dates": many,
		"patch": map[string]any{"status": "blocked"},
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("too many dates: %d %s", res.StatusCode, body)
	}
}

func TestEventsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	for _, typ := range []string{"booking.status", "refund.approve", "booking.status"} {
		if _, err := srv.Log.Append(ctx, typ, "booking", "b1", "admin", events.EventPayload{"to": "confirmed"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/events?limit=2", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, body)
	}
	var page paginatedEvents
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != 3 || page.NextCursor != "2" {
		t.Fatalf("first page: %+v", page)
	}
	if page.Items[0].Payload["to"] != "confirmed" {
		t.Fatalf("payload: %+v", page.Items[0].Payload)
	}
	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/events?limit=2&cursor="+page.NextCursor, nil)
	page = paginatedEvents{}
	_ = json.Unmarshal(body, &page)
	if res.StatusCode != http.StatusOK || len(page.Items) != 1 || page.Items[0].ID != 1 || page.NextCursor != "" {
		t.Fatalf("second page: %+v", page)
	}

	res, body = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/events?type=refund.approve", nil)
	page = paginatedEvents{}
	_ = json.Unmarshal(body, &page)
	if len(page.Items) != 1 || page.Items[0].Type != "refund.approve" {
		t.Fatalf("filtered: %+v", page)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v0/events?cursor=abc", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor: %d", res.StatusCode)
	}
}

func TestWebhookDispatcher(t *testing.T) {
	conn := openTestDB(t)
	defer conn.Close()
	ctx := context.Background()
	log := events.Log{DB: conn}
	r := repo.Repo{DB: conn}

	var mu sync.Mutex
	var got []string
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if req.Header.Get("X-Tourdesk-Secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		got = append(got, req.Header.Get("X-Tourdesk-Event")+"#"+req.Header.Get("X-Tourdesk-Delivery"))
	}))
	defer hook.Close()

	if _, err := log.Append(ctx, "refund.approve", "refund", "r0", "admin", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	d := NewWebhookDispatcher(r, []config.WebhookConfig{{URL: hook.URL, Events: []string{"refund.*"}, Secret: "s3cret"}}, nil)
	d.DispatchAll(ctx)

	for _, typ := range []string{"booking.status", "refund.reject"} {
		if _, err := log.Append(ctx, typ, "x", "1", "admin", nil); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "refund.reject#3" {
		t.Fatalf("deliveries: %v", got)
	}
	cursor, err := r.WebhookCursor(ctx, hook.URL)
	if err != nil || cursor != 3 {
		t.Fatalf("cursor: %d %v", cursor, err)
	}
}

func TestEventFilter(t *testing.T) {
	f := newEventFilter([]string{" booking.status ", "refund.*"})
	for evt, want := range map[string]bool{
		"booking.status": true,
		"refund.approve": true,
		"booking.create": false,
		"invoice.lines":  false,
	} {
		if f.match(evt) != want {
			t.Fatalf("match(%s) != %v", evt, want)
		}
	}
	if !newEventFilter(nil).match("anything") {
		t.Fatalf("empty filter should match everything")
	}
}
