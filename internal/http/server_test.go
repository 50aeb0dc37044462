package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"khata/internal/auth"
	"khata/internal/cache"
	"khata/internal/core"
	"khata/internal/memory"
	"khata/internal/services"
)

const (
	ownerA = "11111111-2222-4333-8444-555555555555"
	ownerB = "99999999-8888-4777-8666-555555555555"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	verifier *auth.Verifier
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("db down") }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	summaries := cache.NewLRUCache[core.Summary](50, time.Minute)
	monthly := cache.NewLRUCache[[]core.MonthTotals](50, time.Minute)

	v, err := auth.NewVerifier("test-secret-0123456789")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}

	srv, err := NewServer(":0", Deps{
		Ledger:    services.NewLedgerService(store, nil, summaries, monthly),
		Dashboard: services.NewDashboardService(store, summaries, 7),
		Reports:   services.NewReportService(store, monthly),
		Pinger:    store,
		Verifier:  v,
	}, Options{RateLimitPerMinute: 1000})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, verifier: v}
}

func (e *testEnv) do(t *testing.T, owner, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body != "" {
		rd = strings.NewReader(body)
	} else {
		rd = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rd)
	if owner != "" {
		tok, err := e.verifier.Issue(owner, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := env.do(t, "", http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s missing request id", path)
		}
	}

	env.srv.deps.Pinger = downPinger{}
	if rec := env.do(t, "", http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing store = %d", rec.Code)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "", http.MethodGet, "/api/v1/sales", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("WWW-Authenticate"), "Bearer") {
		t.Errorf("missing WWW-Authenticate header")
	}
}

func TestSaleLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, ownerA, http.MethodPost, "/api/v1/sales",
		`{"date":"2025-03-10","amount":"1250.50","payment_type":"Gpay","category":"Tea"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body)
	}
	created := decode[core.Sale](t, rec)
	if created.ID == 0 || created.OwnerID != ownerA || created.Amount.Paise != 125050 {
		t.Fatalf("created = %+v", created)
	}
	loc := rec.Header().Get("Location")

	env.do(t, ownerA, http.MethodPost, "/api/v1/sales", `{"date":"2025-03-11","amount":100,"payment_type":"Cash"}`)

	list := decode[saleList](t, env.do(t, ownerA, http.MethodGet, "/api/v1/sales?from=2025-03-01&to=2025-03-31", ""))
	if len(list.Sales) != 2 || list.Total != (core.Money{Paise: 135050}) {
		t.Fatalf("list = %+v", list)
	}
	gpay := decode[saleList](t, env.do(t, ownerA, http.MethodGet, "/api/v1/sales?payment_method=Gpay", ""))
	if len(gpay.Sales) != 1 {
		t.Fatalf("method filter = %+v", gpay)
	}

	if rec := env.do(t, ownerB, http.MethodGet, loc, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("other owner get = %d", rec.Code)
	}

	rec = env.do(t, ownerA, http.MethodPut, loc, `{"date":"2025-03-10","amount":99,"payment_type":"Card"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body)
	}
	if got := decode[core.Sale](t, rec); got.Amount != core.Rupees(99) || got.PaymentMethod != core.Card {
		t.Fatalf("updated = %+v", got)
	}

	if rec := env.do(t, ownerA, http.MethodDelete, loc, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	if rec := env.do(t, ownerA, http.MethodGet, loc, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d", rec.Code)
	}
}

func TestStatusMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		wantCode  int
		wantField string
	}{
		{"negative amount", http.MethodPost, "/api/v1/sales", `{"date":"2025-01-01","amount":-5,"payment_type":"Cash"}`, 422, "amount"},
		{"unknown method", http.MethodPost, "/api/v1/sales", `{"date":"2025-01-01","amount":5,"payment_type":"Bitcoin"}`, 422, "payment_type"},
		{"missing date", http.MethodPost, "/api/v1/sales", `{"amount":5,"payment_type":"Cash"}`, 422, "date"},
		{"malformed json", http.MethodPost, "/api/v1/sales", `{"date":`, 400, ""},
		{"empty body", http.MethodPost, "/api/v1/sales", ``, 400, ""},
		{"bad range", http.MethodGet, "/api/v1/sales?from=2025-02-01&to=2025-01-01", "", 422, "to"},
		{"bad date param", http.MethodGet, "/api/v1/sales?from=yesterday", "", 422, "from"},
		{"bad filter", http.MethodGet, "/api/v1/expenses?payment_method=IOU", "", 422, "payment_method"},
		{"bad id", http.MethodGet, "/api/v1/sales/abc", "", 422, "id"},
		{"missing id", http.MethodGet, "/api/v1/expenses/42", "", 404, ""},
		{"no items", http.MethodPost, "/api/v1/expenses", `{"date":"2025-01-01","payment_mode":"Cash","items":[]}`, 422, "items"},
		{"bad item", http.MethodPost, "/api/v1/expenses", `{"date":"2025-01-01","payment_mode":"Cash","items":[{"item_name":" ","unit":1,"price_per_unit":1}]}`, 422, "items[0].item_name"},
		{"bad window", http.MethodGet, "/api/v1/dashboard?window=0", "", 422, "window"},
		{"bad year", http.MethodGet, "/api/v1/reports/monthly?year=abc", "", 422, "year"},
		{"wrong verb", http.MethodPatch, "/api/v1/sales", "", 405, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, ownerA, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d, body=%s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantField != "" {
				if got := decode[errorBody](t, rec); got.Field != tt.wantField {
					t.Errorf("field = %q, want %q", got.Field, tt.wantField)
				}
			}
		})
	}
}

func TestExpenseTotalsAreServerComputed(t *testing.T) {
	env := newTestEnv(t)

	body := `{"date":"2025-04-02","payment_mode":"Bank Transfer","grand_total":1,
		"items":[{"item_name":"Sugar","unit":"2.5","price_per_unit":"40","total":9999},
		         {"item_name":"Milk","unit":3,"price_per_unit":"27.50"}]}`
	rec := env.do(t, ownerA, http.MethodPost, "/api/v1/expenses", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	e := decode[core.ExpenseTransaction](t, rec)
	if e.GrandTotal != (core.Money{Paise: 10000 + 8250}) {
		t.Fatalf("grand total = %v", e.GrandTotal)
	}
	if len(e.Items) != 2 || e.Items[0].LineTotal != core.Rupees(100) {
		t.Fatalf("items = %+v", e.Items)
	}

	list := decode[expenseList](t, env.do(t, ownerA, http.MethodGet, "/api/v1/expenses", ""))
	if len(list.Expenses) != 1 || list.Expenses[0].Items != nil || list.Total != e.GrandTotal {
		t.Fatalf("list without items = %+v", list)
	}
	list = decode[expenseList](t, env.do(t, ownerA, http.MethodGet, "/api/v1/expenses?include_items=true", ""))
	if len(list.Expenses[0].Items) != 2 {
		t.Fatalf("list with items = %+v", list)
	}
}

func TestDashboardReflectsWrites(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/v1/dashboard?from=2025-05-01&to=2025-05-31&window=3"

	first := decode[dashboardResponse](t, env.do(t, ownerA, http.MethodGet, path, ""))
	if first.TotalSales != (core.Money{}) || len(first.Daily) != 3 {
		t.Fatalf("empty dashboard = %+v", first)
	}

	env.do(t, ownerA, http.MethodPost, "/api/v1/sales", `{"date":"2025-05-31","amount":500,"payment_type":"Cash"}`)
	env.do(t, ownerA, http.MethodPost, "/api/v1/expenses",
		`{"date":"2025-05-30","payment_mode":"Gpay","items":[{"item_name":"Rent","unit":1,"price_per_unit":200}]}`)

	got := decode[dashboardResponse](t, env.do(t, ownerA, http.MethodGet, path, ""))
	if got.TotalSales != core.Rupees(500) || got.TotalExpenses != core.Rupees(200) || got.Profit != core.Rupees(300) {
		t.Fatalf("totals = %+v", got.Summary)
	}
	if got.Balances.CashInHand != core.Rupees(500) || got.Balances.BankBalance != core.Rupees(-200) {
		t.Fatalf("balances = %+v", got.Balances)
	}
	if got.Daily[2].SalesTotal != core.Rupees(500) || got.Daily[1].ExpensesTotal != core.Rupees(200) {
		t.Fatalf("daily = %+v", got.Daily)
	}
	if got.From.String() != "2025-05-01" {
		t.Errorf("from = %v", got.From)
	}

	other := decode[dashboardResponse](t, env.do(t, ownerB, http.MethodGet, path, ""))
	if other.TotalSales != (core.Money{}) {
		t.Fatalf("owner isolation broken: %+v", other.Summary)
	}
}

func TestReports(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, ownerA, http.MethodPost, "/api/v1/sales", `{"date":"2024-02-14","amount":700,"payment_type":"Cash"}`)

	monthly := decode[monthlyResponse](t, env.do(t, ownerA, http.MethodGet, "/api/v1/reports/monthly?year=2024", ""))
	if monthly.Year != 2024 || len(monthly.Months) != 12 || monthly.Months[1].Sales != core.Rupees(700) {
		t.Fatalf("monthly = %+v", monthly)
	}

	rec := env.do(t, ownerA, http.MethodGet, "/api/v1/reports/export.xlsx?from=2024-01-01&to=2024-12-31", "")
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/vnd.openxmlformats") {
		t.Fatalf("xlsx = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "khata-2024-01-01-to-2024-12-31.xlsx") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Errorf("xlsx body is not a zip archive")
	}

	rec = env.do(t, ownerA, http.MethodGet, "/api/v1/reports/summary.pdf", "")
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf = %d", rec.Code)
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)

	empty := decode[core.Profile](t, env.do(t, ownerA, http.MethodGet, "/api/v1/profile", ""))
	if empty.OwnerID != ownerA || empty.FirstName != "" {
		t.Fatalf("empty profile = %+v", empty)
	}

	rec := env.do(t, ownerA, http.MethodPut, "/api/v1/profile", `{"first_name":"Meera","last_name":"Shah"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update = %d %s", rec.Code, rec.Body)
	}
	got := decode[core.Profile](t, env.do(t, ownerA, http.MethodGet, "/api/v1/profile", ""))
	if got.DisplayName() != "Meera Shah" {
		t.Fatalf("profile = %+v", got)
	}
}

func TestRateLimitPerOwner(t *testing.T) {
	env := newTestEnv(t)
	env.srv.rateLimiter.Stop()
	srv, err := NewServer(":0", env.srv.deps, Options{RateLimitPerMinute: 2})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())
	env.srv = srv

	for i := 0; i < 2; i++ {
		if rec := env.do(t, ownerA, http.MethodGet, "/api/v1/sales", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i, rec.Code)
		}
	}
	rec := env.do(t, ownerA, http.MethodGet, "/api/v1/sales", "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("third request = %d", rec.Code)
	}
	if rec := env.do(t, ownerB, http.MethodGet, "/api/v1/sales", ""); rec.Code != http.StatusOK {
		t.Fatalf("other owner limited too: %d", rec.Code)
	}
}

type brokenStore struct{ *memory.Store }

func (brokenStore) ListSales(context.Context, string, core.DateRange) ([]core.Sale, error) {
	return nil, errors.New("disk I/O error")
}

func TestRepositoryFailureIs503(t *testing.T) {
	env := newTestEnv(t)
	broken := brokenStore{Store: memory.New()}
	env.srv.deps.Ledger = services.NewLedgerService(broken, nil)
	env.srv.deps.Dashboard = services.NewDashboardService(broken, nil, 7)

	for _, path := range []string{"/api/v1/sales", "/api/v1/dashboard"} {
		rec := env.do(t, ownerA, http.MethodGet, path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d, want 503", path, rec.Code)
		}
		if body := decode[errorBody](t, rec); strings.Contains(body.Error, "disk") {
			t.Errorf("storage detail leaked: %q", body.Error)
		}
	}
}
