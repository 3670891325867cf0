package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TradingAssistant/internal/cache"
)

type fixture struct {
	dir    string
	store  *cache.Store
	server *Server
	clock  time.Time
}

func newFixture(t *testing.T, watchlist ...string) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir(), clock: time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)}
	f.store = cache.NewStore(f.dir, time.UTC)
	f.store.Now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	f.server = NewServer(f.store, watchlist, []string{"http://localhost:3000"})
	f.server.Now = func() time.Time { return time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) writeBar(t *testing.T, ticker string, day int, open float64) {
	t.Helper()
	date := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day)
	payload := fmt.Sprintf(`{"ticker":%q,"results":[{"o":%g,"c":2,"h":3,"l":1,"v":1000,"t":%d}]}`,
		ticker, open, date.UnixMilli())
	if _, err := f.store.Write(cache.BarsKey(ticker, date.Format("2006-01-02")), []byte(payload)); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(t *testing.T, method, target string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, "GET", "/")
	if rec.Code != http.StatusOK || body["message"] != "Trading Assistant API" {
		t.Errorf("GET / = %d %v", rec.Code, body)
	}
}

func TestWatchlistOmitsMissing(t *testing.T) {
	f := newFixture(t, "AAPL", "MISSING", "MSFT")
	f.writeBar(t, "MSFT", 1, 400)
	f.writeBar(t, "AAPL", 1, 200)
	f.writeBar(t, "AAPL", 2, 210)

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/watchlist", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp WatchlistResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Stocks) != 2 {
		t.Fatalf("expected 2 stocks, got %+v", resp.Stocks)
	}
	if resp.Stocks[0].Ticker != "AAPL" || resp.Stocks[0].Open != 210 || resp.Stocks[0].Date != "2025-01-03" {
		t.Errorf("AAPL = %+v", resp.Stocks[0])
	}
	if resp.Stocks[1].Ticker != "MSFT" {
		t.Errorf("order not preserved: %+v", resp.Stocks)
	}
	if resp.LastUpdated != "2025-03-10T20:00:00Z" {
		t.Errorf("last_updated = %s", resp.LastUpdated)
	}
}

func TestWatchlistEmptyIsArray(t *testing.T) {
	f := newFixture(t, "AAPL")
	rec, body := f.do(t, "GET", "/api/watchlist")
	stocks, ok := body["stocks"].([]interface{})
	if rec.Code != http.StatusOK || !ok || len(stocks) != 0 {
		t.Errorf("expected empty stocks array, got %d %v", rec.Code, body)
	}
}

func TestDetails(t *testing.T) {
	f := newFixture(t)
	f.store.Write(cache.DetailsKey("AAPL"), []byte(`{"results":{"name":"Apple Inc.","market_cap":3e12,"sic_description":"Electronic Computers","total_employees":161000,"homepage_url":"https://apple.com"}}`))

	rec, body := f.do(t, "GET", "/api/stock/AAPL")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["name"] != "Apple Inc." || body["sector"] != "Electronic Computers" || body["employees"] != float64(161000) {
		t.Errorf("body = %v", body)
	}
}

func TestDetailsUnknownIs404(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, "GET", "/api/stock/UNKNOWN")
	if rec.Code != http.StatusNotFound || body["detail"] != "Stock details not found" {
		t.Errorf("GET unknown = %d %v", rec.Code, body)
	}
}

func TestDetailsCorruptIs500(t *testing.T) {
	f := newFixture(t)
	os.WriteFile(filepath.Join(f.dir, "AAPL_details.json"), []byte(`{"results":`), 0644)
	rec, body := f.do(t, "GET", "/api/stock/AAPL")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg, _ := body["detail"].(string); !strings.HasPrefix(msg, "Error reading stock details: ") {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestChartNotFound(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, "GET", "/api/stock/AAPL/chart")
	if rec.Code != http.StatusNotFound || body["detail"] != "No chart data found" {
		t.Errorf("chart = %d %v", rec.Code, body)
	}
}

func TestChartReturnsNewestThirty(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 45; i++ {
		f.writeBar(t, "AAPL", i, float64(i))
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/stock/AAPL/chart?period=5d", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ChartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Ticker != "AAPL" || resp.Period != "5d" {
		t.Errorf("header = %s %s", resp.Ticker, resp.Period)
	}
	if len(resp.Data) != 30 {
		t.Fatalf("expected 30 points, got %d", len(resp.Data))
	}
	if resp.Data[0].Open != 44 || resp.Data[29].Open != 15 {
		t.Errorf("not newest first: first=%v last=%v", resp.Data[0].Open, resp.Data[29].Open)
	}
}

func TestChartDefaultPeriod(t *testing.T) {
	f := newFixture(t)
	f.writeBar(t, "AAPL", 0, 1)
	_, body := f.do(t, "GET", "/api/stock/AAPL/chart")
	if body["period"] != DefaultPeriod {
		t.Errorf("period = %v", body["period"])
	}
}

func TestWatchlistEdits(t *testing.T) {
	f := newFixture(t, "AAPL")

	rec, body := f.do(t, "POST", "/api/watchlist/add?ticker=TSLA")
	if rec.Code != http.StatusOK || body["message"] != "Added TSLA to watchlist" || body["ticker"] != "TSLA" {
		t.Errorf("add = %d %v", rec.Code, body)
	}

	rec, _ = f.do(t, "POST", "/api/watchlist/add")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("add without ticker = %d", rec.Code)
	}

	rec, body = f.do(t, "DELETE", "/api/watchlist/AAPL")
	if rec.Code != http.StatusOK || body["message"] != "Removed AAPL from watchlist" {
		t.Errorf("delete = %d %v", rec.Code, body)
	}

	if len(f.server.Watchlist) != 1 || f.server.Watchlist[0] != "AAPL" {
		t.Errorf("watchlist mutated: %v", f.server.Watchlist)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("OPTIONS", "/api/watchlist", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials = %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
