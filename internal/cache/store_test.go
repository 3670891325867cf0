package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"TradingAssistant/internal/model"
)

func testStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	clock := time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC)
	s := NewStore(t.TempDir(), time.UTC)
	s.Now = func() time.Time { return clock }
	return s, &clock
}

func barEnvelope(ticker, date string, open, close float64, volume int64) []byte {
	day, _ := time.Parse(model.DateLayout, date)
	return []byte(fmt.Sprintf(`{"ticker":%q,"status":"OK","resultsCount":1,"results":[{"o":%v,"c":%v,"h":%v,"l":%v,"v":%d,"t":%d}]}`,
		ticker, open, close, close+1, open-1, volume, day.UnixMilli()))
}

func TestKeyFileName(t *testing.T) {
	tests := []struct {
		key  Key
		want string
	}{
		{BarsKey("AMD", "2025-03-07"), "AMD_daily_bars_2025-03-07.json"},
		{DetailsKey("AMD"), "AMD_details.json"},
		{NewsKey("AMD", "2025-03-07"), "AMD_news_2025-03-07.json"},
	}
	for _, tt := range tests {
		if got := tt.key.FileName(); got != tt.want {
			t.Errorf("FileName(%+v) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestKeyValidate(t *testing.T) {
	bad := []Key{
		BarsKey("", "2025-03-07"),
		BarsKey("A/B", "2025-03-07"),
		BarsKey("A*", "2025-03-07"),
		BarsKey("AMD", ""),
		{Kind: "earnings", Ticker: "AMD"},
	}
	for _, k := range bad {
		if err := k.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", k)
		}
	}
	if err := DetailsKey("AMD").Validate(); err != nil {
		t.Errorf("Validate(details) = %v", err)
	}
}

func TestWriteReadLatestBarRoundTrip(t *testing.T) {
	s, _ := testStore(t)

	path, err := s.Write(BarsKey("CSCO", "2025-03-07"), barEnvelope("CSCO", "2025-03-07", 61.5, 62.25, 18000000))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(path) != "CSCO_daily_bars_2025-03-07.json" {
		t.Errorf("unexpected path %s", path)
	}

	bar, ok := s.LatestBar("CSCO")
	if !ok {
		t.Fatal("LatestBar returned absent after write")
	}
	if bar.Open != 61.5 || bar.Close != 62.25 || bar.High != 63.25 || bar.Low != 60.5 {
		t.Errorf("prices mismatch: %+v", bar)
	}
	if bar.Volume != 18000000 {
		t.Errorf("Volume = %d, want 18000000", bar.Volume)
	}
	if bar.Date != "2025-03-07" {
		t.Errorf("Date = %s, want 2025-03-07", bar.Date)
	}
	if bar.Change != 0 || bar.ChangePercent != 0 {
		t.Errorf("change fields should stay zero, got %v/%v", bar.Change, bar.ChangePercent)
	}
}

func TestWriteKeepsEnvelopeAndStamps(t *testing.T) {
	s, _ := testStore(t)
	path, err := s.Write(BarsKey("AMD", "2025-03-07"), barEnvelope("AMD", "2025-03-07", 1, 2, 3))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{`"results": [`, `"resultsCount": 1`, `"fetched_at": "2025-03-10T18:00:00Z"`} {
		if !strings.Contains(body, want) {
			t.Errorf("file missing %s:\n%s", want, body)
		}
	}
}

func TestWriteRejectsNonObject(t *testing.T) {
	s, _ := testStore(t)
	for _, payload := range []string{`null`, `[1,2]`, `not json`} {
		if _, err := s.Write(BarsKey("AMD", "2025-03-07"), []byte(payload)); err == nil {
			t.Errorf("Write(%s) = nil error, want error", payload)
		}
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	s, _ := testStore(t)
	s.Dir = filepath.Join(s.Dir, "nested", "data")
	if _, err := s.Write(DetailsKey("UBER"), []byte(`{"results":{"name":"Uber"}}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "UBER_details.json")); err != nil {
		t.Errorf("details file missing: %v", err)
	}
}

func TestLatestBarAbsent(t *testing.T) {
	s, _ := testStore(t)
	bar, ok := s.LatestBar("VOO")
	if ok || bar != nil {
		t.Errorf("LatestBar on empty cache = %+v, %v; want nil, false", bar, ok)
	}
}

func TestLatestBarEmptyResultsAndCorruptAreAbsent(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Write(BarsKey("QQQ", "2025-03-08"), []byte(`{"status":"OK","resultsCount":0}`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LatestBar("QQQ"); ok {
		t.Error("expected absent for envelope without results")
	}

	if err := os.WriteFile(filepath.Join(s.Dir, "DELL_daily_bars_2025-03-08.json"), []byte(`{"results": [`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.LatestBar("DELL"); ok {
		t.Error("expected absent for torn file")
	}
}

func TestLatestFollowsWriteTimeNotFileDate(t *testing.T) {
	s, clock := testStore(t)

	// The later-dated file is written first.
	if _, err := s.Write(BarsKey("AMD", "2025-03-07"), barEnvelope("AMD", "2025-03-07", 100, 101, 1)); err != nil {
		t.Fatal(err)
	}
	*clock = clock.Add(time.Minute)
	if _, err := s.Write(BarsKey("AMD", "2025-02-01"), barEnvelope("AMD", "2025-02-01", 90, 91, 1)); err != nil {
		t.Fatal(err)
	}

	bar, ok := s.LatestBar("AMD")
	if !ok {
		t.Fatal("expected a bar")
	}
	if bar.Date != "2025-02-01" || bar.Open != 90 {
		t.Errorf("LatestBar = %+v, want the 2025-02-01 bar written last", bar)
	}
}

func TestLatestFallsBackToModTime(t *testing.T) {
	s, _ := testStore(t)
	older := filepath.Join(s.Dir, "VICI_daily_bars_2025-03-07.json")
	newer := filepath.Join(s.Dir, "VICI_daily_bars_2025-01-02.json")
	if err := os.WriteFile(older, barEnvelope("VICI", "2025-03-07", 30, 31, 1), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, barEnvelope("VICI", "2025-01-02", 28, 29, 1), 0644); err != nil {
		t.Fatal(err)
	}
	base := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, base, base); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}

	bar, ok := s.LatestBar("VICI")
	if !ok {
		t.Fatal("expected a bar")
	}
	if bar.Date != "2025-01-02" {
		t.Errorf("LatestBar date = %s, want 2025-01-02 (newest mtime)", bar.Date)
	}
}

func TestListDoesNotMatchLongerTickers(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Write(BarsKey("DELL", "2025-03-07"), barEnvelope("DELL", "2025-03-07", 1, 2, 3)); err != nil {
		t.Fatal(err)
	}
	entries, err := s.List("DE", model.KindDailyBars)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("List(DE) matched %d files, want 0", len(entries))
	}
}

func TestBarRangeLimitAndOrder(t *testing.T) {
	s, clock := testStore(t)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 45; i++ {
		date := start.AddDate(0, 0, i).Format(model.DateLayout)
		if _, err := s.Write(BarsKey("MRVL", date), barEnvelope("MRVL", date, float64(i), float64(i), 1)); err != nil {
			t.Fatal(err)
		}
		*clock = clock.Add(time.Second)
	}

	bars, err := s.BarRange("MRVL", 30)
	if err != nil {
		t.Fatalf("BarRange: %v", err)
	}
	if len(bars) != 30 {
		t.Fatalf("BarRange returned %d bars, want 30", len(bars))
	}
	if bars[0].Open != 44 {
		t.Errorf("first bar Open = %v, want 44 (most recent)", bars[0].Open)
	}
	if bars[29].Open != 15 {
		t.Errorf("last bar Open = %v, want 15", bars[29].Open)
	}
}

func TestBarRangeSkipsCorruptFile(t *testing.T) {
	s, clock := testStore(t)
	for _, date := range []string{"2025-03-03", "2025-03-04"} {
		if _, err := s.Write(BarsKey("PUBM", date), barEnvelope("PUBM", date, 10, 11, 1)); err != nil {
			t.Fatal(err)
		}
		*clock = clock.Add(time.Second)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "PUBM_daily_bars_2025-03-05.json"), []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	bars, err := s.BarRange("PUBM", 30)
	if err != nil {
		t.Fatalf("BarRange: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("BarRange returned %d bars, want 2", len(bars))
	}
}

func TestBarRangeNotFound(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.BarRange("AVD", 30); !errors.Is(err, ErrNotFound) {
		t.Errorf("BarRange on empty cache err = %v, want ErrNotFound", err)
	}
}

func TestDetails(t *testing.T) {
	s, _ := testStore(t)
	payload := `{"status":"OK","results":{"ticker":"AMD","name":"Advanced Micro Devices","market_cap":2.1e11,` +
		`"description":"Chips","sic_description":"SEMICONDUCTORS","total_employees":26000,"homepage_url":"https://www.amd.com"}}`
	if _, err := s.Write(DetailsKey("AMD"), []byte(payload)); err != nil {
		t.Fatal(err)
	}

	d, err := s.Details("AMD")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d.Name != "Advanced Micro Devices" || d.Sector != "SEMICONDUCTORS" || d.Employees != 26000 {
		t.Errorf("unexpected details %+v", d)
	}
	if d.Website != "https://www.amd.com" || d.MarketCap != 2.1e11 {
		t.Errorf("unexpected details %+v", d)
	}
}

func TestDetailsDefaultsAndErrors(t *testing.T) {
	s, _ := testStore(t)
	if _, err := s.Details("UNKNOWN"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Details(UNKNOWN) err = %v, want ErrNotFound", err)
	}

	if _, err := s.Write(DetailsKey("FIG"), []byte(`{"status":"OK"}`)); err != nil {
		t.Fatal(err)
	}
	d, err := s.Details("FIG")
	if err != nil {
		t.Fatalf("Details: %v", err)
	}
	if d.Name != "FIG" {
		t.Errorf("Name = %q, want ticker fallback FIG", d.Name)
	}

	if err := os.WriteFile(filepath.Join(s.Dir, "PDSB_details.json"), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Details("PDSB"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Details(PDSB) err = %v, want parse error", err)
	}
}

func TestNews(t *testing.T) {
	s, _ := testStore(t)
	payload := `{"status":"OK","count":2,"results":[{"id":"a","title":"one"},{"id":"b","title":"two"}]}`
	if _, err := s.Write(NewsKey("UBER", "2025-03-07"), []byte(payload)); err != nil {
		t.Fatal(err)
	}
	batch, err := s.News("UBER", "2025-03-07")
	if err != nil {
		t.Fatalf("News: %v", err)
	}
	if batch.Count() != 2 {
		t.Errorf("Count = %d, want 2", batch.Count())
	}
	if _, err := s.News("UBER", "2025-03-08"); !errors.Is(err, ErrNotFound) {
		t.Errorf("News missing err = %v, want ErrNotFound", err)
	}
}
