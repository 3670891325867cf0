package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"TradingAssistant/internal/queue"
	"TradingAssistant/internal/tasks"
)

type sent struct {
	name string
	args string
}

type fakeSender struct {
	sent []sent
	err  error
}

func (f *fakeSender) Send(_ context.Context, name string, args interface{}) (*queue.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, _ := json.Marshal(args)
	f.sent = append(f.sent, sent{name, string(raw)})
	return &queue.Task{ID: "task-1", Name: name}, nil
}

func newTestScheduler(f *fakeSender) *Scheduler {
	return NewScheduler(context.Background(), f, []string{"AAPL", "MSFT"}, time.UTC)
}

func TestRegisterAll(t *testing.T) {
	s := newTestScheduler(&fakeSender{})
	if err := s.RegisterAll("0 0 18 * * 1-5", "0 0 19 * * 1-5"); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if n := len(s.Cron.Entries()); n != 2 {
		t.Errorf("expected 2 entries, got %d", n)
	}
}

func TestRegisterAllBadCron(t *testing.T) {
	s := newTestScheduler(&fakeSender{})
	if err := s.RegisterAll("0 18 * * 1-5", "0 0 19 * * 1-5"); err == nil {
		t.Error("expected error for five-field expression")
	}
	s = newTestScheduler(&fakeSender{})
	if err := s.RegisterAll("0 0 18 * * 1-5", "nope"); err == nil {
		t.Error("expected error for bad summary cron")
	}
}

func TestIngestionScheduleWeekdays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	s := NewScheduler(context.Background(), &fakeSender{}, nil, ny)
	if err := s.RegisterAll("0 0 18 * * 1-5", "0 0 19 * * 1-5"); err != nil {
		t.Fatal(err)
	}
	// Friday 2025-03-07 12:00 New York: next trigger is 18:00 the same day.
	ingest := s.Cron.Entries()[0].Schedule
	next := ingest.Next(time.Date(2025, 3, 7, 12, 0, 0, 0, ny))
	if !next.Equal(time.Date(2025, 3, 7, 18, 0, 0, 0, ny)) {
		t.Errorf("next ingestion = %v", next)
	}
	// Saturday skips to Monday.
	if got := ingest.Next(time.Date(2025, 3, 8, 12, 0, 0, 0, ny)); got.Weekday() != time.Monday {
		t.Errorf("weekend trigger on %v", got.Weekday())
	}
}

func TestRunIngestNow(t *testing.T) {
	f := &fakeSender{}
	s := newTestScheduler(f)
	if _, err := s.RunIngestNow("2025-03-07"); err != nil {
		t.Fatal(err)
	}
	if len(f.sent) != 1 || f.sent[0].name != tasks.DailyIngestion || f.sent[0].args != `{"date":"2025-03-07"}` {
		t.Errorf("sent = %+v", f.sent)
	}
}

func TestHandleCommand(t *testing.T) {
	f := &fakeSender{}
	s := newTestScheduler(f)

	tests := []struct {
		cmd      string
		wantName string
		wantArgs string
		reply    string
	}{
		{"/ingest", tasks.DailyIngestion, `{}`, "task-1"},
		{"/ingest 2025-03-07", tasks.DailyIngestion, `{"date":"2025-03-07"}`, "queued"},
		{"/backfill 2025-03-01 2025-03-05 QQQ", tasks.HistoricalBackfill,
			`{"start_date":"2025-03-01","end_date":"2025-03-05","tickers":["QQQ"]}`, "backfill queued"},
		{"/summary", tasks.DailySummary, `null`, "summary queued"},
	}
	for _, tt := range tests {
		f.sent = nil
		reply := s.HandleCommand(tt.cmd)
		if len(f.sent) != 1 || f.sent[0].name != tt.wantName || f.sent[0].args != tt.wantArgs {
			t.Errorf("%s: sent = %+v", tt.cmd, f.sent)
		}
		if !strings.Contains(reply, tt.reply) {
			t.Errorf("%s: reply = %q", tt.cmd, reply)
		}
	}

	f.sent = nil
	if reply := s.HandleCommand("/watchlist"); !strings.Contains(reply, "AAPL, MSFT") {
		t.Errorf("watchlist reply = %q", reply)
	}
	if reply := s.HandleCommand("/backfill 2025-03-01"); !strings.HasPrefix(reply, "usage") {
		t.Errorf("backfill usage reply = %q", reply)
	}
	if reply := s.HandleCommand("hello"); !strings.Contains(reply, "Available commands") {
		t.Errorf("help reply = %q", reply)
	}
	if len(f.sent) != 0 {
		t.Errorf("unexpected sends %+v", f.sent)
	}
}

func TestHandleCommandSendError(t *testing.T) {
	s := newTestScheduler(&fakeSender{err: errors.New("redis down")})
	for _, cmd := range []string{"/ingest", "/summary"} {
		if reply := s.HandleCommand(cmd); !strings.Contains(reply, "redis down") {
			t.Errorf("%s: reply = %q", cmd, reply)
		}
	}
}
