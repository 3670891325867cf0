// Package tasks defines the named tasks run by the queue: daily ingestion,
// historical backfill and the daily summary, plus the lifecycle hooks that
// notify and record every run.
package tasks

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"TradingAssistant/internal/model"
	"TradingAssistant/internal/notifier"
	"TradingAssistant/internal/queue"
	"TradingAssistant/internal/recorder"
)

// Task names.
const (
	DailyIngestion     = "ingest.daily_data"
	HistoricalBackfill = "ingest.historical_backfill"
	DailySummary       = "report.daily_summary"
)

// IngestArgs are the arguments of DailyIngestion. An empty date means today.
type IngestArgs struct {
	Date string `json:"date,omitempty"`
}

// BackfillArgs are the arguments of HistoricalBackfill. Nil Tickers means
// the configured watchlist.
type BackfillArgs struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Tickers   []string `json:"tickers,omitempty"`
}

// SummaryResult is returned by DailySummary.
type SummaryResult struct {
	Executions int `json:"executions"`
	Errors     int `json:"errors"`
}

// Ingester runs the ingestion workflow.
type Ingester interface {
	Run(ctx context.Context, watchlist []string, date string) *model.TaskResult
	Backfill(ctx context.Context, watchlist []string, start, end string) (*model.TaskResult, error)
}

// Tasks carries the collaborators shared by every handler.
type Tasks struct {
	Ingester  Ingester
	Watchlist []string
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Location  *time.Location
	Now       func() time.Time
}

// New creates Tasks. Nil notifier or recorder fall back to no-ops.
func New(ing Ingester, watchlist []string, n notifier.Notifier, r recorder.Recorder, loc *time.Location) *Tasks {
	if n == nil {
		n = notifier.NoopNotifier{}
	}
	if r == nil {
		r = recorder.NewNoopRecorder()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Tasks{
		Ingester:  ing,
		Watchlist: watchlist,
		Notifier:  n,
		Recorder:  r,
		Location:  loc,
		Now:       time.Now,
	}
}

// Register adds every handler to app and installs the lifecycle hooks.
func (s *Tasks) Register(app *queue.App) {
	app.Register(DailyIngestion, s.dailyIngestion)
	app.Register(HistoricalBackfill, s.historicalBackfill)
	app.Register(DailySummary, s.dailySummary)
	app.Hooks = queue.Hooks{
		OnStart:   s.onStart,
		OnSuccess: s.onSuccess,
		OnFailure: s.onFailure,
	}
}

func (s *Tasks) dailyIngestion(ctx context.Context, t *queue.Task) (interface{}, error) {
	var args IngestArgs
	if err := t.Bind(&args); err != nil {
		return nil, err
	}
	log.Printf("[INFO] starting daily data ingestion task for date: %q", args.Date)
	res := s.Ingester.Run(ctx, s.Watchlist, args.Date)
	if res.Partial() {
		log.Printf("[WARN] daily ingestion for %s finished with %d failed fetches", res.Date, res.Failed)
	}
	return res, nil
}

func (s *Tasks) historicalBackfill(ctx context.Context, t *queue.Task) (interface{}, error) {
	var args BackfillArgs
	if err := t.Bind(&args); err != nil {
		return nil, err
	}
	if args.StartDate == "" || args.EndDate == "" {
		return nil, fmt.Errorf("backfill needs start_date and end_date")
	}
	tickers := args.Tickers
	if len(tickers) == 0 {
		tickers = s.Watchlist
	}
	return s.Ingester.Backfill(ctx, tickers, args.StartDate, args.EndDate)
}

func (s *Tasks) dailySummary(_ context.Context, _ *queue.Task) (interface{}, error) {
	now := s.Now().In(s.Location)
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.Location)

	execs, err := s.Recorder.Executions(since)
	if err != nil {
		return nil, fmt.Errorf("load executions: %w", err)
	}
	errs, err := s.Recorder.Errors(since)
	if err != nil {
		return nil, fmt.Errorf("load errors: %w", err)
	}
	if err := s.Notifier.DailySummary(execs, errs); err != nil {
		return nil, fmt.Errorf("send daily summary: %w", err)
	}
	return &SummaryResult{Executions: len(execs), Errors: len(errs)}, nil
}

// announced reports whether lifecycle notifications are sent for name.
// The summary is itself a notification.
func announced(name string) bool {
	return strings.HasPrefix(name, "ingest.")
}

func (s *Tasks) onStart(t *queue.Task) {
	if !announced(t.Name) {
		return
	}
	if err := s.Notifier.TaskStarted(t.Name, t.ID); err != nil {
		log.Printf("[WARN] notify start of %s: %v", t.Name, err)
	}
}

func (s *Tasks) onSuccess(t *queue.Task, value interface{}, elapsed time.Duration) {
	res, ok := value.(*model.TaskResult)
	if !ok {
		return
	}
	exec := model.Execution{TaskName: t.Name, TaskID: t.ID, Timestamp: s.Now(), Result: *res}
	if err := s.Recorder.RecordExecution(exec); err != nil {
		log.Printf("[WARN] record execution of %s: %v", t.Name, err)
	}
	if !announced(t.Name) {
		return
	}
	if err := s.Notifier.TaskCompleted(t.Name, t.ID, res, elapsed); err != nil {
		log.Printf("[WARN] notify completion of %s: %v", t.Name, err)
	}
}

func (s *Tasks) onFailure(t *queue.Task, taskErr error) {
	rec := model.TaskError{TaskName: t.Name, TaskID: t.ID, Timestamp: s.Now(), Error: taskErr.Error()}
	if err := s.Recorder.RecordError(rec); err != nil {
		log.Printf("[WARN] record error of %s: %v", t.Name, err)
	}
	if err := s.Notifier.TaskFailed(t.Name, t.ID, taskErr.Error()); err != nil {
		log.Printf("[WARN] notify failure of %s: %v", t.Name, err)
	}
}
