package scheduler

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"TradingAssistant/internal/queue"
	"TradingAssistant/internal/tasks"

	"github.com/robfig/cron/v3"
)

// Sender enqueues a named task.
type Sender interface {
	Send(ctx context.Context, name string, args interface{}) (*queue.Task, error)
}

// Scheduler fires the periodic tasks and answers chat commands. It only
// enqueues; workers do the actual work.
type Scheduler struct {
	Cron      *cron.Cron
	Tasks     Sender
	Watchlist []string
	Ctx       context.Context
}

// NewScheduler creates a Scheduler evaluating cron expressions in loc.
func NewScheduler(ctx context.Context, sender Sender, watchlist []string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Tasks:     sender,
		Watchlist: watchlist,
		Ctx:       ctx,
	}
}

// RegisterAll registers the daily ingestion and the daily summary.
func (s *Scheduler) RegisterAll(ingestionCron, summaryCron string) error {
	if _, err := s.Cron.AddFunc(ingestionCron, func() { s.send(tasks.DailyIngestion, nil) }); err != nil {
		return fmt.Errorf("register ingestion task: %w", err)
	}
	if _, err := s.Cron.AddFunc(summaryCron, func() { s.send(tasks.DailySummary, nil) }); err != nil {
		return fmt.Errorf("register summary task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	for _, e := range s.Cron.Entries() {
		log.Printf("[INFO] scheduled entry %d next run at %s", e.ID, e.Next.Format(time.RFC3339))
	}
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for running triggers.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunIngestNow enqueues an ingestion for date (empty means today).
func (s *Scheduler) RunIngestNow(date string) (*queue.Task, error) {
	return s.send(tasks.DailyIngestion, tasks.IngestArgs{Date: date})
}

// RunSummaryNow enqueues the daily summary.
func (s *Scheduler) RunSummaryNow() (*queue.Task, error) {
	return s.send(tasks.DailySummary, nil)
}

// RunBackfillNow enqueues a backfill over [start, end].
func (s *Scheduler) RunBackfillNow(start, end string, tickers []string) (*queue.Task, error) {
	return s.send(tasks.HistoricalBackfill, tasks.BackfillArgs{StartDate: start, EndDate: end, Tickers: tickers})
}

func (s *Scheduler) send(name string, args interface{}) (*queue.Task, error) {
	log.Printf("[INFO] triggering %s", name)
	t, err := s.Tasks.Send(s.Ctx, name, args)
	if err != nil {
		log.Printf("[ERROR] trigger %s: %v", name, err)
		return nil, err
	}
	return t, nil
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return help
	}
	switch fields[0] {
	case "/ingest":
		date := ""
		if len(fields) > 1 {
			date = fields[1]
		}
		t, err := s.RunIngestNow(date)
		if err != nil {
			return fmt.Sprintf("❌ ingestion not queued: %v", err)
		}
		return fmt.Sprintf("📥 ingestion queued (task %s)", t.ID)
	case "/backfill":
		if len(fields) < 3 {
			return "usage: /backfill YYYY-MM-DD YYYY-MM-DD [TICKER...]"
		}
		t, err := s.RunBackfillNow(fields[1], fields[2], fields[3:])
		if err != nil {
			return fmt.Sprintf("❌ backfill not queued: %v", err)
		}
		return fmt.Sprintf("📥 backfill queued (task %s)", t.ID)
	case "/summary":
		t, err := s.RunSummaryNow()
		if err != nil {
			return fmt.Sprintf("❌ summary not queued: %v", err)
		}
		return fmt.Sprintf("📥 summary queued (task %s)", t.ID)
	case "/watchlist":
		return fmt.Sprintf("👀 <b>Watchlist</b> (%d)\n%s", len(s.Watchlist), strings.Join(s.Watchlist, ", "))
	default:
		return help
	}
}

const help = "Available commands:\n" +
	"• /ingest [YYYY-MM-DD]\n" +
	"• /backfill START END [TICKER...]\n" +
	"• /summary\n" +
	"• /watchlist"
