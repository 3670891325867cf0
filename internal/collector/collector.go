package collector

import (
	"context"
	"fmt"
	"log"
	"time"

	"TradingAssistant/internal/cache"
	"TradingAssistant/internal/model"
)

// Writer persists a provider envelope under a cache key.
type Writer interface {
	Write(key cache.Key, payload []byte) (string, error)
}

// Collector runs the daily ingestion workflow: one pass per data kind over
// the whole watchlist, writing each payload to the cache.
type Collector struct {
	Fetcher   Fetcher
	Cache     Writer
	Pacing    time.Duration
	FetchNews bool
	Location  *time.Location
	Now       func() time.Time

	after func(time.Duration) <-chan time.Time
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, w Writer, pacing time.Duration, fetchNews bool, loc *time.Location) *Collector {
	if loc == nil {
		loc = time.UTC
	}
	return &Collector{
		Fetcher:   fetcher,
		Cache:     w,
		Pacing:    pacing,
		FetchNews: fetchNews,
		Location:  loc,
		Now:       time.Now,
		after:     time.After,
	}
}

// pass fetches one kind for one ticker.
type pass struct {
	kind  model.Kind
	key   func(ticker string) cache.Key
	fetch func(ctx context.Context, ticker string) ([]byte, error)
}

// ResolveDate returns the date to ingest. An empty date means today; an
// unparsable one falls back to today; a date after today becomes yesterday.
func (c *Collector) ResolveDate(date string) string {
	now := c.Now().In(c.Location)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.Location)
	if date == "" {
		return today.Format(model.DateLayout)
	}
	requested, err := time.ParseInLocation(model.DateLayout, date, c.Location)
	if err != nil {
		log.Printf("[WARN] invalid date format %q, using today's date", date)
		return today.Format(model.DateLayout)
	}
	if requested.After(today) {
		yesterday := today.AddDate(0, 0, -1).Format(model.DateLayout)
		log.Printf("[WARN] requested date %s is in the future, using %s instead", date, yesterday)
		return yesterday
	}
	return requested.Format(model.DateLayout)
}

// Run ingests bars, details and (optionally) news for every ticker.
//
// The result always reports success with TickersProcessed equal to the
// watchlist length. Individual failures are logged and listed in Items.
func (c *Collector) Run(ctx context.Context, watchlist []string, date string) *model.TaskResult {
	start := c.Now()
	date = c.ResolveDate(date)
	log.Printf("[INFO] starting daily workflow for %s (%d tickers, source %s)", date, len(watchlist), c.Fetcher.Name())

	res := &model.TaskResult{
		Status:           model.StatusSuccess,
		Date:             date,
		TickersProcessed: len(watchlist),
		StartTime:        start,
	}

	for _, p := range c.passes(date) {
		for _, ticker := range watchlist {
			item := c.fetchOne(ctx, p, ticker)
			if !item.OK {
				res.Failed++
			}
			res.Items = append(res.Items, item)
			c.pause(ctx)
		}
	}

	res.EndTime = c.Now()
	res.DurationSeconds = res.EndTime.Sub(start).Seconds()
	log.Printf("[INFO] daily workflow for %s completed: %d fetches, %d failed", date, len(res.Items), res.Failed)
	return res
}

// Backfill runs the workflow for every day in [start, end].
func (c *Collector) Backfill(ctx context.Context, watchlist []string, start, end string) (*model.TaskResult, error) {
	from, err := time.ParseInLocation(model.DateLayout, start, c.Location)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	to, err := time.ParseInLocation(model.DateLayout, end, c.Location)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s is before start date %s", end, start)
	}

	log.Printf("[INFO] starting historical backfill from %s to %s", start, end)
	res := &model.TaskResult{
		Status:           model.StatusSuccess,
		StartDate:        start,
		EndDate:          end,
		TickersProcessed: len(watchlist),
		StartTime:        c.Now(),
	}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			break
		}
		current := day.Format(model.DateLayout)
		log.Printf("[INFO] backfill processing %s", current)
		run := c.Run(ctx, watchlist, current)
		res.Date = run.Date
		res.DaysProcessed++
		res.Failed += run.Failed
		res.Items = append(res.Items, run.Items...)
	}
	res.EndTime = c.Now()
	res.DurationSeconds = res.EndTime.Sub(res.StartTime).Seconds()
	log.Printf("[INFO] historical backfill completed: %d days", res.DaysProcessed)
	return res, ctx.Err()
}

func (c *Collector) passes(date string) []pass {
	passes := []pass{
		{
			kind: model.KindDailyBars,
			key:  func(t string) cache.Key { return cache.BarsKey(t, date) },
			fetch: func(ctx context.Context, t string) ([]byte, error) {
				return c.Fetcher.FetchDailyBars(ctx, t, date)
			},
		},
		{
			kind:  model.KindDetails,
			key:   cache.DetailsKey,
			fetch: c.Fetcher.FetchTickerDetails,
		},
	}
	if c.FetchNews {
		passes = append(passes, pass{
			kind: model.KindNews,
			key:  func(t string) cache.Key { return cache.NewsKey(t, date) },
			fetch: func(ctx context.Context, t string) ([]byte, error) {
				return c.Fetcher.FetchNews(ctx, t, date)
			},
		})
	}
	return passes
}

func (c *Collector) fetchOne(ctx context.Context, p pass, ticker string) model.ItemResult {
	item := model.ItemResult{Kind: p.kind, Ticker: ticker}
	if err := ctx.Err(); err != nil {
		item.Error = err.Error()
		return item
	}

	log.Printf("[INFO] fetching %s for %s", p.kind, ticker)
	payload, err := p.fetch(ctx, ticker)
	if err != nil {
		log.Printf("[ERROR] %v", err)
		item.Error = err.Error()
		return item
	}
	if len(payload) == 0 {
		item.Error = "empty response"
		return item
	}
	path, err := c.Cache.Write(p.key(ticker), payload)
	if err != nil {
		log.Printf("[ERROR] save %s for %s: %v", p.kind, ticker, err)
		item.Error = err.Error()
		return item
	}
	log.Printf("[INFO] data saved to %s", path)
	item.OK = true
	item.File = path
	return item
}

// pause waits Pacing between provider calls, returning early on cancellation.
func (c *Collector) pause(ctx context.Context) {
	if c.Pacing <= 0 {
		return
	}
	after := c.after
	if after == nil {
		after = time.After
	}
	select {
	case <-ctx.Done():
	case <-after(c.Pacing):
	}
}
