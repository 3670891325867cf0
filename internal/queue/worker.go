package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPollTimeout bounds each blocking dequeue so shutdown is noticed.
const DefaultPollTimeout = 5 * time.Second

const (
	defaultRetryDelay  = time.Second
	defaultMaxFailures = 10
)

// Worker consumes Queues with Concurrency goroutines. Each goroutine holds at
// most one task at a time. A goroutine that sees MaxFailures dequeue errors
// in a row stops the whole worker with that error.
type Worker struct {
	App         *App
	Queues      []string
	Concurrency int
	PollTimeout time.Duration
	RetryDelay  time.Duration
	MaxFailures int
}

// NewWorker creates a worker over queues.
func NewWorker(app *App, queues []string, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		App:         app,
		Queues:      queues,
		Concurrency: concurrency,
		PollTimeout: DefaultPollTimeout,
		RetryDelay:  defaultRetryDelay,
		MaxFailures: defaultMaxFailures,
	}
}

// Run consumes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("[INFO] worker started: queues=%v concurrency=%d tasks=%v", w.Queues, w.Concurrency, w.App.Names())

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.Concurrency; i++ {
		g.Go(func() error {
			return w.loop(gctx)
		})
	}
	err := g.Wait()
	log.Println("[INFO] worker stopped")
	return err
}

func (w *Worker) loop(ctx context.Context) error {
	failures := 0
	for ctx.Err() == nil {
		t, err := w.App.Broker.Dequeue(ctx, w.Queues, w.PollTimeout)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, ErrNoTask):
			failures = 0
			continue
		case ctx.Err() != nil:
			return nil
		default:
			failures++
			if w.MaxFailures > 0 && failures >= w.MaxFailures {
				return fmt.Errorf("dequeue failed %d times in a row: %w", failures, err)
			}
			log.Printf("[WARN] dequeue failed (%d/%d): %v", failures, w.MaxFailures, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.RetryDelay):
			}
			continue
		}

		log.Printf("[INFO] task %s[%s] received from %s", t.Name, t.ID, t.Queue)
		w.App.Execute(ctx, t)
	}
	return nil
}
