package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"TradingAssistant/internal/api"
	"TradingAssistant/internal/cache"
	"TradingAssistant/internal/config"
	"TradingAssistant/internal/queue"
	"TradingAssistant/internal/scheduler"
	"TradingAssistant/internal/tasks"
)

var (
	flagQueues      []string
	flagConcurrency int
	flagDate        string
	flagStart       string
	flagEnd         string
	flagTickers     string
)

func init() {
	workerCmd.Flags().StringSliceVar(&flagQueues, "queues", nil, "queues to consume (default: every routed queue)")
	workerCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "concurrent tasks (default: queue.concurrency)")

	ingestCmd.Flags().StringVar(&flagDate, "date", "", "date to ingest, YYYY-MM-DD (default: today)")

	backfillCmd.Flags().StringVar(&flagStart, "start", "", "first date, YYYY-MM-DD")
	backfillCmd.Flags().StringVar(&flagEnd, "end", "", "last date, YYYY-MM-DD")
	backfillCmd.Flags().StringVar(&flagTickers, "tickers", "", "comma separated tickers (default: watchlist)")
	backfillCmd.MarkFlagRequired("start")
	backfillCmd.MarkFlagRequired("end")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read API over the file cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, loc, err := loadConfig((*config.Config).ValidateServe)
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		srv := api.NewServer(cache.NewStore(cfg.Cache.Dir, loc), cfg.Watchlist, cfg.Server.AllowedOrigins)
		return srv.ListenAndServe(ctx, cfg.Addr())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume queued tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()
		if rt.app.Eager {
			return fmt.Errorf("queue.always_eager is set: tasks run inline and there is nothing to consume")
		}

		queues := flagQueues
		if len(queues) == 0 {
			queues = router(rt.cfg).Queues()
		}
		concurrency := flagConcurrency
		if concurrency == 0 {
			concurrency = rt.cfg.Queue.Concurrency
		}

		ctx, stop := signalContext()
		defer stop()
		if rb, ok := rt.broker.(*queue.RedisBroker); ok {
			if err := rb.Ping(ctx); err != nil {
				return err
			}
		}
		return queue.NewWorker(rt.app, queues, concurrency).Run(ctx)
	},
}

var beatCmd = &cobra.Command{
	Use:   "beat",
	Short: "Run the scheduler that enqueues periodic tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(false)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, stop := signalContext()
		defer stop()

		sched := scheduler.NewScheduler(ctx, rt.app, rt.cfg.Watchlist, rt.loc)
		if err := sched.RegisterAll(rt.cfg.Schedule.IngestionCron, rt.cfg.Schedule.SummaryCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		if rt.telegram != nil {
			go rt.telegram.StartPolling(ctx, sched.HandleCommand)
			log.Println("[INFO] Telegram polling started")
		}

		log.Println("[INFO] scheduler is running. Press Ctrl+C to stop.")
		<-ctx.Done()
		log.Println("[INFO] shutdown signal received, stopping...")
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the daily ingestion now, in this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInline(tasks.DailyIngestion, tasks.IngestArgs{Date: flagDate})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Ingest every day of a date range, in this process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInline(tasks.HistoricalBackfill, tasks.BackfillArgs{
			StartDate: flagStart,
			EndDate:   flagEnd,
			Tickers:   config.SplitTickers(flagTickers),
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Send the daily summary now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInline(tasks.DailySummary, nil)
	},
}

// runInline executes one task synchronously and prints its stored result.
func runInline(name string, taskArgs interface{}) error {
	rt, err := newRuntime(true)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signalContext()
	defer stop()

	t, err := rt.app.Send(ctx, name, taskArgs)
	if err != nil {
		return err
	}
	res, err := rt.broker.Result(ctx, t.ID)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
