package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"TradingAssistant/internal/cache"
	"TradingAssistant/internal/collector"
	"TradingAssistant/internal/config"
	"TradingAssistant/internal/notifier"
	"TradingAssistant/internal/queue"
	"TradingAssistant/internal/recorder"
	"TradingAssistant/internal/tasks"
)

const defaultConfigPath = "configs/config.yaml"

// configPath resolves --config, then CONFIG_PATH, then the default.
func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return defaultConfigPath
}

// loadConfig loads the config file and checks it with validate, which is
// (*config.Config).Validate for task commands and ValidateServe for the API.
func loadConfig(validate func(*config.Config) error) (*config.Config, *time.Location, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

// runtime wires the collaborators shared by the task-running commands.
type runtime struct {
	cfg      *config.Config
	loc      *time.Location
	store    *cache.Store
	rec      recorder.Recorder
	telegram *notifier.TelegramNotifier
	broker   queue.Broker
	app      *queue.App
}

// newRuntime builds the task app. With inline set, tasks run in-process
// against an in-memory broker regardless of queue.always_eager.
func newRuntime(inline bool) (*runtime, error) {
	cfg, loc, err := loadConfig((*config.Config).Validate)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, loc: loc, store: cache.NewStore(cfg.Cache.Dir, loc)}

	fetcher := collector.NewPolygonFetcher(cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Proxy, cfg.Provider.Timeout)
	col := collector.NewCollector(fetcher, rt.store, cfg.Provider.Pacing, cfg.Ingestion.FetchNews, loc)
	log.Printf("[INFO] data source: %s, cache dir: %s, watchlist: %d tickers", fetcher.Name(), cfg.Cache.Dir, len(cfg.Watchlist))

	rt.rec, err = recorder.New(cfg.History)
	if err != nil {
		log.Printf("[WARN] init %s recorder failed, using noop: %v", cfg.History.Backend, err)
		rt.rec = recorder.NewNoopRecorder()
	}

	var channels []notifier.Channel
	if cfg.SMTP.Enabled() {
		channels = append(channels, notifier.NewEmailNotifier(cfg.SMTP.Server, cfg.SMTP.Port,
			cfg.SMTP.SenderEmail, cfg.SMTP.SenderPassword, cfg.SMTP.RecipientEmail))
	}
	if cfg.Telegram.Enabled() {
		rt.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		channels = append(channels, rt.telegram)
	}
	if len(channels) == 0 {
		log.Println("[WARN] no notification channel configured")
	}
	notify := notifier.New(notifier.NewFormatter(loc), channels...)

	eager := inline || cfg.Queue.AlwaysEager
	if eager {
		rt.broker = queue.NewMemoryBroker()
	} else {
		rb, err := queue.NewRedisBroker(cfg.Queue.BrokerURL, cfg.Queue.ResultBackend, cfg.Queue.ResultExpires)
		if err != nil {
			rt.rec.Close()
			return nil, err
		}
		rt.broker = rb
	}

	rt.app = queue.NewApp(rt.broker, router(cfg), eager)
	tasks.New(col, cfg.Watchlist, notify, rt.rec, loc).Register(rt.app)
	return rt, nil
}

func router(cfg *config.Config) queue.Router {
	r := queue.Router{Default: cfg.Queue.DefaultQueue}
	for _, route := range cfg.Queue.Routes {
		r.Routes = append(r.Routes, queue.Route{Pattern: route.Pattern, Queue: route.Queue})
	}
	return r
}

func (rt *runtime) Close() {
	if err := rt.broker.Close(); err != nil {
		log.Printf("[WARN] close broker: %v", err)
	}
	if err := rt.rec.Close(); err != nil {
		log.Printf("[WARN] close recorder: %v", err)
	}
}
