package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// DefaultWatchlist is used when neither the config file nor WATCHLIST set one.
var DefaultWatchlist = []string{
	"DE", "APPL", "AMD", "DELL", "FIG", "UBER", "MRVL",
	"CSCO", "VICI", "PUBM", "AVD", "PDSB", "QQQ", "VOO",
}

// Config holds all application configuration.
type Config struct {
	Provider  Provider  `yaml:"provider"`
	Cache     Cache     `yaml:"cache"`
	Watchlist []string  `yaml:"watchlist" validate:"min=1,dive,required,excludesall=/\\*?[]"`
	Ingestion Ingestion `yaml:"ingestion"`
	Schedule  Schedule  `yaml:"schedule"`
	Queue     Queue     `yaml:"queue"`
	Server    Server    `yaml:"server"`
	SMTP      SMTP      `yaml:"smtp"`
	Telegram  Telegram  `yaml:"telegram"`
	History   History   `yaml:"history"`
	Proxy     string    `yaml:"proxy"`
}

// Provider configures the market-data REST API.
type Provider struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	APIKey  string        `yaml:"api_key" validate:"required"`
	Timeout time.Duration `yaml:"timeout"`
	Pacing  time.Duration `yaml:"pacing"`
}

// Cache configures the flat JSON file cache.
type Cache struct {
	Dir string `yaml:"dir" validate:"required"`
}

// Ingestion toggles optional passes of the daily workflow.
type Ingestion struct {
	FetchNews bool `yaml:"fetch_news"`
}

// Schedule holds cron expressions (with seconds) and their time zone.
type Schedule struct {
	Timezone      string `yaml:"timezone" validate:"required"`
	IngestionCron string `yaml:"ingestion_cron" validate:"required"`
	SummaryCron   string `yaml:"summary_cron" validate:"required"`
}

// Route sends task names matching Pattern to Queue.
type Route struct {
	Pattern string `yaml:"pattern" validate:"required"`
	Queue   string `yaml:"queue" validate:"required"`
}

// Queue configures the task broker, result backend and workers.
type Queue struct {
	BrokerURL          string        `yaml:"broker_url" validate:"required"`
	ResultBackend      string        `yaml:"result_backend" validate:"required"`
	Serializer         string        `yaml:"serializer" validate:"eq=json"`
	DefaultQueue       string        `yaml:"default_queue" validate:"required"`
	Routes             []Route       `yaml:"routes" validate:"dive"`
	Concurrency        int           `yaml:"concurrency" validate:"min=1"`
	PrefetchMultiplier int           `yaml:"prefetch_multiplier" validate:"eq=1"`
	ResultExpires      time.Duration `yaml:"result_expires"`
	AlwaysEager        bool          `yaml:"always_eager"`
}

// Server configures the read API listener.
type Server struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port" validate:"min=1,max=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SMTP configures the email notification channel.
type SMTP struct {
	Server         string `yaml:"server"`
	Port           int    `yaml:"port" validate:"min=0,max=65535"`
	SenderEmail    string `yaml:"sender_email" validate:"omitempty,email"`
	SenderPassword string `yaml:"sender_password"`
	RecipientEmail string `yaml:"recipient_email" validate:"omitempty,email"`
}

// Enabled reports whether enough is set to send mail.
func (s SMTP) Enabled() bool {
	return s.Server != "" && s.SenderEmail != "" && s.RecipientEmail != ""
}

// Telegram configures the Telegram notification channel.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Enabled reports whether both token and chat are set.
func (t Telegram) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// History selects where task executions and errors are kept.
type History struct {
	Backend     string `yaml:"backend" validate:"oneof=sqlite postgres json none"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	LogDir      string `yaml:"log_dir"`
}

// Provider durations where zero is meaningful: a zero timeout leaves the
// transport default and a zero pacing disables the pause between calls.
const (
	DefaultTimeout = 30 * time.Second
	DefaultPacing  = 100 * time.Millisecond
)

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	// Seeded before decoding so an explicit 0s in the file is kept.
	cfg := &Config{Provider: Provider{Timeout: DefaultTimeout, Pacing: DefaultPacing}}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("POLYGON_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("WATCHLIST"); v != "" {
		cfg.Watchlist = SplitTickers(v)
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Queue.BrokerURL = v
		cfg.Queue.ResultBackend = v
	}
	if v := os.Getenv("SMTP_SERVER"); v != "" {
		cfg.SMTP.Server = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.SMTP.Port = port
		}
	}
	if v := os.Getenv("SENDER_EMAIL"); v != "" {
		cfg.SMTP.SenderEmail = v
	}
	if v := os.Getenv("SENDER_PASSWORD"); v != "" {
		cfg.SMTP.SenderPassword = v
	}
	if v := os.Getenv("RECIPIENT_EMAIL"); v != "" {
		cfg.SMTP.RecipientEmail = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.History.PostgresDSN = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = "https://api.polygon.io"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "data"
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = append([]string(nil), DefaultWatchlist...)
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "America/New_York"
	}
	if cfg.Schedule.IngestionCron == "" {
		cfg.Schedule.IngestionCron = "0 0 18 * * 1-5"
	}
	if cfg.Schedule.SummaryCron == "" {
		cfg.Schedule.SummaryCron = "0 0 19 * * 1-5"
	}
	if cfg.Queue.BrokerURL == "" {
		cfg.Queue.BrokerURL = "redis://localhost:6379/0"
	}
	if cfg.Queue.ResultBackend == "" {
		cfg.Queue.ResultBackend = cfg.Queue.BrokerURL
	}
	if cfg.Queue.Serializer == "" {
		cfg.Queue.Serializer = "json"
	}
	if cfg.Queue.DefaultQueue == "" {
		cfg.Queue.DefaultQueue = "default"
	}
	if len(cfg.Queue.Routes) == 0 {
		cfg.Queue.Routes = []Route{
			{Pattern: "ingest.*", Queue: "data_ingestion"},
			{Pattern: "*", Queue: "default"},
		}
	}
	if cfg.Queue.Concurrency == 0 {
		cfg.Queue.Concurrency = 1
	}
	if cfg.Queue.PrefetchMultiplier == 0 {
		cfg.Queue.PrefetchMultiplier = 1
	}
	if cfg.Queue.ResultExpires == 0 {
		cfg.Queue.ResultExpires = time.Hour
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.SMTP.Server == "" {
		cfg.SMTP.Server = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "sqlite"
	}
	if cfg.History.SQLitePath == "" {
		cfg.History.SQLitePath = "data/task_history.db"
	}
	if cfg.History.LogDir == "" {
		cfg.History.LogDir = "logs"
	}
}

// Validate checks that all required fields are set and cron expressions parse.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.IngestionCron); err != nil {
		return fmt.Errorf("schedule.ingestion_cron: %w", err)
	}
	if _, err := parser.Parse(c.Schedule.SummaryCron); err != nil {
		return fmt.Errorf("schedule.summary_cron: %w", err)
	}
	if c.History.Backend == "postgres" && c.History.PostgresDSN == "" {
		return fmt.Errorf("history.postgres_dsn is required for the postgres backend")
	}
	return nil
}

// ValidateServe checks only what the read API needs: the cache directory,
// the watchlist, the listen port and the time zone.
func (c *Config) ValidateServe() error {
	if err := validator.New().StructPartial(c, "Cache.Dir", "Watchlist", "Server.Port"); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	return nil
}

// Location returns the configured schedule time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Addr is the read API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SplitTickers parses a comma separated ticker list, upper-casing entries.
func SplitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
