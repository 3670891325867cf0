package collector

import "context"

// Fetcher defines the interface for fetching market data. Each method returns
// the provider's raw JSON envelope.
type Fetcher interface {
	FetchDailyBars(ctx context.Context, ticker, date string) ([]byte, error)
	FetchTickerDetails(ctx context.Context, ticker string) ([]byte, error)
	FetchNews(ctx context.Context, ticker, date string) ([]byte, error)
	Name() string
}
