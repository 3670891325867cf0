package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// newsLimit is the single page size requested from the news endpoint.
const newsLimit = 50

// PolygonFetcher implements Fetcher using the Polygon REST API.
type PolygonFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewPolygonFetcher creates a new fetcher with optional proxy support.
// A zero timeout leaves the transport default in place.
func NewPolygonFetcher(baseURL, apiKey, proxyURL string, timeout time.Duration) *PolygonFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &PolygonFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

func (f *PolygonFetcher) Name() string { return "polygon" }

// FetchDailyBars requests the single-day aggregate for ticker on date.
func (f *PolygonFetcher) FetchDailyBars(ctx context.Context, ticker, date string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s",
		f.BaseURL, url.PathEscape(ticker), date, date)
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch daily bars %s: %w", ticker, err)
	}
	return body, nil
}

// FetchTickerDetails requests reference metadata for ticker.
func (f *PolygonFetcher) FetchTickerDetails(ctx context.Context, ticker string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v3/reference/tickers/%s", f.BaseURL, url.PathEscape(ticker))
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch ticker details %s: %w", ticker, err)
	}
	return body, nil
}

// FetchNews requests one page of articles published on date.
func (f *PolygonFetcher) FetchNews(ctx context.Context, ticker, date string) ([]byte, error) {
	q := url.Values{}
	q.Set("ticker", ticker)
	q.Set("published_utc.gte", date+"T00:00:00Z")
	q.Set("published_utc.lte", date+"T23:59:59Z")
	q.Set("limit", fmt.Sprint(newsLimit))
	endpoint := fmt.Sprintf("%s/v2/reference/news?%s", f.BaseURL, q.Encode())
	body, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch news %s: %w", ticker, err)
	}
	return body, nil
}

func (f *PolygonFetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
	}
	if len(bytes.TrimSpace(body)) == 0 || !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	return body, nil
}
