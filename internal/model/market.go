package model

import (
	"encoding/json"
	"time"
)

// Kind is the category of data fetched from the provider.
type Kind string

const (
	KindDailyBars Kind = "daily_bars"
	KindDetails   Kind = "details"
	KindNews      Kind = "news"
)

// Dated reports whether cache files of this kind carry a date component.
func (k Kind) Dated() bool {
	return k != KindDetails
}

// DateLayout is the calendar date format used in file names and requests.
const DateLayout = "2006-01-02"

// DailyBar is one OHLCV observation for a ticker on a calendar date.
// Change fields are never derived from earlier bars and stay zero.
type DailyBar struct {
	Ticker        string  `json:"ticker"`
	Open          float64 `json:"open"`
	Close         float64 `json:"close"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        int64   `json:"volume"`
	Date          string  `json:"date"`
	Timestamp     int64   `json:"-"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
}

// ProviderBar is the aggregate bar shape inside a provider envelope.
type ProviderBar struct {
	Open         float64 `json:"o"`
	Close        float64 `json:"c"`
	High         float64 `json:"h"`
	Low          float64 `json:"l"`
	Volume       float64 `json:"v"`
	Timestamp    int64   `json:"t"`
	VWAP         float64 `json:"vw,omitempty"`
	Transactions int64   `json:"n,omitempty"`
}

// ToDailyBar converts a provider bar, rendering the date in loc.
func (p ProviderBar) ToDailyBar(ticker string, loc *time.Location) DailyBar {
	if loc == nil {
		loc = time.UTC
	}
	return DailyBar{
		Ticker:    ticker,
		Open:      p.Open,
		Close:     p.Close,
		High:      p.High,
		Low:       p.Low,
		Volume:    int64(p.Volume),
		Timestamp: p.Timestamp,
		Date:      time.UnixMilli(p.Timestamp).In(loc).Format(DateLayout),
	}
}

// TickerDetails is descriptive metadata for a ticker.
type TickerDetails struct {
	Ticker      string  `json:"ticker"`
	Name        string  `json:"name"`
	MarketCap   float64 `json:"market_cap"`
	Description string  `json:"description"`
	Sector      string  `json:"sector"`
	Employees   int64   `json:"employees"`
	Website     string  `json:"website"`
}

// ProviderDetails is the reference-ticker shape inside a provider envelope.
type ProviderDetails struct {
	Name           string  `json:"name"`
	MarketCap      float64 `json:"market_cap"`
	Description    string  `json:"description"`
	SICDescription string  `json:"sic_description"`
	TotalEmployees float64 `json:"total_employees"`
	HomepageURL    string  `json:"homepage_url"`
}

// ToTickerDetails converts provider metadata, defaulting the name to the ticker.
func (p ProviderDetails) ToTickerDetails(ticker string) TickerDetails {
	name := p.Name
	if name == "" {
		name = ticker
	}
	return TickerDetails{
		Ticker:      ticker,
		Name:        name,
		MarketCap:   p.MarketCap,
		Description: p.Description,
		Sector:      p.SICDescription,
		Employees:   int64(p.TotalEmployees),
		Website:     p.HomepageURL,
	}
}

// NewsBatch is a provider news bundle. Articles are kept opaque.
type NewsBatch struct {
	Ticker   string            `json:"ticker"`
	Date     string            `json:"date"`
	Articles []json.RawMessage `json:"results"`
}

// Count returns the number of articles in the batch.
func (n NewsBatch) Count() int { return len(n.Articles) }

// ChartPoint is a single entry of the chart endpoint.
type ChartPoint struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Volume int64   `json:"volume"`
}

// Point projects a bar onto the chart shape.
func (b DailyBar) Point() ChartPoint {
	return ChartPoint{
		Date:   b.Date,
		Open:   b.Open,
		Close:  b.Close,
		High:   b.High,
		Low:    b.Low,
		Volume: b.Volume,
	}
}
