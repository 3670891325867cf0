package cache

import (
	"fmt"
	"strings"

	"TradingAssistant/internal/model"
)

// Key identifies one cache file. Date is empty for kinds without a date.
type Key struct {
	Kind   model.Kind
	Ticker string
	Date   string
}

// BarsKey is the key for a ticker's daily bars on date.
func BarsKey(ticker, date string) Key {
	return Key{Kind: model.KindDailyBars, Ticker: ticker, Date: date}
}

// DetailsKey is the key for a ticker's metadata.
func DetailsKey(ticker string) Key {
	return Key{Kind: model.KindDetails, Ticker: ticker}
}

// NewsKey is the key for a ticker's news batch on date.
func NewsKey(ticker, date string) Key {
	return Key{Kind: model.KindNews, Ticker: ticker, Date: date}
}

// FileName renders the on-disk name:
//
//	{ticker}_daily_bars_{YYYY-MM-DD}.json
//	{ticker}_details.json
//	{ticker}_news_{YYYY-MM-DD}.json
func (k Key) FileName() string {
	if !k.Kind.Dated() {
		return fmt.Sprintf("%s_%s.json", k.Ticker, k.Kind)
	}
	return fmt.Sprintf("%s_%s_%s.json", k.Ticker, k.Kind, k.Date)
}

// Validate rejects keys that cannot be embedded in a file name or glob.
func (k Key) Validate() error {
	if err := validTicker(k.Ticker); err != nil {
		return err
	}
	switch k.Kind {
	case model.KindDailyBars, model.KindNews:
		if k.Date == "" {
			return fmt.Errorf("%s key for %s needs a date", k.Kind, k.Ticker)
		}
	case model.KindDetails:
	default:
		return fmt.Errorf("unknown kind %q", k.Kind)
	}
	return nil
}

func validTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("empty ticker")
	}
	if strings.ContainsAny(ticker, `/\*?[]`) {
		return fmt.Errorf("invalid ticker %q", ticker)
	}
	return nil
}

// pattern is the glob matching every file of kind for ticker.
func pattern(ticker string, kind model.Kind) string {
	if !kind.Dated() {
		return fmt.Sprintf("%s_%s.json", ticker, kind)
	}
	return fmt.Sprintf("%s_%s_*.json", ticker, kind)
}
