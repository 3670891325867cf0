// Package cache keeps provider responses as one JSON file per
// (kind, ticker, date) in a flat directory and reads "latest" state back.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"TradingAssistant/internal/model"
)

// FetchedAtField is the top-level envelope field stamped at write time.
const FetchedAtField = "fetched_at"

// ErrNotFound is returned when no cache file matches a query.
var ErrNotFound = errors.New("cache: not found")

var errNoResults = errors.New("no results")

// Store reads and writes cache files under Dir.
type Store struct {
	Dir      string
	Location *time.Location   // used to render bar dates
	Now      func() time.Time // write timestamp source
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{Dir: dir, Location: loc, Now: time.Now}
}

// Entry is one cache file found by List.
type Entry struct {
	Path      string
	FetchedAt time.Time // zero when the file carries no stamp
	ModTime   time.Time
}

// WrittenAt is the time used to rank the entry.
func (e Entry) WrittenAt() time.Time {
	if !e.FetchedAt.IsZero() {
		return e.FetchedAt
	}
	return e.ModTime
}

// Write stores payload, a provider envelope, under key and returns the path.
// The file is rewritten in place if it already exists.
func (s *Store) Write(key Key, payload []byte) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if envelope == nil {
		return "", fmt.Errorf("decode envelope: not an object")
	}
	stamp, err := json.Marshal(s.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}
	envelope[FetchedAtField] = stamp

	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	path := filepath.Join(s.Dir, key.FileName())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// List returns every file of kind for ticker, newest first.
func (s *Store) List(ticker string, kind model.Kind) ([]Entry, error) {
	if err := validTicker(ticker); err != nil {
		return nil, err
	}
	paths, err := filepath.Glob(filepath.Join(s.Dir, pattern(ticker, kind)))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:      p,
			FetchedAt: readStamp(p),
			ModTime:   info.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, tj := entries[i].WrittenAt(), entries[j].WrittenAt()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].Path > entries[j].Path
	})
	return entries, nil
}

// ReadLatest returns the first result of the newest file of kind for ticker.
// A missing file, an empty result list and an unparsable file all yield false.
func (s *Store) ReadLatest(ticker string, kind model.Kind) (json.RawMessage, bool) {
	entries, err := s.List(ticker, kind)
	if err != nil || len(entries) == 0 {
		return nil, false
	}
	result, err := firstResult(entries[0].Path)
	if err != nil {
		if !errors.Is(err, errNoResults) {
			log.Printf("[WARN] read %s: %v", entries[0].Path, err)
		}
		return nil, false
	}
	return result, true
}

// ReadRange returns the first result of up to limit newest files. Files that
// cannot be parsed or hold no results are skipped.
func (s *Store) ReadRange(ticker string, kind model.Kind, limit int) ([]json.RawMessage, error) {
	entries, err := s.List(ticker, kind)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		result, err := firstResult(e.Path)
		if err != nil {
			log.Printf("[WARN] skip %s: %v", e.Path, err)
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

// LatestBar returns the newest cached daily bar for ticker.
func (s *Store) LatestBar(ticker string) (*model.DailyBar, bool) {
	raw, ok := s.ReadLatest(ticker, model.KindDailyBars)
	if !ok {
		return nil, false
	}
	var pb model.ProviderBar
	if err := json.Unmarshal(raw, &pb); err != nil {
		log.Printf("[WARN] decode latest bar for %s: %v", ticker, err)
		return nil, false
	}
	bar := pb.ToDailyBar(ticker, s.Location)
	return &bar, true
}

// BarRange returns up to limit bars for ticker, newest file first.
func (s *Store) BarRange(ticker string, limit int) ([]model.DailyBar, error) {
	raws, err := s.ReadRange(ticker, model.KindDailyBars, limit)
	if err != nil {
		return nil, err
	}
	bars := make([]model.DailyBar, 0, len(raws))
	for _, raw := range raws {
		var pb model.ProviderBar
		if err := json.Unmarshal(raw, &pb); err != nil {
			log.Printf("[WARN] decode bar for %s: %v", ticker, err)
			continue
		}
		bars = append(bars, pb.ToDailyBar(ticker, s.Location))
	}
	return bars, nil
}

// Details returns the cached metadata for ticker, or ErrNotFound.
func (s *Store) Details(ticker string) (*model.TickerDetails, error) {
	key := DetailsKey(ticker)
	if err := key.Validate(); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, key.FileName()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read details: %w", err)
	}
	var envelope struct {
		Results model.ProviderDetails `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	details := envelope.Results.ToTickerDetails(ticker)
	return &details, nil
}

// News returns the cached news batch for ticker on date, or ErrNotFound.
func (s *Store) News(ticker, date string) (*model.NewsBatch, error) {
	key := NewsKey(ticker, date)
	if err := key.Validate(); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, key.FileName()))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read news: %w", err)
	}
	batch := &model.NewsBatch{Ticker: ticker, Date: date}
	if err := json.Unmarshal(data, batch); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	batch.Ticker, batch.Date = ticker, date
	return batch, nil
}

func readStamp(path string) time.Time {
	data, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}
	}
	var head struct {
		FetchedAt string `json:"fetched_at"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, head.FetchedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// firstResult extracts results[0] from an envelope. An object-valued
// results field (ticker details) is returned whole.
func firstResult(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(envelope.Results)
	if len(raw) == 0 {
		return nil, errNoResults
	}
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		if len(list) == 0 {
			return nil, errNoResults
		}
		return list[0], nil
	case '{':
		return raw, nil
	default:
		return nil, errNoResults
	}
}
