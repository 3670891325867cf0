// Package api serves the read-only HTTP view over the file cache.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"TradingAssistant/internal/cache"
	"TradingAssistant/internal/model"
)

// chartLimit is the most bars the chart endpoint returns.
const chartLimit = 30

// DefaultPeriod is used when the chart request has no period.
const DefaultPeriod = "1m"

// Periods accepted by the chart endpoint. Every period currently returns
// the same newest-first window of bars.
var Periods = map[string]bool{"5d": true, "1m": true, "3m": true, "6m": true, "1y": true}

// Reader is the part of the cache the API reads.
type Reader interface {
	LatestBar(ticker string) (*model.DailyBar, bool)
	BarRange(ticker string, limit int) ([]model.DailyBar, error)
	Details(ticker string) (*model.TickerDetails, error)
}

// WatchlistResponse is the body of GET /api/watchlist.
type WatchlistResponse struct {
	Stocks      []model.DailyBar `json:"stocks"`
	LastUpdated string           `json:"last_updated"`
}

// ChartResponse is the body of GET /api/stock/{ticker}/chart.
type ChartResponse struct {
	Ticker string             `json:"ticker"`
	Period string             `json:"period"`
	Data   []model.ChartPoint `json:"data"`
}

// Ack acknowledges a watchlist edit.
type Ack struct {
	Message string `json:"message"`
	Ticker  string `json:"ticker"`
}

type addRequest struct {
	Ticker string `validate:"required,excludesall=/\\*?[]"`
}

// Server exposes the cache over HTTP. Every request reads from disk.
type Server struct {
	Cache          Reader
	Watchlist      []string
	AllowedOrigins []string
	Now            func() time.Time

	router   *mux.Router
	validate *validator.Validate
}

// NewServer creates a Server and registers its routes.
func NewServer(reader Reader, watchlist, allowedOrigins []string) *Server {
	s := &Server{
		Cache:          reader,
		Watchlist:      watchlist,
		AllowedOrigins: allowedOrigins,
		Now:            time.Now,
		router:         mux.NewRouter(),
		validate:       validator.New(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleRoot).Methods("GET")
	s.router.HandleFunc("/api/watchlist", s.handleWatchlist).Methods("GET")
	s.router.HandleFunc("/api/watchlist/add", s.handleAdd).Methods("POST")
	s.router.HandleFunc("/api/watchlist/{ticker}", s.handleRemove).Methods("DELETE")
	s.router.HandleFunc("/api/stock/{ticker}", s.handleDetails).Methods("GET")
	s.router.HandleFunc("/api/stock/{ticker}/chart", s.handleChart).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[INFO] API server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("[INFO] shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Trading Assistant API"})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	stocks := make([]model.DailyBar, 0, len(s.Watchlist))
	for _, ticker := range s.Watchlist {
		bar, ok := s.Cache.LatestBar(ticker)
		if !ok {
			continue
		}
		stocks = append(stocks, *bar)
	}
	writeJSON(w, http.StatusOK, WatchlistResponse{
		Stocks:      stocks,
		LastUpdated: s.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	details, err := s.Cache.Details(ticker)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Stock details not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading stock details: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	period := r.URL.Query().Get("period")
	if period == "" {
		period = DefaultPeriod
	}
	if !Periods[period] {
		log.Printf("[WARN] unknown chart period %q for %s, serving default window", period, ticker)
	}

	bars, err := s.Cache.BarRange(ticker, chartLimit)
	if errors.Is(err, cache.ErrNotFound) {
		writeError(w, http.StatusNotFound, "No chart data found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error reading chart data: %v", err))
		return
	}

	points := make([]model.ChartPoint, 0, len(bars))
	for _, b := range bars {
		points = append(points, b.Point())
	}
	writeJSON(w, http.StatusOK, ChartResponse{Ticker: ticker, Period: period, Data: points})
}

// handleAdd acknowledges without changing the configured watchlist.
func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	req := addRequest{Ticker: r.URL.Query().Get("ticker")}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid ticker: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, Ack{
		Message: fmt.Sprintf("Added %s to watchlist", req.Ticker),
		Ticker:  req.Ticker,
	})
}

// handleRemove acknowledges without changing the configured watchlist.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	writeJSON(w, http.StatusOK, Ack{
		Message: fmt.Sprintf("Removed %s from watchlist", ticker),
		Ticker:  ticker,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ERROR] encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
