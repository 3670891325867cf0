package model

import "time"

// Task statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ItemResult is the outcome of a single fetch within an ingestion run.
type ItemResult struct {
	Kind   Kind   `json:"kind"`
	Ticker string `json:"ticker"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	File   string `json:"file,omitempty"`
}

// TaskResult records one ingestion run.
//
// Status is always "success" and TickersProcessed always equals the watchlist
// length, whatever the individual fetches did. Failed and Items carry the
// per-fetch outcome.
type TaskResult struct {
	Status           string       `json:"status"`
	Date             string       `json:"date"`
	StartDate        string       `json:"start_date,omitempty"`
	EndDate          string       `json:"end_date,omitempty"`
	DaysProcessed    int          `json:"days_processed,omitempty"`
	TickersProcessed int          `json:"tickers_processed"`
	Failed           int          `json:"failed"`
	StartTime        time.Time    `json:"start_time"`
	EndTime          time.Time    `json:"end_time"`
	DurationSeconds  float64      `json:"duration_seconds"`
	Items            []ItemResult `json:"items,omitempty"`
}

// Partial reports whether any item of the run failed.
func (r *TaskResult) Partial() bool {
	return r.Failed > 0
}

// Execution is a successful task run kept for the daily summary.
type Execution struct {
	TaskName  string     `json:"task_name"`
	TaskID    string     `json:"task_id"`
	Timestamp time.Time  `json:"timestamp"`
	Result    TaskResult `json:"result"`
}

// TaskError is a failed task run kept for the daily summary.
type TaskError struct {
	TaskName  string    `json:"task_name"`
	TaskID    string    `json:"task_id"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}
