package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Task states stored in the result backend.
const (
	StateSuccess = "SUCCESS"
	StateFailure = "FAILURE"
)

var (
	// ErrNoTask is returned by Dequeue when the timeout expires first.
	ErrNoTask = errors.New("queue: no task available")
	// ErrNoResult is returned when the backend holds no result for an ID.
	ErrNoResult = errors.New("queue: result not found")
)

// Result is the stored outcome of a task.
type Result struct {
	TaskID     string          `json:"task_id"`
	Name       string          `json:"name"`
	Status     string          `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Broker moves tasks between producers and workers and keeps their results.
type Broker interface {
	Enqueue(ctx context.Context, t *Task) error
	// Dequeue blocks up to timeout for a task from any of queues, earlier
	// queues first.
	Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error)
	StoreResult(ctx context.Context, r *Result) error
	Result(ctx context.Context, id string) (*Result, error)
	Close() error
}
