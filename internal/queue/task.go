// Package queue is a small task queue: named handlers, glob routing to
// queues, a Redis (or in-memory) broker with a result backend, and a worker
// pool that consumes queues concurrently.
package queue

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
)

// Task is one unit of work on the wire. Args is the JSON-encoded argument
// object handed to the registered handler.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Queue      string          `json:"queue"`
	Args       json.RawMessage `json:"args,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NewTask builds a task with a fresh ID, encoding args as JSON.
func NewTask(name, queue string, args interface{}) (*Task, error) {
	t := &Task{
		ID:         uuid.NewString(),
		Name:       name,
		Queue:      queue,
		EnqueuedAt: time.Now().UTC(),
	}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode args for %s: %w", name, err)
		}
		t.Args = raw
	}
	return t, nil
}

// Bind decodes the task arguments into v. Empty arguments leave v untouched.
func (t *Task) Bind(v interface{}) error {
	if len(t.Args) == 0 || string(t.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(t.Args, v); err != nil {
		return fmt.Errorf("decode args for %s: %w", t.Name, err)
	}
	return nil
}

// Route maps task names matching Pattern (path.Match syntax) to Queue.
type Route struct {
	Pattern string
	Queue   string
}

// Router picks the queue for a task name. The first matching route wins;
// Default is used when none match.
type Router struct {
	Routes  []Route
	Default string
}

// Queue returns the queue for name.
func (r Router) Queue(name string) string {
	for _, route := range r.Routes {
		if ok, err := path.Match(route.Pattern, name); err == nil && ok {
			return route.Queue
		}
	}
	return r.Default
}

// Queues lists every distinct queue the router can produce, Default included.
func (r Router) Queues() []string {
	seen := map[string]bool{}
	var out []string
	for _, q := range append(routeQueues(r.Routes), r.Default) {
		if q != "" && !seen[q] {
			seen[q] = true
			out = append(out, q)
		}
	}
	return out
}

func routeQueues(routes []Route) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Queue)
	}
	return out
}
