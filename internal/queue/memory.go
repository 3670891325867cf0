package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker is an in-process Broker. Results never expire.
type MemoryBroker struct {
	mu      sync.Mutex
	queues  map[string][]*Task
	results map[string]*Result
	notify  chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:  map[string][]*Task{},
		results: map[string]*Result{},
		notify:  make(chan struct{}, 1),
	}
}

func (b *MemoryBroker) Enqueue(_ context.Context, t *Task) error {
	b.mu.Lock()
	b.queues[t.Queue] = append(b.queues[t.Queue], t)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if t := b.pop(queues); t != nil {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrNoTask
		case <-b.notify:
		}
	}
}

func (b *MemoryBroker) pop(queues []string) *Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range queues {
		if pending := b.queues[q]; len(pending) > 0 {
			b.queues[q] = pending[1:]
			if len(pending) > 1 {
				// Wake another waiter for the remaining tasks.
				select {
				case b.notify <- struct{}{}:
				default:
				}
			}
			return pending[0]
		}
	}
	return nil
}

// Len returns the number of tasks waiting on queue.
func (b *MemoryBroker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func (b *MemoryBroker) StoreResult(_ context.Context, r *Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *r
	b.results[r.TaskID] = &cp
	return nil
}

func (b *MemoryBroker) Result(_ context.Context, id string) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.results[id]
	if !ok {
		return nil, ErrNoResult
	}
	cp := *r
	return &cp, nil
}

func (b *MemoryBroker) Close() error { return nil }
