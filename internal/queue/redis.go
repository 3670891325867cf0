package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queuePrefix  = "queue:"
	resultPrefix = "result:"
)

// RedisBroker keeps each queue as a Redis list and results as expiring keys.
type RedisBroker struct {
	tasks   *redis.Client
	results *redis.Client
	expires time.Duration
}

// NewRedisBroker connects to brokerURL for tasks and backendURL for results.
// Both may point at the same server.
func NewRedisBroker(brokerURL, backendURL string, expires time.Duration) (*RedisBroker, error) {
	opt, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	b := &RedisBroker{tasks: redis.NewClient(opt), expires: expires}

	if backendURL == "" || backendURL == brokerURL {
		b.results = b.tasks
	} else {
		ropt, err := redis.ParseURL(backendURL)
		if err != nil {
			b.tasks.Close()
			return nil, fmt.Errorf("parse result backend url: %w", err)
		}
		b.results = redis.NewClient(ropt)
	}
	return b, nil
}

// Ping checks both connections.
func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.tasks.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping broker: %w", err)
	}
	if err := b.results.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping result backend: %w", err)
	}
	return nil
}

func (b *RedisBroker) Enqueue(ctx context.Context, t *Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := b.tasks.LPush(ctx, queuePrefix+t.Queue, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", t.Name, err)
	}
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context, queues []string, timeout time.Duration) (*Task, error) {
	keys := make([]string, len(queues))
	for i, q := range queues {
		keys[i] = queuePrefix + q
	}
	res, err := b.tasks.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	// res is [key, value].
	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		log.Printf("[ERROR] drop undecodable task from %s: %v", res[0], err)
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}

func (b *RedisBroker) StoreResult(ctx context.Context, r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := b.results.Set(ctx, resultPrefix+r.TaskID, data, b.expires).Err(); err != nil {
		return fmt.Errorf("store result %s: %w", r.TaskID, err)
	}
	return nil
}

func (b *RedisBroker) Result(ctx context.Context, id string) (*Result, error) {
	data, err := b.results.Get(ctx, resultPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", id, err)
	}
	return &r, nil
}

func (b *RedisBroker) Close() error {
	err := b.tasks.Close()
	if b.results != b.tasks {
		if rerr := b.results.Close(); err == nil {
			err = rerr
		}
	}
	return err
}
