package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrUnknownTask is returned for names without a registered handler.
var ErrUnknownTask = errors.New("queue: unknown task")

// Handler runs a task. The returned value is stored as the JSON result.
type Handler func(ctx context.Context, t *Task) (interface{}, error)

// Hooks observe every task execution. Nil hooks are skipped.
type Hooks struct {
	OnStart   func(t *Task)
	OnSuccess func(t *Task, result interface{}, elapsed time.Duration)
	OnFailure func(t *Task, err error)
}

// App holds the task registry and sends tasks to the broker, or runs them
// inline when Eager is set.
type App struct {
	Broker Broker
	Router Router
	Eager  bool
	Hooks  Hooks

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewApp creates an App.
func NewApp(broker Broker, router Router, eager bool) *App {
	return &App{
		Broker:   broker,
		Router:   router,
		Eager:    eager,
		handlers: map[string]Handler{},
	}
}

// Register binds name to h, replacing any previous handler.
func (a *App) Register(name string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = h
}

// Names lists registered task names in sorted order.
func (a *App) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.handlers))
	for n := range a.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (a *App) handler(name string) (Handler, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.handlers[name]
	return h, ok
}

// Send routes and enqueues the task. In eager mode it runs the task inline
// and returns the handler's error.
func (a *App) Send(ctx context.Context, name string, args interface{}) (*Task, error) {
	if _, ok := a.handler(name); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	t, err := NewTask(name, a.Router.Queue(name), args)
	if err != nil {
		return nil, err
	}

	if a.Eager {
		_, err := a.Execute(ctx, t)
		return t, err
	}
	if err := a.Broker.Enqueue(ctx, t); err != nil {
		return nil, err
	}
	log.Printf("[INFO] task %s[%s] sent to queue %s", t.Name, t.ID, t.Queue)
	return t, nil
}

// Execute runs t through its handler and hooks, stores the result, and
// returns it together with the handler error.
func (a *App) Execute(ctx context.Context, t *Task) (*Result, error) {
	res := &Result{TaskID: t.ID, Name: t.Name}

	h, ok := a.handler(t.Name)
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
		res.Status, res.Error, res.FinishedAt = StateFailure, err.Error(), time.Now().UTC()
		a.store(ctx, res)
		return res, err
	}

	if a.Hooks.OnStart != nil {
		a.Hooks.OnStart(t)
	}
	start := time.Now()
	value, err := run(ctx, h, t)
	elapsed := time.Since(start)
	res.FinishedAt = time.Now().UTC()

	if err != nil {
		log.Printf("[ERROR] task %s[%s] failed after %v: %v", t.Name, t.ID, elapsed, err)
		res.Status, res.Error = StateFailure, err.Error()
		if a.Hooks.OnFailure != nil {
			a.Hooks.OnFailure(t, err)
		}
		a.store(ctx, res)
		return res, err
	}

	log.Printf("[INFO] task %s[%s] succeeded in %v", t.Name, t.ID, elapsed)
	res.Status = StateSuccess
	if value != nil {
		raw, merr := json.Marshal(value)
		if merr != nil {
			log.Printf("[WARN] encode result of %s[%s]: %v", t.Name, t.ID, merr)
		} else {
			res.Result = raw
		}
	}
	if a.Hooks.OnSuccess != nil {
		a.Hooks.OnSuccess(t, value, elapsed)
	}
	a.store(ctx, res)
	return res, nil
}

func (a *App) store(ctx context.Context, res *Result) {
	if a.Broker == nil {
		return
	}
	if err := a.Broker.StoreResult(ctx, res); err != nil {
		log.Printf("[WARN] store result of %s: %v", res.TaskID, err)
	}
}

// run calls h, turning a panic into an error.
func run(ctx context.Context, h Handler, t *Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, t)
}
