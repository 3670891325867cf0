package notifier

import (
	"errors"
	"fmt"
	"time"

	"TradingAssistant/internal/model"
)

// Notifier reports task lifecycle events. Every call is a single delivery
// attempt; callers log the returned error and carry on.
type Notifier interface {
	TaskStarted(name, id string) error
	TaskCompleted(name, id string, result *model.TaskResult, duration time.Duration) error
	TaskFailed(name, id, errMsg string) error
	DailySummary(executions []model.Execution, errs []model.TaskError) error
}

// Channel delivers a rendered message over one transport.
type Channel interface {
	Name() string
	Deliver(msg Message) error
}

// Multi formats each event once and fans it out to every channel.
type Multi struct {
	Format   Formatter
	Channels []Channel
}

// New returns a Multi over channels, or a NoopNotifier when there are none.
func New(format Formatter, channels ...Channel) Notifier {
	if len(channels) == 0 {
		return NoopNotifier{}
	}
	return &Multi{Format: format, Channels: channels}
}

func (m *Multi) TaskStarted(name, id string) error {
	return m.deliver(m.Format.TaskStarted(name, id))
}

func (m *Multi) TaskCompleted(name, id string, result *model.TaskResult, duration time.Duration) error {
	return m.deliver(m.Format.TaskCompleted(name, id, result, duration))
}

func (m *Multi) TaskFailed(name, id, errMsg string) error {
	return m.deliver(m.Format.TaskFailed(name, id, errMsg))
}

func (m *Multi) DailySummary(executions []model.Execution, errs []model.TaskError) error {
	return m.deliver(m.Format.DailySummary(executions, errs))
}

// deliver tries every channel even after one fails.
func (m *Multi) deliver(msg Message) error {
	var errs []error
	for _, ch := range m.Channels {
		if err := ch.Deliver(msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// NoopNotifier drops every event; used when no channel is configured.
type NoopNotifier struct{}

func (NoopNotifier) TaskStarted(_, _ string) error { return nil }
func (NoopNotifier) TaskFailed(_, _, _ string) error { return nil }

func (NoopNotifier) TaskCompleted(_, _ string, _ *model.TaskResult, _ time.Duration) error {
	return nil
}

func (NoopNotifier) DailySummary(_ []model.Execution, _ []model.TaskError) error { return nil }
