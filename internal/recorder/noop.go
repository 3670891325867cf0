package recorder

import (
	"time"

	"TradingAssistant/internal/model"
)

// NoopRecorder discards history; used when history.backend is "none".
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordExecution(_ model.Execution) error { return nil }
func (n *NoopRecorder) RecordError(_ model.TaskError) error     { return nil }
func (n *NoopRecorder) Close() error                            { return nil }

func (n *NoopRecorder) Executions(_ time.Time) ([]model.Execution, error) { return nil, nil }
func (n *NoopRecorder) Errors(_ time.Time) ([]model.TaskError, error)     { return nil, nil }
