package recorder

import (
	"fmt"
	"time"

	"TradingAssistant/internal/config"
	"TradingAssistant/internal/model"
)

// Recorder keeps the append-only history of task executions and errors that
// the daily summary reads back.
type Recorder interface {
	RecordExecution(exec model.Execution) error
	RecordError(taskErr model.TaskError) error
	Executions(since time.Time) ([]model.Execution, error)
	Errors(since time.Time) ([]model.TaskError, error)
	Close() error
}

// New opens the recorder selected by cfg.Backend.
func New(cfg config.History) (Recorder, error) {
	var (
		r   Recorder
		err error
	)
	switch cfg.Backend {
	case "sqlite":
		r, err = NewSQLiteRecorder(cfg.SQLitePath)
	case "postgres":
		r, err = NewPostgresRecorder(cfg.PostgresDSN)
	case "json":
		r, err = NewJSONRecorder(cfg.LogDir)
	case "none", "":
		r = NewNoopRecorder()
	default:
		err = fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
