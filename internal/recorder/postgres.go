package recorder

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"TradingAssistant/internal/model"
)

// PostgresRecorder persists task history to PostgreSQL.
type PostgresRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

type executionRow struct {
	Timestamp time.Time `db:"timestamp"`
	TaskName  string    `db:"task_name"`
	TaskID    string    `db:"task_id"`
	Result    []byte    `db:"result"`
}

type errorRow struct {
	Timestamp time.Time `db:"timestamp"`
	TaskName  string    `db:"task_name"`
	TaskID    string    `db:"task_id"`
	Error     string    `db:"error"`
}

// NewPostgresRecorder connects to dsn and creates the history tables.
func NewPostgresRecorder(dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	r := &PostgresRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("[INFO] postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_executions (
			id        BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			task_name TEXT NOT NULL,
			task_id   TEXT NOT NULL,
			result    JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exec_ts ON task_executions(timestamp)`,
		`CREATE TABLE IF NOT EXISTS task_errors (
			id        BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			task_name TEXT NOT NULL,
			task_id   TEXT NOT NULL,
			error     TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_err_ts ON task_errors(timestamp)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordExecution(exec model.Execution) error {
	result, err := json.Marshal(exec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.NamedExec(`INSERT INTO task_executions (timestamp, task_name, task_id, result)
		VALUES (:timestamp, :task_name, :task_id, :result)`,
		executionRow{
			Timestamp: stamp(exec.Timestamp),
			TaskName:  exec.TaskName,
			TaskID:    exec.TaskID,
			Result:    result,
		})
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordError(taskErr model.TaskError) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.NamedExec(`INSERT INTO task_errors (timestamp, task_name, task_id, error)
		VALUES (:timestamp, :task_name, :task_id, :error)`,
		errorRow{
			Timestamp: stamp(taskErr.Timestamp),
			TaskName:  taskErr.TaskName,
			TaskID:    taskErr.TaskID,
			Error:     taskErr.Error,
		})
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	return nil
}

// Executions returns executions recorded at or after since, oldest first.
func (r *PostgresRecorder) Executions(since time.Time) ([]model.Execution, error) {
	var rows []executionRow
	err := r.db.Select(&rows, `SELECT timestamp, task_name, task_id, result
		FROM task_executions WHERE timestamp >= $1 ORDER BY timestamp, id`, since)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	out := make([]model.Execution, 0, len(rows))
	for _, row := range rows {
		exec := model.Execution{Timestamp: row.Timestamp, TaskName: row.TaskName, TaskID: row.TaskID}
		if len(row.Result) > 0 {
			if err := json.Unmarshal(row.Result, &exec.Result); err != nil {
				log.Printf("[WARN] decode result of task %s: %v", row.TaskID, err)
			}
		}
		out = append(out, exec)
	}
	return out, nil
}

// Errors returns errors recorded at or after since, oldest first.
func (r *PostgresRecorder) Errors(since time.Time) ([]model.TaskError, error) {
	var rows []errorRow
	err := r.db.Select(&rows, `SELECT timestamp, task_name, task_id, error
		FROM task_errors WHERE timestamp >= $1 ORDER BY timestamp, id`, since)
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	out := make([]model.TaskError, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.TaskError{
			Timestamp: row.Timestamp,
			TaskName:  row.TaskName,
			TaskID:    row.TaskID,
			Error:     row.Error,
		})
	}
	return out, nil
}

func (r *PostgresRecorder) Close() error {
	log.Println("[INFO] closing postgres recorder")
	return r.db.Close()
}
