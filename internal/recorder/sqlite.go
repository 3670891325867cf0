package recorder

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"TradingAssistant/internal/model"
)

// SQLiteRecorder persists task history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the API process read while a worker writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_executions (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			task_name TEXT NOT NULL,
			task_id   TEXT NOT NULL,
			result    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exec_ts ON task_executions(timestamp)`,

		`CREATE TABLE IF NOT EXISTS task_errors (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			task_name TEXT NOT NULL,
			task_id   TEXT NOT NULL,
			error     TEXT
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

func (r *SQLiteRecorder) RecordExecution(exec model.Execution) error {
	result, err := json.Marshal(exec.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO task_executions
		(timestamp, task_name, task_id, result)
		VALUES (?,?,?,?)`,
		stamp(exec.Timestamp).UnixMilli(), exec.TaskName, exec.TaskID, string(result),
	)
	return err
}

func (r *SQLiteRecorder) RecordError(taskErr model.TaskError) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO task_errors
		(timestamp, task_name, task_id, error)
		VALUES (?,?,?,?)`,
		stamp(taskErr.Timestamp).UnixMilli(), taskErr.TaskName, taskErr.TaskID, taskErr.Error,
	)
	return err
}

// Executions returns executions recorded at or after since, oldest first.
func (r *SQLiteRecorder) Executions(since time.Time) ([]model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, task_name, task_id, result
		FROM task_executions WHERE timestamp >= ? ORDER BY timestamp, id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []model.Execution
	for rows.Next() {
		var (
			ts     int64
			exec   model.Execution
			result sql.NullString
		)
		if err := rows.Scan(&ts, &exec.TaskName, &exec.TaskID, &result); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		exec.Timestamp = time.UnixMilli(ts)
		if result.Valid && result.String != "" {
			if err := json.Unmarshal([]byte(result.String), &exec.Result); err != nil {
				log.Printf("[WARN] decode result of task %s: %v", exec.TaskID, err)
			}
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

// Errors returns errors recorded at or after since, oldest first.
func (r *SQLiteRecorder) Errors(since time.Time) ([]model.TaskError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, task_name, task_id, error
		FROM task_errors WHERE timestamp >= ? ORDER BY timestamp, id`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query errors: %w", err)
	}
	defer rows.Close()

	var out []model.TaskError
	for rows.Next() {
		var (
			ts  int64
			te  model.TaskError
			msg sql.NullString
		)
		if err := rows.Scan(&ts, &te.TaskName, &te.TaskID, &msg); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		te.Timestamp = time.UnixMilli(ts)
		te.Error = msg.String
		out = append(out, te)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

// stamp defaults a zero record time to now.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
