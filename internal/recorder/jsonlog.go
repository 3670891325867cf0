package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"TradingAssistant/internal/model"
)

// Log file names inside the history directory.
const (
	ExecutionsFile = "task_executions.json"
	ErrorsFile     = "task_errors.json"
)

// JSONRecorder keeps history as two JSON arrays in Dir.
type JSONRecorder struct {
	Dir string
	mu  sync.Mutex
}

// NewJSONRecorder creates Dir if needed.
func NewJSONRecorder(dir string) (*JSONRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &JSONRecorder{Dir: dir}, nil
}

func (r *JSONRecorder) RecordExecution(exec model.Execution) error {
	exec.Timestamp = stamp(exec.Timestamp)
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []model.Execution
	if err := r.load(ExecutionsFile, &all); err != nil {
		return err
	}
	return r.save(ExecutionsFile, append(all, exec))
}

func (r *JSONRecorder) RecordError(taskErr model.TaskError) error {
	taskErr.Timestamp = stamp(taskErr.Timestamp)
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []model.TaskError
	if err := r.load(ErrorsFile, &all); err != nil {
		return err
	}
	return r.save(ErrorsFile, append(all, taskErr))
}

// Executions returns executions recorded at or after since, in file order.
func (r *JSONRecorder) Executions(since time.Time) ([]model.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []model.Execution
	if err := r.load(ExecutionsFile, &all); err != nil {
		return nil, err
	}
	var out []model.Execution
	for _, e := range all {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Errors returns errors recorded at or after since, in file order.
func (r *JSONRecorder) Errors(since time.Time) ([]model.TaskError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []model.TaskError
	if err := r.load(ErrorsFile, &all); err != nil {
		return nil, err
	}
	var out []model.TaskError
	for _, e := range all {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *JSONRecorder) Close() error { return nil }

// load decodes name into v. A missing file leaves v untouched.
func (r *JSONRecorder) load(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(r.Dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (r *JSONRecorder) save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return os.WriteFile(filepath.Join(r.Dir, name), data, 0644)
}
