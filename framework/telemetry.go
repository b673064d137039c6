package framework

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventTaskStart   EventType = "task_start"
	EventStateChange EventType = "state_change"
	EventCompileExit EventType = "compile_exit"
	EventRunSpawn    EventType = "run_spawn"
	EventSpawnFailed EventType = "spawn_failed"
	EventTaskFinish  EventType = "task_finish"
)

// Event captures structured telemetry data about one task.
type Event struct {
	Type      EventType              `json:"type"`
	TaskID    string                 `json:"task_id"`
	File      string                 `json:"file,omitempty"`
	Mode      Mode                   `json:"mode"`
	State     TaskState              `json:"state,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	ExitCode  int                    `json:"exit_code"`
	Message   string                 `json:"message,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Telemetry receives task lifecycle events. Emit is called from task worker
// goroutines and must be safe for concurrent use.
type Telemetry interface {
	Emit(event Event)
}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(event)
		}
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON to a file.
// This allows external tools to tail and process the stream in real-time.
type JSONFileTelemetry struct {
	path string
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{
		path: path,
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		j.enc = nil
		return err
	}
	return nil
}

// LoggerTelemetry emits events through slog.
type LoggerTelemetry struct {
	Logger *slog.Logger
}

// Emit logs the event at debug level, or warn for spawn failures.
func (t LoggerTelemetry) Emit(event Event) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if event.Type == EventSpawnFailed {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, string(event.Type),
		"task_id", event.TaskID,
		"file", event.File,
		"mode", event.Mode,
		"state", event.State,
		"exit_code", event.ExitCode,
		"message", event.Message,
	)
}

type nopTelemetry struct{}

func (nopTelemetry) Emit(Event) {}
