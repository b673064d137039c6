package persistence

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lexcodex/jbuild/framework"
)

// BuildRecord is one finished compile or compile-and-run task.
type BuildRecord struct {
	TaskID          string
	File            string
	Mode            framework.Mode
	CompileExitCode int
	Ran             bool
	Diagnostics     int
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Succeeded reports whether the compile step exited cleanly.
func (r BuildRecord) Succeeded() bool {
	return r.CompileExitCode == 0 && r.Error == ""
}

// HistoryStore persists build records in a SQLite database.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore opens/creates the database at dbPath.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	store := &HistoryStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *HistoryStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		task_id TEXT PRIMARY KEY,
		file TEXT NOT NULL,
		mode TEXT NOT NULL,
		compile_exit_code INTEGER NOT NULL,
		ran BOOLEAN NOT NULL,
		diagnostics INTEGER NOT NULL,
		error TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS builds_file_idx ON builds(file, finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *HistoryStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts rec.
func (s *HistoryStore) Record(ctx context.Context, rec BuildRecord) error {
	if rec.TaskID == "" {
		return errors.New("task id required")
	}
	query := `
	INSERT INTO builds (
		task_id, file, mode, compile_exit_code, ran, diagnostics, error, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(task_id) DO UPDATE SET
		file=excluded.file,
		mode=excluded.mode,
		compile_exit_code=excluded.compile_exit_code,
		ran=excluded.ran,
		diagnostics=excluded.diagnostics,
		error=excluded.error,
		started_at=excluded.started_at,
		finished_at=excluded.finished_at
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.TaskID, rec.File, string(rec.Mode), rec.CompileExitCode, rec.Ran,
		rec.Diagnostics, rec.Error, rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	return err
}

// Recent returns up to limit records, newest first. An empty file matches
// every file.
func (s *HistoryStore) Recent(ctx context.Context, file string, limit int) ([]BuildRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT task_id, file, mode, compile_exit_code, ran, diagnostics, error, started_at, finished_at
	FROM builds`
	args := []interface{}{}
	if file != "" {
		query += ` WHERE file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BuildRecord
	for rows.Next() {
		var (
			rec     BuildRecord
			mode    string
			errText sql.NullString
		)
		if err := rows.Scan(&rec.TaskID, &rec.File, &mode, &rec.CompileExitCode, &rec.Ran,
			&rec.Diagnostics, &errText, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		rec.Mode = framework.Mode(mode)
		rec.Error = errText.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HistoryTelemetry records a BuildRecord for every task that finishes.
type HistoryTelemetry struct {
	Store  *HistoryStore
	Logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*BuildRecord
}

// NewHistoryTelemetry wraps store as a telemetry sink.
func NewHistoryTelemetry(store *HistoryStore, logger *slog.Logger) *HistoryTelemetry {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryTelemetry{Store: store, Logger: logger, pending: make(map[string]*BuildRecord)}
}

// Emit folds lifecycle events into a record and writes it on task_finish.
func (h *HistoryTelemetry) Emit(ev framework.Event) {
	h.mu.Lock()
	rec, ok := h.pending[ev.TaskID]
	if !ok {
		rec = &BuildRecord{TaskID: ev.TaskID, File: ev.File, Mode: ev.Mode, StartedAt: ev.Timestamp}
		h.pending[ev.TaskID] = rec
	}
	switch ev.Type {
	case framework.EventCompileExit:
		rec.CompileExitCode = ev.ExitCode
	case framework.EventRunSpawn:
		rec.Ran = true
	case framework.EventSpawnFailed:
		rec.Error = ev.Message
	case framework.EventTaskFinish:
		delete(h.pending, ev.TaskID)
		rec.CompileExitCode = ev.ExitCode
		rec.FinishedAt = ev.Timestamp
		if n, ok := ev.Metadata["diagnostics"].(int); ok {
			rec.Diagnostics = n
		}
		if rec.Error == "" {
			rec.Error = ev.Message
		}
	}
	finished := ev.Type == framework.EventTaskFinish
	final := *rec
	h.mu.Unlock()

	if !finished {
		return
	}
	if err := h.Store.Record(context.Background(), final); err != nil {
		h.Logger.Warn("record build history failed", "task_id", final.TaskID, "error", err)
	}
}
