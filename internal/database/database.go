package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"sdclean/internal/events"
)

// HistoryDB stores every cleanup event in SQLite so past runs can be
// inspected with `sdclean history`.
type HistoryDB struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Record is one stored event.
type Record struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	RunID        string    `json:"run_id"`
	Job          string    `json:"job"`
	Action       string    `json:"action"`
	Path         string    `json:"path"`
	FileName     string    `json:"file_name"`
	ObjectType   string    `json:"object_type"`
	Size         int64     `json:"size"`
	Reason       string    `json:"reason,omitempty"`
	Fingerprint  string    `json:"rules_fingerprint"`
	ErrorMessage string    `json:"error,omitempty"`
}

// NewHistoryDB opens (creating if needed) the history database at dbPath.
func NewHistoryDB(dbPath string) (*HistoryDB, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// _loc=auto parses DATETIME columns back into time.Time; the busy timeout
	// covers the CLI reading while a daemon writes.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// One writer at a time; concurrent jobs share this handle.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	h := &HistoryDB{db: db, logger: zerolog.Nop()}
	if err = h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return h, nil
}

// SetLogger sets where Emit reports write failures.
func (h *HistoryDB) SetLogger(logger zerolog.Logger) {
	h.logger = logger.With().Str("component", "history").Logger()
}

func (h *HistoryDB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		run_id TEXT NOT NULL,
		job TEXT NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		file_name TEXT,
		object_type TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		reason TEXT,
		rules_fingerprint TEXT,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_timestamp ON events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_run_id ON events(run_id);
	CREATE INDEX IF NOT EXISTS idx_job ON events(job);
	CREATE INDEX IF NOT EXISTS idx_action ON events(action);
	CREATE INDEX IF NOT EXISTS idx_path ON events(path);

	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Insert stores one event. Timestamps are stored in UTC so range queries
// compare correctly.
func (h *HistoryDB) Insert(e events.Event) error {
	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var errMsg sql.NullString
	if e.Err != nil {
		errMsg = sql.NullString{String: e.Err.Error(), Valid: true}
	}

	_, err := h.db.Exec(`
	INSERT INTO events (
		timestamp, run_id, job, action, path, file_name, object_type,
		size, reason, rules_fingerprint, error_message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ts.UTC(),
		e.RunID,
		e.Job,
		string(e.Action),
		e.Path,
		filepath.Base(e.Path),
		e.Kind,
		e.Bytes,
		e.Reason,
		e.Fingerprint,
		errMsg,
	)
	return err
}

// Emit implements events.Sink. A failed write is logged and dropped; the
// history must never stop a cleanup.
func (h *HistoryDB) Emit(e events.Event) {
	if err := h.Insert(e); err != nil {
		h.logger.Error().Err(err).Str("path", e.Path).Msg("failed to record event to database")
	}
}

// Close closes the database connection
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Vacuum reclaims space after Prune
func (h *HistoryDB) Vacuum() error {
	_, err := h.db.Exec("VACUUM")
	return err
}

// DatabaseInfo describes the history file itself.
type DatabaseInfo struct {
	TotalRecords int64
	SizeBytes    int64
	Oldest       time.Time
	Newest       time.Time
}

// Info returns record count, file size and the covered time range.
func (h *HistoryDB) Info() (*DatabaseInfo, error) {
	info := &DatabaseInfo{}
	if err := h.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&info.TotalRecords); err != nil {
		return nil, err
	}

	var pageCount, pageSize int64
	if err := h.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, err
	}
	if err := h.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, err
	}
	info.SizeBytes = pageCount * pageSize

	if info.TotalRecords == 0 {
		return info, nil
	}
	// MIN/MAX lose the column type, so read the extremes as rows instead.
	if err := h.db.QueryRow("SELECT timestamp FROM events ORDER BY timestamp ASC LIMIT 1").Scan(&info.Oldest); err != nil {
		return nil, err
	}
	if err := h.db.QueryRow("SELECT timestamp FROM events ORDER BY timestamp DESC LIMIT 1").Scan(&info.Newest); err != nil {
		return nil, err
	}
	return info, nil
}
