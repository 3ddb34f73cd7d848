package infra

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"
	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/domain"
)

// RunRecord is one archived run verdict.
type RunRecord struct {
	ID        int64
	StartedAt time.Time
	Status    string
	Alert     bool
	Message   string
}

// HistoryStore implements domain.RunHistory with a local SQLite database so
// prior unattended runs can be audited on the host. Failures here are never
// fatal to a run; callers log and continue.
type HistoryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryStore opens (or creates) the run-history database.
func NewHistoryStore(dbPath string, logger *zap.Logger) (*HistoryStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	store := &HistoryStore{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

// createTables creates the schema if it doesn't exist.
func (h *HistoryStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		status TEXT NOT NULL,
		alert INTEGER NOT NULL,
		message TEXT NOT NULL
	);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Append records the verdict of a finished run.
func (h *HistoryStore) Append(startedAt time.Time, verdict domain.Verdict) error {
	alert := 0
	if verdict.Alert {
		alert = 1
	}
	_, err := h.db.Exec(`
		INSERT INTO runs (started_at, status, alert, message)
		VALUES (?, ?, ?, ?)`,
		startedAt.Unix(), verdict.Status, alert, verdict.Message,
	)
	return err
}

// Recent returns up to limit runs, newest first.
func (h *HistoryStore) Recent(limit int) ([]RunRecord, error) {
	rows, err := h.db.Query(`
		SELECT id, started_at, status, alert, message
		FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started int64
		var alert int
		if err := rows.Scan(&rec.ID, &started, &rec.Status, &alert, &rec.Message); err != nil {
			return nil, err
		}
		rec.StartedAt = time.Unix(started, 0)
		rec.Alert = alert == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (h *HistoryStore) Close() error {
	return h.db.Close()
}

// Ensure HistoryStore implements domain.RunHistory.
var _ domain.RunHistory = (*HistoryStore)(nil)
