// Package history keeps a local SQLite log of computed usage reports.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zhaobenny/datatop/internal/model"
	"github.com/zhaobenny/datatop/internal/provider"
)

// DefaultLimit is the number of rows List returns for a non-positive limit
const DefaultLimit = 20

// ErrInactive is returned when recording a report without an active package
var ErrInactive = errors.New("no active package to record")

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// Open opens the history database, creating its directory if needed
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set busy timeout to avoid "database is locked" when runs overlap
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &DB{db}, nil
}

// Migrate creates the database schema
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		recorded_at INTEGER NOT NULL,
		reference_at INTEGER NOT NULL,
		activation_at INTEGER NOT NULL,
		expiration_at INTEGER NOT NULL,
		total_bytes INTEGER NOT NULL,
		used_bytes INTEGER NOT NULL,
		remaining_bytes INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_recorded ON reports(recorded_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Record appends an active report
func (db *DB) Record(r *model.UsageReport, recordedAt time.Time) (*model.HistoryEntry, error) {
	if !r.Active {
		return nil, ErrInactive
	}

	entry := &model.HistoryEntry{
		ID:             uuid.NewString(),
		RecordedAt:     recordedAt,
		Now:            r.Now,
		Activation:     r.Activation,
		Expiration:     r.Expiration,
		TotalBytes:     r.TotalBytes,
		UsedBytes:      r.UsedBytes,
		RemainingBytes: r.RemainingBytes,
	}

	_, err := db.Exec(
		`INSERT INTO reports
		 (id, recorded_at, reference_at, activation_at, expiration_at, total_bytes, used_bytes, remaining_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordedAt.UnixNano(), entry.Now.Unix(), entry.Activation.Unix(), entry.Expiration.Unix(),
		entry.TotalBytes, entry.UsedBytes, entry.RemainingBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record report: %w", err)
	}
	return entry, nil
}

// List returns up to limit reports, newest first. Times are in the provider's timezone.
func (db *DB) List(limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := db.Query(
		`SELECT id, recorded_at, reference_at, activation_at, expiration_at, total_bytes, used_bytes, remaining_bytes
		 FROM reports ORDER BY recorded_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.HistoryEntry
	for rows.Next() {
		var (
			e                                   model.HistoryEntry
			recorded, ref, activation, expiring int64
		)
		if err := rows.Scan(&e.ID, &recorded, &ref, &activation, &expiring,
			&e.TotalBytes, &e.UsedBytes, &e.RemainingBytes); err != nil {
			return nil, err
		}
		e.RecordedAt = time.Unix(0, recorded).In(provider.Location)
		e.Now = time.Unix(ref, 0).In(provider.Location)
		e.Activation = time.Unix(activation, 0).In(provider.Location)
		e.Expiration = time.Unix(expiring, 0).In(provider.Location)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
