package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/zhaobenny/datatop/internal/sandbox"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// Open opens a SQLite database connection
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to avoid "database is locked" errors under concurrent load
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	return &DB{db}, nil
}

// Migrate creates the database schema. The sessions table backs sqlite3store.
func (db *DB) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		iccid TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS plans (
		iccid TEXT PRIMARY KEY,
		period_days INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		total_mib INTEGER NOT NULL,
		used_mib INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (iccid) REFERENCES accounts(iccid) ON DELETE CASCADE,
		CHECK (used_mib >= 0 AND used_mib <= total_mib)
	);

	CREATE TABLE IF NOT EXISTS sessions (
		token TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		expiry REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`
	_, err := db.Exec(schema)
	return err
}

// PutAccount creates or updates an account and its plan.
// A nil plan removes the active package.
func (db *DB) PutAccount(a *sandbox.Account) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO accounts (iccid, password_hash) VALUES (?, ?)
		 ON CONFLICT(iccid) DO UPDATE SET password_hash = excluded.password_hash`,
		a.ICCID, a.PasswordHash,
	)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM plans WHERE iccid = ?`, a.ICCID); err != nil {
		return err
	}
	if p := a.Plan; p != nil {
		_, err = tx.Exec(
			`INSERT INTO plans (iccid, period_days, expires_at, total_mib, used_mib) VALUES (?, ?, ?, ?, ?)`,
			a.ICCID, p.Period, p.Expiration.Unix(), p.TotalMiB, p.UsedMiB,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// UpdateUsage sets the used counter of an account's plan
func (db *DB) UpdateUsage(iccid string, usedMiB int64) error {
	result, err := db.Exec(`UPDATE plans SET used_mib = ? WHERE iccid = ?`, usedMiB, iccid)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("no active plan for %s", iccid)
	}
	return nil
}

// GetAccount retrieves an account by card number, implementing sandbox.AccountStore
func (db *DB) GetAccount(iccid string) (*sandbox.Account, error) {
	account := &sandbox.Account{}
	var (
		period            sql.NullInt64
		expires           sql.NullInt64
		totalMiB, usedMiB sql.NullInt64
	)
	err := db.QueryRow(
		`SELECT a.iccid, a.password_hash, p.period_days, p.expires_at, p.total_mib, p.used_mib
		 FROM accounts a LEFT JOIN plans p ON p.iccid = a.iccid
		 WHERE a.iccid = ?`,
		iccid,
	).Scan(&account.ICCID, &account.PasswordHash, &period, &expires, &totalMiB, &usedMiB)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if period.Valid {
		account.Plan = &sandbox.Plan{
			Period:     int(period.Int64),
			Expiration: time.Unix(expires.Int64, 0),
			TotalMiB:   totalMiB.Int64,
			UsedMiB:    usedMiB.Int64,
		}
	}
	return account, nil
}
