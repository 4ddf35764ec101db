package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quantmind-br/pkglife/internal/core"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// DB represents the database with separate read/write pools
type DB struct {
	write *sql.DB
	read  *sql.DB
	path  string
}

// Record is an installed package together with its bookkeeping columns
type Record struct {
	core.PackageDescriptor
	InstalledAt time.Time
}

// New creates a new database instance with separate read/write pools
func New(ctx context.Context, dbPath string) (*DB, error) {
	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)

	// Write pool: MUST be 1 connection only
	write, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open write connection: %w", err)
	}
	write.SetMaxOpenConns(1)
	write.SetMaxIdleConns(1)
	write.SetConnMaxIdleTime(time.Minute)
	write.SetConnMaxLifetime(time.Hour)

	read, err := sql.Open("sqlite", connStr)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read connection: %w", err)
	}
	read.SetMaxOpenConns(10)
	read.SetMaxIdleConns(5)
	read.SetConnMaxIdleTime(time.Minute)
	read.SetConnMaxLifetime(time.Hour)

	db := &DB{
		write: write,
		read:  read,
		path:  dbPath,
	}

	if err := db.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return db, nil
}

// Path returns the database file location
func (db *DB) Path() string {
	return db.path
}

// Close closes both database connections
func (db *DB) Close() error {
	writeErr := db.write.Close()
	readErr := db.read.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

func (db *DB) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS packages (
    name TEXT PRIMARY KEY,
    format TEXT NOT NULL,
    version TEXT NOT NULL,
    release TEXT NOT NULL DEFAULT '',
    installed_at DATETIME NOT NULL,
    scriptlets TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_packages_format ON packages(format);

CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    name TEXT NOT NULL,
    format TEXT NOT NULL,
    old_version TEXT NOT NULL DEFAULT '',
    new_version TEXT NOT NULL DEFAULT '',
    relation TEXT NOT NULL DEFAULT '',
    committed INTEGER NOT NULL,
    suppressed INTEGER NOT NULL DEFAULT 0,
    warnings TEXT NOT NULL DEFAULT '[]',
    entries TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_name ON history(name);

CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    description TEXT
);
	`

	if _, err := db.write.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	_, err := db.write.ExecContext(ctx,
		"INSERT OR IGNORE INTO schema_migrations (version, description) VALUES (?, ?)",
		schemaVersion, "packages and history tables")
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return nil
}

// Get retrieves the installed record for name. It returns nil, nil when the
// package is not installed.
func (db *DB) Get(ctx context.Context, name string) (*core.PackageDescriptor, error) {
	rec, err := db.GetRecord(ctx, name)
	if err != nil || rec == nil {
		return nil, err
	}
	return &rec.PackageDescriptor, nil
}

// GetRecord is Get with the bookkeeping columns included
func (db *DB) GetRecord(ctx context.Context, name string) (*Record, error) {
	query := `
SELECT name, format, version, release, installed_at, scriptlets
FROM packages WHERE name = ?
	`

	rec, err := scanRecord(db.read.QueryRowContext(ctx, query, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query package %s: %w", name, err)
	}
	return rec, nil
}

// List retrieves all installed packages ordered by name
func (db *DB) List(ctx context.Context) ([]Record, error) {
	query := `
SELECT name, format, version, release, installed_at, scriptlets
FROM packages ORDER BY name
	`

	rows, err := db.read.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

// Put inserts or replaces the record for desc.Name
func (db *DB) Put(ctx context.Context, desc *core.PackageDescriptor) error {
	return putPackage(ctx, db.write, desc, time.Now().UTC())
}

// Delete removes the record for name
func (db *DB) Delete(ctx context.Context, name string) error {
	return deletePackage(ctx, db.write, name)
}

// Commit applies change inside a single SQL transaction
func (db *DB) Commit(ctx context.Context, change core.Change) error {
	if change.Put != nil && change.Delete != "" {
		return fmt.Errorf("change cannot both put %s and delete %s", change.Put.Name, change.Delete)
	}

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC()

	if change.Put != nil {
		if err := putPackage(ctx, tx, change.Put, now); err != nil {
			return err
		}
	}
	if change.Delete != "" {
		if err := deletePackage(ctx, tx, change.Delete); err != nil {
			return err
		}
	}
	if change.History != nil {
		if err := insertHistory(ctx, tx, change.History, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// History returns the most recent entries, newest first. An empty name matches
// every package and a non-positive limit returns everything.
func (db *DB) History(ctx context.Context, name string, limit int) ([]core.HistoryEntry, error) {
	query := `
SELECT id, action, name, format, old_version, new_version, relation, committed, suppressed, warnings, entries, created_at
FROM history WHERE (? = '' OR name = ?) ORDER BY id DESC
	`
	args := []interface{}{name, name}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []core.HistoryEntry
	for rows.Next() {
		var h core.HistoryEntry
		var warningsJSON, entriesJSON string
		err := rows.Scan(
			&h.ID,
			&h.Action,
			&h.Name,
			&h.Format,
			&h.OldVersion,
			&h.NewVersion,
			&h.Relation,
			&h.Committed,
			&h.Suppressed,
			&warningsJSON,
			&entriesJSON,
			&h.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(warningsJSON), &h.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
		if err := json.Unmarshal([]byte(entriesJSON), &h.Invocations); err != nil {
			return nil, fmt.Errorf("unmarshal entries: %w", err)
		}
		entries = append(entries, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return entries, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var scriptletsJSON string

	err := row.Scan(
		&rec.Name,
		&rec.Format,
		&rec.Version,
		&rec.Release,
		&rec.InstalledAt,
		&scriptletsJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scriptletsJSON), &rec.Scriptlets); err != nil {
		return nil, fmt.Errorf("unmarshal scriptlets: %w", err)
	}
	return &rec, nil
}

func putPackage(ctx context.Context, ex execer, desc *core.PackageDescriptor, now time.Time) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	scriptlets := desc.Scriptlets
	if scriptlets == nil {
		scriptlets = map[core.Phase]core.Scriptlet{}
	}
	scriptletsJSON, err := json.Marshal(scriptlets)
	if err != nil {
		return fmt.Errorf("marshal scriptlets: %w", err)
	}

	query := `
INSERT INTO packages (name, format, version, release, installed_at, scriptlets)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET
    format = excluded.format,
    version = excluded.version,
    release = excluded.release,
    installed_at = excluded.installed_at,
    scriptlets = excluded.scriptlets
	`

	_, err = ex.ExecContext(ctx, query,
		desc.Name,
		string(desc.Format),
		desc.Version,
		desc.Release,
		now,
		string(scriptletsJSON),
	)
	if err != nil {
		return fmt.Errorf("upsert package %s: %w", desc.Name, err)
	}
	return nil
}

func deletePackage(ctx context.Context, ex execer, name string) error {
	result, err := ex.ExecContext(ctx, "DELETE FROM packages WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return &core.NotInstalledError{Name: name}
	}

	return nil
}

func insertHistory(ctx context.Context, ex execer, h *core.HistoryEntry, now time.Time) error {
	warnings := h.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	invocations := h.Invocations
	if invocations == nil {
		invocations = []core.InvocationRecord{}
	}
	entriesJSON, err := json.Marshal(invocations)
	if err != nil {
		return fmt.Errorf("marshal entries: %w", err)
	}

	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
INSERT INTO history (action, name, format, old_version, new_version, relation, committed, suppressed, warnings, entries, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := ex.ExecContext(ctx, query,
		string(h.Action),
		h.Name,
		string(h.Format),
		h.OldVersion,
		h.NewVersion,
		string(h.Relation),
		h.Committed,
		h.Suppressed,
		string(warningsJSON),
		string(entriesJSON),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		h.ID = id
	}
	return nil
}
