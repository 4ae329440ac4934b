// Package state persists the snapshot cache and run history in SQLite.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/restoredrill/internal/domain"
)

// DBFileName is the database file inside the state directory
const DBFileName = "restoredrill.db"

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// NoFailedVersion marks a run without a mismatching version
const NoFailedVersion = -1

// Manager handles the snapshot cache and run history
type Manager struct {
	db *sql.DB
}

// RunRecord is one harness run
type RunRecord struct {
	ID            string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	Seed          uint64
	Versions      int
	FailedVersion int
	Tool          string
	Error         string
}

// NewManager opens (or creates) the database in dataDir
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection avoids "database is locked" between our own statements
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}

	m := &Manager{db: db}
	if err := m.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return m, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		seed INTEGER NOT NULL,
		versions INTEGER NOT NULL,
		failed_version INTEGER NOT NULL DEFAULT -1,
		tool TEXT,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_start ON runs(start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);

	CREATE TABLE IF NOT EXISTS record_cache (
		cache_key TEXT PRIMARY KEY,
		versions INTEGER NOT NULL,
		seed INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS version_trees (
		cache_key TEXT NOT NULL,
		version INTEGER NOT NULL,
		tree TEXT NOT NULL,
		PRIMARY KEY (cache_key, version)
	);
	`
	_, err := m.db.Exec(schema)
	return err
}

// SaveRecord stores record under key, replacing any earlier record
func (m *Manager) SaveRecord(key string, record *domain.VersionRecord) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRecord(tx, key); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`INSERT INTO version_trees (cache_key, version, tree) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, tree := range record.Versions {
		data, err := json.Marshal(tree)
		if err != nil {
			return fmt.Errorf("failed to encode version %d: %w", i, err)
		}
		if _, err := stmt.Exec(key, i, string(data)); err != nil {
			return fmt.Errorf("failed to save version %d: %w", i, err)
		}
	}

	// the header row goes last so a partial write never looks complete
	if _, err := tx.Exec(`INSERT INTO record_cache (cache_key, versions, seed) VALUES (?, ?, ?)`,
		key, record.Len(), int64(record.Seed)); err != nil {
		return fmt.Errorf("failed to save record header: %w", err)
	}

	return tx.Commit()
}

// LoadRecord returns the record cached under key.
// Returns domain.ErrCacheMiss if nothing complete is stored.
func (m *Manager) LoadRecord(key string) (*domain.VersionRecord, error) {
	var versions int
	var seed int64
	err := m.db.QueryRow(`SELECT versions, seed FROM record_cache WHERE cache_key = ?`, key).Scan(&versions, &seed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record header: %w", err)
	}

	rows, err := m.db.Query(`SELECT version, tree FROM version_trees WHERE cache_key = ? ORDER BY version`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	record := domain.NewVersionRecord(versions)
	record.Seed = uint64(seed)
	for rows.Next() {
		var version int
		var data string
		if err := rows.Scan(&version, &data); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		if version != record.Len() {
			return nil, fmt.Errorf("%w: version %d missing", domain.ErrCacheMiss, record.Len())
		}
		var tree domain.Tree
		if err := json.Unmarshal([]byte(data), &tree); err != nil {
			return nil, fmt.Errorf("failed to decode version %d: %w", version, err)
		}
		record.Append(&tree)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	if record.Len() != versions {
		return nil, fmt.Errorf("%w: have %d of %d versions", domain.ErrCacheMiss, record.Len(), versions)
	}
	return record, nil
}

// DeleteRecord drops the record cached under key
func (m *Manager) DeleteRecord(key string) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRecord(tx, key); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteRecord(tx *sql.Tx, key string) error {
	if _, err := tx.Exec(`DELETE FROM record_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete record header: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM version_trees WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	return nil
}

// SaveRun records a finished run
func (m *Manager) SaveRun(record RunRecord) error {
	switch record.Status {
	case StatusSuccess, StatusFailed, StatusError:
	default:
		return fmt.Errorf("invalid status: %s (must be '%s', '%s', or '%s')",
			record.Status, StatusSuccess, StatusFailed, StatusError)
	}
	if record.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	_, err := m.db.Exec(`
		INSERT INTO runs (id, start_time, end_time, status, seed, versions, failed_version, tool, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.StartTime,
		record.EndTime,
		record.Status,
		int64(record.Seed), // sqlite integers are signed; the bit pattern survives
		record.Versions,
		record.FailedVersion,
		record.Tool,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

const runColumns = `id, start_time, end_time, status, seed, versions, failed_version, tool, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var r RunRecord
	var seed int64
	var tool, errText sql.NullString
	err := s.Scan(&r.ID, &r.StartTime, &r.EndTime, &r.Status, &seed, &r.Versions, &r.FailedVersion, &tool, &errText)
	r.Seed = uint64(seed)
	r.Tool = tool.String
	r.Error = errText.String
	return r, err
}

// GetHistory returns the latest runs, newest first
func (m *Manager) GetHistory(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := m.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// GetRun returns one run by id, or domain.ErrNotFound
func (m *Manager) GetRun(id string) (*RunRecord, error) {
	r, err := scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return &r, nil
}

// GetLastSuccess returns the latest successful run, or nil if none
func (m *Manager) GetLastSuccess() (*RunRecord, error) {
	r, err := scanRun(m.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY start_time DESC LIMIT 1`, StatusSuccess))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return &r, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
