// Package sqlite persists import mappings and the import history in a SQLite
// database through modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/session-planner/internal/persistence"
	"github.com/example/session-planner/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// timeLayout has fixed width so stored timestamps order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements persistence.KeyValueStore and persistence.ImportLog.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the database. Call Migrate before first use.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return migration.NewManager(s.db, migrationFS, "migrations", s.logger).Run(ctx)
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return value, nil
}

// Put inserts or replaces the value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return persistence.ErrInvalidKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key, returning persistence.ErrNotFound when absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("sqlite: delete %q: %w", key, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: delete %q: %w", key, err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

// List returns the keys starting with prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_entries WHERE substr(key, 1, ?) = ? ORDER BY key ASC`,
		len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RecordImport stores one import history entry.
func (s *Store) RecordImport(ctx context.Context, record persistence.ImportRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return persistence.ErrInvalidKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_runs (id, event_id, schedule_id, source_name, rows_read, mappings, uploaded, error, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.EventID, record.ScheduleID, record.SourceName,
		record.Rows, record.Mappings, record.Uploaded, record.Error,
		record.ImportedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("sqlite: record import: %w", err)
	}
	return nil
}

// ListImports returns the import history of an event, newest first.
func (s *Store) ListImports(ctx context.Context, eventID, scheduleID string, limit int) ([]persistence.ImportRecord, error) {
	query := `
		SELECT id, event_id, schedule_id, source_name, rows_read, mappings, uploaded, error, imported_at
		FROM import_runs WHERE event_id = ?`
	args := []any{eventID}
	if scheduleID != "" {
		query += ` AND schedule_id = ?`
		args = append(args, scheduleID)
	}
	query += ` ORDER BY imported_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list imports: %w", err)
	}
	defer rows.Close()

	var records []persistence.ImportRecord
	for rows.Next() {
		var (
			record     persistence.ImportRecord
			importedAt string
		)
		if err := rows.Scan(&record.ID, &record.EventID, &record.ScheduleID, &record.SourceName,
			&record.Rows, &record.Mappings, &record.Uploaded, &record.Error, &importedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan import: %w", err)
		}
		record.ImportedAt, err = time.Parse(timeLayout, importedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse import time: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
