package migration

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SQLiteExecutor runs migrations and maintains the schema_migrations table.
type SQLiteExecutor struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteExecutor creates a new SQLite migration executor.
func NewSQLiteExecutor(db *sql.DB) *SQLiteExecutor {
	return &SQLiteExecutor{db: db, now: time.Now}
}

// InitializeVersionTable creates the schema_migrations table if it doesn't exist.
func (e *SQLiteExecutor) InitializeVersionTable(ctx context.Context) error {
	const createTableSQL = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL,
			checksum TEXT NOT NULL DEFAULT '',
			execution_time_ms INTEGER NOT NULL DEFAULT 0
		)`
	if _, err := e.db.ExecContext(ctx, createTableSQL); err != nil {
		return NewDatabaseError("", "create schema_migrations table", err)
	}
	return nil
}

// Apply executes every statement of m and records it, all in one transaction,
// so a failed migration leaves neither schema changes nor a version row behind.
func (e *SQLiteExecutor) Apply(ctx context.Context, m Migration) (time.Duration, error) {
	started := e.now()

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, NewDatabaseError(m.Version, "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	statements := splitStatements(m.SQL)
	if len(statements) == 0 {
		err = NewMigrationError(m.Version, m.FilePath, "parse SQL", ErrInvalidMigrationFile)
		return 0, err
	}
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			err = NewDatabaseError(m.Version, "execute statement", err)
			return 0, err
		}
	}

	elapsed := e.now().Sub(started)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at, checksum, execution_time_ms) VALUES (?, ?, ?, ?)`,
		m.Version, e.now().UTC().Format(time.RFC3339), m.Checksum, elapsed.Milliseconds())
	if err != nil {
		err = NewDatabaseError(m.Version, "record migration", err)
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		err = NewDatabaseError(m.Version, "commit transaction", err)
		return 0, err
	}
	return elapsed, nil
}

// Applied returns every recorded migration ordered by version.
func (e *SQLiteExecutor) Applied(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT version, applied_at, checksum, execution_time_ms FROM schema_migrations ORDER BY CAST(version AS INTEGER) ASC`)
	if err != nil {
		return nil, NewDatabaseError("", "list applied migrations", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			row       AppliedMigration
			appliedAt string
			elapsedMs int64
		)
		if err := rows.Scan(&row.Version, &appliedAt, &row.Checksum, &elapsedMs); err != nil {
			return nil, NewDatabaseError("", "scan applied migration", err)
		}
		row.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt)
		row.ExecutionTime = time.Duration(elapsedMs) * time.Millisecond
		applied = append(applied, row)
	}
	if err := rows.Err(); err != nil {
		return nil, NewDatabaseError("", "iterate applied migrations", err)
	}
	return applied, nil
}

// IsVersionApplied reports whether version has been recorded.
func (e *SQLiteExecutor) IsVersionApplied(ctx context.Context, version string) (bool, error) {
	var exists int
	err := e.db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ? LIMIT 1`, version).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, NewDatabaseError(version, "check version applied", err)
	}
	return true, nil
}
