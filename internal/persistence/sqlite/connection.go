package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Config describes how to open the database.
type Config struct {
	// DSN is a file path, "file:" URI or ":memory:".
	DSN string
	// BusyTimeout bounds how long writers wait for the database lock.
	BusyTimeout time.Duration
	// JournalMode is the SQLite journal mode; WAL when empty.
	JournalMode string
}

// openDB opens the database with the planner's pragmas. SQLite allows a
// single writer, so the pool is capped at one connection.
func openDB(cfg Config) (*sql.DB, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite: empty DSN")
	}
	if !isMemory(dsn) && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create database directory: %w", err)
		}
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	journal := cfg.JournalMode
	if journal == "" {
		journal = "WAL"
	}
	if isMemory(dsn) {
		journal = "MEMORY"
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	dsn += fmt.Sprintf("%s_pragma=busy_timeout(%d)&_pragma=journal_mode(%s)&_pragma=synchronous(NORMAL)",
		separator, busy.Milliseconds(), journal)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// TransactionFunc is executed inside a transaction.
type TransactionFunc func(tx *sql.Tx) error

// withTransaction commits when fn succeeds and rolls back otherwise.
func withTransaction(ctx context.Context, db *sql.DB, fn TransactionFunc) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit transaction: %w", err)
	}
	return nil
}
