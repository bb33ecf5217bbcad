package migration

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
)

// Manager applies pending migrations from a file system.
type Manager struct {
	executor *SQLiteExecutor
	fsys     fs.FS
	dir      string
	logger   *slog.Logger
}

// NewManager creates a Manager reading migrations from dir within fsys.
func NewManager(db *sql.DB, fsys fs.FS, dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		executor: NewSQLiteExecutor(db),
		fsys:     fsys,
		dir:      dir,
		logger:   logger.With("component", "migration"),
	}
}

// Run applies every pending migration in version order and stops at the
// first failure.
func (m *Manager) Run(ctx context.Context) error {
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "schema version",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, migration := range status.Pending {
		elapsed, err := m.executor.Apply(ctx, migration)
		if err != nil {
			m.logger.ErrorContext(ctx, "migration failed",
				"version", migration.Version,
				"file", migration.FilePath,
				"error", err,
			)
			return NewMigrationError(migration.Version, migration.FilePath, "execute migration",
				fmt.Errorf("%w: %w", ErrMigrationFailed, err))
		}
		m.logger.InfoContext(ctx, "migration applied",
			"version", migration.Version,
			"description", migration.Description,
			"position", i+1,
			"of", len(status.Pending),
			"duration", elapsed,
		)
	}
	return nil
}

// Status compares the migration files against the version table. Applied
// files whose checksum changed are reported as ErrChecksumMismatch.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}

	migrations, err := Scan(m.fsys, m.dir)
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	status := Status{Applied: applied}
	if len(applied) > 0 {
		status.CurrentVersion = applied[len(applied)-1].Version
	}
	for _, migration := range migrations {
		recorded, ok := byVersion[migration.Version]
		if !ok {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if recorded.Checksum != "" && recorded.Checksum != migration.Checksum {
			return Status{}, NewMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	return status, nil
}
