// Package migration applies versioned schema changes to the planner's SQLite
// database.
//
// Migrations are SQL files named {version}_{description}.sql (for example
// "001_kv_entries.sql") read from an fs.FS, normally the set embedded in the
// sqlite package. Applied versions are tracked in a schema_migrations table,
// together with a checksum of the file, so every migration runs exactly once
// and edits to an already applied file are detected.
//
// Example usage:
//
//	manager := migration.NewManager(db, migrationFS, "migrations", logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
