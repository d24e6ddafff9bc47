// Package store is the agent's SQLite-backed persistence layer:
// page cache metadata, upload work items, the singleton user record,
// and per-profile user settings, plus the schema migration engine.
//
// The schema and the migration algorithm are grounded on
// original_source/src/ps/agent/database/mod.rs's literal
// CREATE TABLE statements and run_migrations loop (embedded scripts
// applied in order, one PRAGMA user_version bump per script index),
// not on the teacher's GORM AutoMigrate or golang-migrate usage —
// see DESIGN.md for why those two mechanisms were dropped. Connection
// handling (WAL mode, busy_timeout, pooling) follows the teacher's
// pkg/controlplane/store.GORMStore conventions, adapted to
// database/sql directly.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pennsieve/agent/internal/agenterrors"
	"github.com/pennsieve/agent/internal/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const bootstrapSchema = `
CREATE TABLE IF NOT EXISTS page_record (
	id VARCHAR(255) PRIMARY KEY,
	nan_filled BOOLEAN NOT NULL,
	complete BOOLEAN NOT NULL,
	size INTEGER NOT NULL,
	last_used VARCHAR(255) NOT NULL
);
CREATE INDEX IF NOT EXISTS page_record_i1 ON page_record (nan_filled, last_used);

CREATE TABLE IF NOT EXISTS user_record (
	inner_id INTEGER PRIMARY KEY,
	id VARCHAR(255) NOT NULL,
	name VARCHAR(255) NOT NULL,
	session_token VARCHAR(255) NOT NULL,
	profile VARCHAR(255) NOT NULL,
	environment VARCHAR(10) NOT NULL,
	organization_id VARCHAR(255) NOT NULL,
	organization_name VARCHAR(255) NOT NULL,
	encryption_key VARCHAR(255) NOT NULL,
	updated_at VARCHAR(255) NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	user_id VARCHAR(255) NOT NULL,
	profile VARCHAR(255) NOT NULL,
	use_dataset_id VARCHAR(255),
	PRIMARY KEY (user_id, profile)
);

CREATE TABLE IF NOT EXISTS upload_record (
	id INTEGER PRIMARY KEY,
	file_path TEXT NOT NULL,
	dataset_id VARCHAR(255) NOT NULL,
	package_id VARCHAR(255),
	import_id VARCHAR(255) NOT NULL,
	progress INTEGER NOT NULL,
	status VARCHAR(255) NOT NULL,
	created_at VARCHAR(255) NOT NULL,
	updated_at VARCHAR(255) NOT NULL
);
CREATE INDEX IF NOT EXISTS upload_record_i1 ON upload_record (import_id, file_path);
CREATE INDEX IF NOT EXISTS upload_record_i2 ON upload_record (status, created_at);

CREATE TABLE IF NOT EXISTS agent_updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	checked_at VARCHAR(255) NOT NULL
);
CREATE INDEX IF NOT EXISTS agent_updates_i1 ON agent_updates (checked_at);
`

// Store is the agent's handle to its SQLite database. It is safe for
// concurrent use; *sql.DB already pools connections internally, which
// is the "cheap to clone" handle spec.md §5 describes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path,
// applies the bootstrap schema, and runs migrations unless
// disableMigrations is set (mirroring the original's DISABLE_MIGRATIONS
// environment flag, used for repair workflows).
func Open(ctx context.Context, path string, disableMigrations bool) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "opening sqlite database", err)
	}
	db.SetMaxOpenConns(8)

	s := &Store{db: db}

	if _, err := db.ExecContext(ctx, bootstrapSchema); err != nil {
		db.Close()
		return nil, agenterrors.Wrap(agenterrors.CodeIO, "applying bootstrap schema", err)
	}

	if !disableMigrations {
		if err := s.runMigrations(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Info("schema migrations disabled by DISABLE_MIGRATIONS")
	}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrationScript is one embedded, ordered migration file.
type migrationScript struct {
	name string
	sql  string
}

func loadMigrations() ([]migrationScript, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scripts := make([]migrationScript, 0, len(names))
	for _, name := range names {
		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		scripts = append(scripts, migrationScript{name: name, sql: string(content)})
	}
	return scripts, nil
}

// runMigrations applies scripts[i] if the current schema version is
// <= i, then sets the schema version to i+1. This is the original
// agent's exact algorithm (src/ps/agent/database/mod.rs:run_migrations):
// a script is skipped once the version has advanced past its index.
func (s *Store) runMigrations(ctx context.Context) error {
	scripts, err := loadMigrations()
	if err != nil {
		return err
	}

	for i, script := range scripts {
		currentVersion, err := s.getSchemaVersion(ctx)
		if err != nil {
			return err
		}

		if currentVersion > i {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return agenterrors.Wrap(agenterrors.CodeIO, "beginning migration transaction", err)
		}
		if _, err := tx.ExecContext(ctx, script.sql); err != nil {
			tx.Rollback()
			return &MigrationError{Version: i, SQL: script.sql, Cause: err}
		}
		if err := tx.Commit(); err != nil {
			return &MigrationError{Version: i, SQL: script.sql, Cause: err}
		}

		if err := s.setSchemaVersion(ctx, i+1); err != nil {
			return err
		}
		logger.Info("applied schema migration", "name", script.name, "version", i+1)
	}

	return nil
}

// MigrationError carries the failed script's version index, its SQL,
// and the underlying driver error, per spec.md §4.1.
type MigrationError struct {
	Version int
	SQL     string
	Cause   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d failed: %v", e.Version, e.Cause)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	row := s.db.QueryRowContext(ctx, "PRAGMA user_version")
	if err := row.Scan(&version); err != nil {
		return 0, agenterrors.Wrap(agenterrors.CodeIO, "reading schema version", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	// PRAGMA does not accept bound parameters; version is an internal
	// int we control, never user input.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "setting schema version", err)
	}
	return nil
}

// SchemaVersion exposes the current PRAGMA user_version, for
// diagnostics and tests.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return s.getSchemaVersion(ctx)
}

func nowTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
