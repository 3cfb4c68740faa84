package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dataops-sh/snowdeck/internal/core/deploy"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) the journal database and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Store Operations
// =============================================================================

// RecordRun appends a finished run and its outcomes in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, report deploy.BatchReport) error {
	run, outcomes := runFromReport(report)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("RecordRun", run.ID, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO runs (id, branch, mode, status, reason, started_at, duration_ms, deployed, skipped, failed)
		VALUES (:id, :branch, :mode, :status, :reason, :started_at, :duration_ms, :deployed, :skipped, :failed)`
	if _, err := tx.NamedExecContext(ctx, insertRun, run); err != nil {
		return NewStoreError("RecordRun", run.ID, "failed to insert run", err)
	}

	const insertOutcome = `
		INSERT INTO run_outcomes (run_id, app, status, skip_reason, reason, duration_ms)
		VALUES (:run_id, :app, :status, :skip_reason, :reason, :duration_ms)`
	for _, o := range outcomes {
		if _, err := tx.NamedExecContext(ctx, insertOutcome, o); err != nil {
			return NewStoreError("RecordRun", run.ID, fmt.Sprintf("failed to insert outcome for %s", o.App), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("RecordRun", run.ID, "failed to commit", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var runs []RunRecord
	const query = `SELECT * FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, NewStoreError("ListRuns", "", "query failed", err)
	}
	return runs, nil
}

// GetRunOutcomes returns the per-app outcomes of one run, sorted by app.
func (s *SQLiteStore) GetRunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID); err != nil {
		return nil, NewStoreError("GetRunOutcomes", runID, "query failed", err)
	}
	if exists == 0 {
		return nil, NewStoreError("GetRunOutcomes", runID, "no such run", ErrNotFound)
	}

	var outcomes []OutcomeRecord
	const query = `SELECT * FROM run_outcomes WHERE run_id = ? ORDER BY app`
	if err := s.db.SelectContext(ctx, &outcomes, query, runID); err != nil {
		return nil, NewStoreError("GetRunOutcomes", runID, "query failed", err)
	}
	return outcomes, nil
}

var _ Store = (*SQLiteStore)(nil)
