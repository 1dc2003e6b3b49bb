package migration

import (
	"context"

	"scoregate/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the tournament schema the gateway reads and writes
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order. Every
// statement is idempotent.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	steps := []struct {
		name string
		fn   func(context.Context, *sqlx.DB) error
	}{
		{"rounds table", r.createRoundsTable},
		{"users table", r.createUsersTable},
		{"submissions table", r.createSubmissionsTable},
		{"originalities table", r.createOriginalitiesTable},
		{"concordances table", r.createConcordancesTable},
		{"indexes", r.createIndexes},
	}
	for _, step := range steps {
		if err := step.fn(ctx, db); err != nil {
			return errors.Wrapf(errors.DatabaseError("migration step failed", err), "failed to create %s", step.name)
		}
	}
	return nil
}

func (r *MigrationRunner) createRoundsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rounds (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tournament INTEGER NOT NULL,
			number INTEGER NOT NULL,
			dataset_path TEXT,
			inserted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (tournament, number)
		)
	`)
	return err
}

func (r *MigrationRunner) createUsersTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			username VARCHAR(100) UNIQUE NOT NULL,
			inserted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createSubmissionsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			round_id UUID NOT NULL REFERENCES rounds(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			selected BOOLEAN NOT NULL DEFAULT TRUE,
			consistency DOUBLE PRECISION,
			validation_logloss DOUBLE PRECISION,
			test_logloss DOUBLE PRECISION,
			validation_auroc DOUBLE PRECISION,
			test_auroc DOUBLE PRECISION,
			inserted_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createOriginalitiesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS originalities (
			submission_id UUID PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
			pending BOOLEAN NOT NULL DEFAULT TRUE,
			value BOOLEAN,
			reason VARCHAR(32),
			matched_id UUID,
			statistic DOUBLE PRECISION
		)
	`)
	return err
}

func (r *MigrationRunner) createConcordancesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS concordances (
			submission_id UUID PRIMARY KEY REFERENCES submissions(id) ON DELETE CASCADE,
			pending BOOLEAN NOT NULL DEFAULT TRUE,
			value BOOLEAN,
			mean_ks DOUBLE PRECISION
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_submissions_round_user ON submissions(round_id, user_id);
		CREATE INDEX IF NOT EXISTS idx_submissions_inserted_at ON submissions(inserted_at DESC);
	`)
	return err
}
