// Package postgresql provides PostgreSQL persistence implementation for workflows, workspaces and checkpoints.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories run statements on.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
	repositories
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Run migrations on initialization
	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return NewPersistenceWithDB(logger, database), nil
}

// NewPersistenceWithDB wraps an already opened and migrated database handle.
func NewPersistenceWithDB(logger *slog.Logger, db *sql.DB) *Persistence {
	return &Persistence{
		db:           db,
		logger:       logger,
		repositories: newRepositories(db, logger),
	}
}

// Transaction runs fn inside a database transaction.
func (p *Persistence) Transaction(ctx context.Context, fn persistence.TxFunc) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(ctx, newRepositories(tx, p.logger))
	if err != nil {
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			p.logger.ErrorContext(ctx, "failed to rollback transaction", "error", rollbackErr)
		}

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type repositories struct {
	workflows   *WorkflowRepository
	workspaces  *WorkspaceRepository
	checkpoints *CheckpointRepository
}

func newRepositories(db Querier, logger *slog.Logger) repositories {
	return repositories{
		workflows:   NewWorkflowRepository(db, logger),
		workspaces:  NewWorkspaceRepository(db, logger),
		checkpoints: NewCheckpointRepository(db, logger),
	}
}

func (r repositories) Workflows() persistence.WorkflowRepository {
	return r.workflows
}

func (r repositories) Workspaces() persistence.WorkspaceRepository {
	return r.workspaces
}

func (r repositories) Checkpoints() persistence.CheckpointRepository {
	return r.checkpoints
}

// withTx runs fn on db when it already is a transaction, or on a fresh transaction otherwise.
func withTx(ctx context.Context, db Querier, fn func(q Querier) error) error {
	conn, ok := db.(*sql.DB)
	if !ok {
		return fn(db)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(tx)
	if err != nil {
		_ = tx.Rollback()

		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
