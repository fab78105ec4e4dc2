// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/spraakbanken/karp-backend/internal/dbx"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/migrations"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/resources"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes schema management hooks.
type PostgresRepositoryManager struct{}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}

// Resources returns a resources.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Resources(db dbx.DBTX) resources.Repository {
	return resources.NewPostgresRepository(db)
}

// Entries returns an entries.Repository bound to the provided DBTX, scoped to
// one resource's tables.
func (m *PostgresRepositoryManager) Entries(db dbx.DBTX, resourceID string, cfg domain.ResourceConfig) entries.Repository {
	return entries.NewPostgresRepository(db, resourceID, cfg)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// columnType maps a field type to the column type used when the field is
// materialized as a runtime or child-table column.
func columnType(fieldType string) string {
	switch fieldType {
	case "integer":
		return "BIGINT"
	case "number":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// CreateEntryTables creates the history table, the runtime projection table
// and one child table per collection-valued referenceable field for a
// resource. Identifiers are derived from the already validated resource
// config, so string interpolation is safe here.
func (m *PostgresRepositoryManager) CreateEntryTables(ctx context.Context, db dbx.DBTX, cfg domain.ResourceConfig) error {
	history := entries.HistoryTableName(cfg.ResourceID)
	runtime := entries.RuntimeTableName(cfg.ResourceID)

	stmts := []string{fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			history_id BIGSERIAL PRIMARY KEY,
			id UUID NOT NULL,
			entry_id TEXT NOT NULL,
			version BIGINT NOT NULL,
			last_modified TIMESTAMPTZ NOT NULL,
			last_modified_by TEXT NOT NULL,
			body JSONB NOT NULL,
			status VARCHAR(12) NOT NULL,
			message TEXT,
			op VARCHAR(12) NOT NULL,
			discarded BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (id, version)
		)`, history)}

	runtimeCols := []string{
		"entry_id TEXT PRIMARY KEY",
		fmt.Sprintf("history_id BIGINT NOT NULL REFERENCES %s (history_id)", history),
		"id UUID NOT NULL",
		"discarded BOOLEAN NOT NULL DEFAULT FALSE",
	}
	for _, field := range cfg.Referenceable {
		fieldCfg := cfg.Fields[field]
		if fieldCfg.Collection {
			continue
		}
		runtimeCols = append(runtimeCols, fmt.Sprintf("%s %s", field, columnType(fieldCfg.Type)))
	}
	stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		runtime, strings.Join(runtimeCols, ", ")))

	for _, field := range cfg.Referenceable {
		fieldCfg := cfg.Fields[field]
		if !fieldCfg.Collection {
			continue
		}
		child := entries.ChildTableName(cfg.ResourceID, field)
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				entry_id TEXT NOT NULL REFERENCES %s (entry_id),
				%s %s
			)`, child, runtime, field, columnType(fieldCfg.Type)),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
				child, field, child, field),
		)
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return &domain.RepositoryError{Op: "create entry tables", Err: err}
		}
	}
	return nil
}
