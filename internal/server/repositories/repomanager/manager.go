package repomanager

import (
	"context"
	"database/sql"

	"github.com/spraakbanken/karp-backend/internal/dbx"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/resources"
)

// RepositoryManager vends repositories bound to a DBTX and owns schema
// management: shared-table migrations plus the per-resource entry tables
// created when a resource is set up.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Resources(db dbx.DBTX) resources.Repository
	Entries(db dbx.DBTX, resourceID string, cfg domain.ResourceConfig) entries.Repository
	CreateEntryTables(ctx context.Context, db dbx.DBTX, cfg domain.ResourceConfig) error
}
