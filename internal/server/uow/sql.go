package uow

import (
	"context"
	"database/sql"
	"errors"

	"github.com/spraakbanken/karp-backend/internal/dbx"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/repomanager"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/resources"
)

// SQLResourceUnitOfWork runs resource work inside a database transaction.
type SQLResourceUnitOfWork struct {
	db  *sql.DB
	mgr repomanager.RepositoryManager
}

func NewSQLResourceUnitOfWork(db *sql.DB, mgr repomanager.RepositoryManager) *SQLResourceUnitOfWork {
	return &SQLResourceUnitOfWork{db: db, mgr: mgr}
}

type sqlResourceTx struct {
	tx  dbx.DBTX
	mgr repomanager.RepositoryManager
}

func (t *sqlResourceTx) Resources() resources.Repository {
	return t.mgr.Resources(t.tx)
}

func (t *sqlResourceTx) CreateEntryTables(ctx context.Context, cfg domain.ResourceConfig) error {
	return t.mgr.CreateEntryTables(ctx, t.tx, cfg)
}

func (u *SQLResourceUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx ResourceTx) error) error {
	return dbx.WithTx(ctx, u.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, &sqlResourceTx{tx: tx, mgr: u.mgr})
	})
}

// SQLEntryUnitOfWork runs entry work inside a database transaction, resolving
// the owning resource first so repositories see a consistent config.
type SQLEntryUnitOfWork struct {
	db  *sql.DB
	mgr repomanager.RepositoryManager
}

func NewSQLEntryUnitOfWork(db *sql.DB, mgr repomanager.RepositoryManager) *SQLEntryUnitOfWork {
	return &SQLEntryUnitOfWork{db: db, mgr: mgr}
}

func (u *SQLEntryUnitOfWork) Do(ctx context.Context, resourceID string, fn func(ctx context.Context, res *domain.Resource, repo entries.Repository) error) error {
	return dbx.WithTx(ctx, u.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		res, err := u.mgr.Resources(tx).ByResourceID(ctx, resourceID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.ResourceNotFoundError{ResourceID: resourceID}
			}
			return err
		}
		repo := u.mgr.Entries(tx, resourceID, res.Config)
		return fn(ctx, res, repo)
	})
}
