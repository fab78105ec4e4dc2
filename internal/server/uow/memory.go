package uow

import (
	"context"
	"errors"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/memstore"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/resources"
)

// MemoryResourceUnitOfWork runs resource work against a cloned in-memory
// state, swapping it in only when fn succeeds.
type MemoryResourceUnitOfWork struct {
	store *memstore.Store
}

func NewMemoryResourceUnitOfWork(store *memstore.Store) *MemoryResourceUnitOfWork {
	return &MemoryResourceUnitOfWork{store: store}
}

type memoryResourceTx struct {
	state *memstore.State
}

func (t *memoryResourceTx) Resources() resources.Repository {
	return resources.NewMemoryRepository(t.state)
}

func (t *memoryResourceTx) CreateEntryTables(_ context.Context, cfg domain.ResourceConfig) error {
	t.state.Ensure(cfg.ResourceID, cfg)
	return nil
}

func (u *MemoryResourceUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, tx ResourceTx) error) error {
	return u.store.RunInTransaction(ctx, func(state *memstore.State) error {
		return fn(ctx, &memoryResourceTx{state: state})
	})
}

// MemoryEntryUnitOfWork is the in-memory counterpart of SQLEntryUnitOfWork.
type MemoryEntryUnitOfWork struct {
	store *memstore.Store
}

func NewMemoryEntryUnitOfWork(store *memstore.Store) *MemoryEntryUnitOfWork {
	return &MemoryEntryUnitOfWork{store: store}
}

func (u *MemoryEntryUnitOfWork) Do(ctx context.Context, resourceID string, fn func(ctx context.Context, res *domain.Resource, repo entries.Repository) error) error {
	return u.store.RunInTransaction(ctx, func(state *memstore.State) error {
		res, err := resources.NewMemoryRepository(state).ByResourceID(ctx, resourceID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.ResourceNotFoundError{ResourceID: resourceID}
			}
			return err
		}
		repo := entries.NewMemoryRepository(resourceID, state.Ensure(resourceID, res.Config))
		return fn(ctx, res, repo)
	})
}
