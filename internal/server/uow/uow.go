// Package uow provides transaction-scoped access to the repositories. A unit
// of work runs a function against repositories bound to one transaction and
// commits when the function returns nil, rolling back otherwise. Events
// collected during a command are dispatched only after the commit.
package uow

import (
	"context"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/resources"
)

// ResourceTx is the view of storage a resource-level unit of work exposes.
type ResourceTx interface {
	Resources() resources.Repository

	// CreateEntryTables provisions the per-resource entry storage. Called
	// when a resource is first created so that the tables appear and
	// disappear atomically with the definition row.
	CreateEntryTables(ctx context.Context, cfg domain.ResourceConfig) error
}

// ResourceUnitOfWork scopes work on resource definitions to one transaction.
type ResourceUnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, tx ResourceTx) error) error
}

// EntryUnitOfWork scopes work on one resource's entries to one transaction.
// The resource definition is resolved inside the same transaction and handed
// to fn; a missing resource fails the unit of work with
// domain.ResourceNotFoundError before fn runs.
type EntryUnitOfWork interface {
	Do(ctx context.Context, resourceID string, fn func(ctx context.Context, res *domain.Resource, repo entries.Repository) error) error
}
