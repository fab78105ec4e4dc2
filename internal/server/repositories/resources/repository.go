// Package resources persists resource definitions and their publication
// state, versioned with the same append-only discipline as entries.
package resources

import (
	"context"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Repository persists resource definition rows, one per (resourceID, version).
//
// Read paths signal absence with domain.ErrNotFound.
type Repository interface {
	// Put appends the resource's current state as a new version row.
	Put(ctx context.Context, r *domain.Resource) error

	// ByResourceID returns the resource at the given version, or the latest
	// non-discarded version when version is 0.
	ByResourceID(ctx context.Context, resourceID string, version int64) (*domain.Resource, error)

	// Published returns the published version of every resource.
	Published(ctx context.Context) ([]*domain.Resource, error)

	// ClearPublished removes the published mark from every version of the
	// resource. Used inside the publish unit of work to keep at most one
	// version published.
	ClearPublished(ctx context.Context, resourceID string) error

	// ResourceIDs enumerates all known resource ids.
	ResourceIDs(ctx context.Context) ([]string, error)
}
