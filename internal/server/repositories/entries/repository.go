// Package entries provides per-resource entry repositories: an append-only
// history of entry versions plus a mutable runtime projection used for
// lookups and referenceable-field filters.
package entries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// ByIDQuery selects one history row for an identity. With no selector set,
// the most-recent-by-time row wins.
type ByIDQuery struct {
	Version     int64
	AfterDate   *time.Time
	BeforeDate  *time.Time
	OldestFirst bool
}

// HistoryQuery filters and pages the history log.
type HistoryQuery struct {
	UserID      string
	EntryID     string
	FromDate    *time.Time
	ToDate      *time.Time
	FromVersion int64
	ToVersion   int64
	Offset      int
	Limit       int
}

// Repository persists the entries of one resource.
//
// Read paths signal absence with domain.ErrNotFound, never with a business
// fault; callers translate where business-required. Write paths fail with
// *domain.RepositoryError on storage-level trouble.
type Repository interface {
	// Put inserts a new history row and a new runtime-projection row.
	Put(ctx context.Context, e *domain.Entry) error

	// Update inserts a history row for the incremented version and updates
	// the projection row in place. The projection row must already exist.
	Update(ctx context.Context, e *domain.Entry) error

	// Move handles an entry-id rename: the projection row under oldEntryID is
	// marked discarded and a fresh row is inserted under the new id.
	Move(ctx context.Context, e *domain.Entry, oldEntryID string) error

	// Delete appends a history row recording the discard and marks the
	// projection row discarded. Callers must check Discarded before issuing
	// a delete; the repository does not re-validate.
	Delete(ctx context.Context, e *domain.Entry) error

	// ByEntryID returns the entry from history, most recent version unless a
	// specific version (> 0) is requested.
	ByEntryID(ctx context.Context, entryID string, version int64) (*domain.Entry, error)

	// ByID is an identity-keyed history lookup with time/version filters.
	ByID(ctx context.Context, id uuid.UUID, q ByIDQuery) (*domain.Entry, error)

	// ByReferenceable filters the runtime projection (and its collection
	// child tables) by declared referenceable fields. Unknown filter keys
	// fault with *domain.NonExistingFieldError.
	ByReferenceable(ctx context.Context, filters map[string]any) ([]*domain.Entry, error)

	// HistoryByEntryID returns all history rows for an entry id, oldest first.
	HistoryByEntryID(ctx context.Context, entryID string) ([]*domain.Entry, error)

	// GetHistory returns a filtered page of history rows plus the total count.
	GetHistory(ctx context.Context, q HistoryQuery) ([]*domain.Entry, int64, error)

	// EntryIDs enumerates the ids of all non-discarded entries.
	EntryIDs(ctx context.Context) ([]string, error)

	// AllEntries returns the latest version of every non-discarded entry.
	AllEntries(ctx context.Context) ([]*domain.Entry, error)
}
