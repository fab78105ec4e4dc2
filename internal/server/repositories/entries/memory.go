package entries

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/memstore"
)

// MemoryRepository implements Repository over in-memory state. It mirrors the
// Postgres semantics row for row and backs the hermetic handler and bus
// tests.
type MemoryRepository struct {
	resourceID string
	state      *memstore.ResourceEntries
}

// NewMemoryRepository binds a repository to one resource's in-memory storage.
func NewMemoryRepository(resourceID string, state *memstore.ResourceEntries) *MemoryRepository {
	return &MemoryRepository{resourceID: resourceID, state: state}
}

func (r *MemoryRepository) appendHistory(e *domain.Entry) int64 {
	r.state.History = append(r.state.History, memstore.CloneEntry(*e))
	return int64(len(r.state.History))
}

func (r *MemoryRepository) Put(_ context.Context, e *domain.Entry) error {
	historyID := r.appendHistory(e)
	r.state.Runtime[e.EntryID] = &memstore.RuntimeRow{
		EntryID:   e.EntryID,
		HistoryID: historyID,
		ID:        e.ID,
		Discarded: e.Discarded,
	}
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, e *domain.Entry) error {
	row, ok := r.state.Runtime[e.EntryID]
	if !ok {
		return &domain.RepositoryError{Op: "update", Err: fmt.Errorf("could not find %q", e.EntryID)}
	}
	historyID := r.appendHistory(e)
	row.HistoryID = historyID
	row.ID = e.ID
	row.Discarded = e.Discarded
	return nil
}

func (r *MemoryRepository) Move(ctx context.Context, e *domain.Entry, oldEntryID string) error {
	row, ok := r.state.Runtime[oldEntryID]
	if !ok {
		return &domain.RepositoryError{Op: "move", Err: fmt.Errorf("could not find %q", oldEntryID)}
	}
	row.Discarded = true
	return r.Put(ctx, e)
}

func (r *MemoryRepository) Delete(_ context.Context, e *domain.Entry) error {
	row, ok := r.state.Runtime[e.EntryID]
	if !ok {
		return &domain.RepositoryError{Op: "delete", Err: fmt.Errorf("could not find %q", e.EntryID)}
	}
	historyID := r.appendHistory(e)
	row.HistoryID = historyID
	row.Discarded = true
	return nil
}

func (r *MemoryRepository) ByEntryID(_ context.Context, entryID string, version int64) (*domain.Entry, error) {
	var best *domain.Entry
	for i := range r.state.History {
		e := &r.state.History[i]
		if e.EntryID != entryID {
			continue
		}
		if version > 0 {
			if e.Version == version {
				return cloned(e), nil
			}
			continue
		}
		// Latest insertion wins; a re-created entry restarts at version 1.
		best = e
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return cloned(best), nil
}

func (r *MemoryRepository) ByID(_ context.Context, id uuid.UUID, q ByIDQuery) (*domain.Entry, error) {
	var matches []*domain.Entry
	for i := range r.state.History {
		e := &r.state.History[i]
		if e.ID != id {
			continue
		}
		switch {
		case q.Version > 0:
			if e.Version == q.Version {
				return cloned(e), nil
			}
			continue
		case q.AfterDate != nil:
			if e.LastModified.Before(*q.AfterDate) {
				continue
			}
		case q.BeforeDate != nil:
			if e.LastModified.After(*q.BeforeDate) {
				continue
			}
		}
		matches = append(matches, e)
	}
	if q.Version > 0 || len(matches) == 0 {
		return nil, domain.ErrNotFound
	}
	oldestFirst := q.OldestFirst || q.AfterDate != nil
	if q.BeforeDate != nil {
		oldestFirst = false
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if oldestFirst {
			return matches[i].LastModified.Before(matches[j].LastModified)
		}
		return matches[i].LastModified.After(matches[j].LastModified)
	})
	return cloned(matches[0]), nil
}

func (r *MemoryRepository) ByReferenceable(_ context.Context, filters map[string]any) ([]*domain.Entry, error) {
	for field := range filters {
		if !r.state.Config.IsReferenceable(field) {
			return nil, &domain.NonExistingFieldError{Field: field}
		}
	}

	var out []*domain.Entry
	for _, row := range r.state.Runtime {
		if row.Discarded {
			continue
		}
		e := &r.state.History[row.HistoryID-1]
		if matchesFilters(r.state.Config, e.Body, filters) {
			out = append(out, cloned(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func matchesFilters(cfg domain.ResourceConfig, body map[string]any, filters map[string]any) bool {
	for field, want := range filters {
		if cfg.Fields[field].Collection {
			values, ok := body[field].([]any)
			if !ok {
				return false
			}
			found := false
			for _, v := range values {
				if v == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if body[field] != want {
			return false
		}
	}
	return true
}

func (r *MemoryRepository) HistoryByEntryID(_ context.Context, entryID string) ([]*domain.Entry, error) {
	var out []*domain.Entry
	for i := range r.state.History {
		e := &r.state.History[i]
		if e.EntryID == entryID {
			out = append(out, cloned(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *MemoryRepository) GetHistory(_ context.Context, q HistoryQuery) ([]*domain.Entry, int64, error) {
	var matches []*domain.Entry
	for i := range r.state.History {
		e := &r.state.History[i]
		if q.UserID != "" && e.LastModifiedBy != q.UserID {
			continue
		}
		if q.EntryID != "" && e.EntryID != q.EntryID {
			continue
		}
		if q.EntryID != "" && q.FromVersion > 0 {
			if e.Version < q.FromVersion {
				continue
			}
		} else if q.FromDate != nil && e.LastModified.Before(*q.FromDate) {
			continue
		}
		if q.EntryID != "" && q.ToVersion > 0 {
			if e.Version >= q.ToVersion {
				continue
			}
		} else if q.ToDate != nil && e.LastModified.After(*q.ToDate) {
			continue
		}
		matches = append(matches, cloned(e))
	}

	total := int64(len(matches))
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset >= len(matches) {
		return nil, total, nil
	}
	end := q.Offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[q.Offset:end], total, nil
}

func (r *MemoryRepository) EntryIDs(_ context.Context) ([]string, error) {
	var out []string
	for id, row := range r.state.Runtime {
		if !row.Discarded {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryRepository) AllEntries(_ context.Context) ([]*domain.Entry, error) {
	var out []*domain.Entry
	for _, row := range r.state.Runtime {
		if row.Discarded {
			continue
		}
		out = append(out, cloned(&r.state.History[row.HistoryID-1]))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func cloned(e *domain.Entry) *domain.Entry {
	cp := memstore.CloneEntry(*e)
	return &cp
}
