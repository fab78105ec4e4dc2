package resources

import (
	"context"
	"sort"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/memstore"
)

// MemoryRepository implements Repository over in-memory state.
type MemoryRepository struct {
	state *memstore.State
}

func NewMemoryRepository(state *memstore.State) *MemoryRepository {
	return &MemoryRepository{state: state}
}

func (r *MemoryRepository) Put(_ context.Context, res *domain.Resource) error {
	r.state.Resources = append(r.state.Resources, memstore.CloneResource(*res))
	r.state.Ensure(res.ResourceID, res.Config)
	return nil
}

func (r *MemoryRepository) ByResourceID(_ context.Context, resourceID string, version int64) (*domain.Resource, error) {
	var best *domain.Resource
	for i := range r.state.Resources {
		res := &r.state.Resources[i]
		if res.ResourceID != resourceID {
			continue
		}
		if version > 0 {
			if res.Version == version {
				return clonedResource(res), nil
			}
			continue
		}
		if res.Discarded {
			continue
		}
		if best == nil || res.Version > best.Version {
			best = res
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return clonedResource(best), nil
}

func (r *MemoryRepository) Published(_ context.Context) ([]*domain.Resource, error) {
	var out []*domain.Resource
	for i := range r.state.Resources {
		res := &r.state.Resources[i]
		if res.Discarded || res.IsPublished == nil || !*res.IsPublished {
			continue
		}
		out = append(out, clonedResource(res))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out, nil
}

func (r *MemoryRepository) ClearPublished(_ context.Context, resourceID string) error {
	for i := range r.state.Resources {
		res := &r.state.Resources[i]
		if res.ResourceID == resourceID && res.IsPublished != nil && *res.IsPublished {
			res.IsPublished = nil
		}
	}
	return nil
}

func (r *MemoryRepository) ResourceIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for i := range r.state.Resources {
		id := r.state.Resources[i].ResourceID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func clonedResource(res *domain.Resource) *domain.Resource {
	cp := memstore.CloneResource(*res)
	return &cp
}
