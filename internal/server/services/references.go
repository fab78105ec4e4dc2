package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// Ref is one flattened reference declaration: the field Field of resource
// ResourceID (at ResourceVersion) participates in the relationship. Config is
// the declaring field's config; it is unset for refs contributed by a
// multi_ref function.
type Ref struct {
	ResourceID      string
	ResourceVersion int64
	Field           string
	Config          *domain.FieldConfig
}

// ReferencedEntry is one resolved relation target.
type ReferencedEntry struct {
	ResourceID      string
	ResourceVersion int64
	Entry           *domain.Entry
}

// ReferenceResolver computes cross-resource reference maps from schema
// metadata and fetches related entries. Resources are independent schema
// spaces; nothing at the storage layer enforces these edges, so resolution is
// advisory and tolerates dangling ids.
type ReferenceResolver struct {
	resources uow.ResourceUnitOfWork
	entries   uow.EntryUnitOfWork
}

func NewReferenceResolver(resourceUOW uow.ResourceUnitOfWork, entryUOW uow.EntryUnitOfWork) *ReferenceResolver {
	return &ReferenceResolver{resources: resourceUOW, entries: entryUOW}
}

type refKey struct {
	resourceID string
	version    int64
}

type refMap map[refKey]map[string]*domain.FieldConfig

func (m refMap) add(resourceID string, version int64, field string, cfg *domain.FieldConfig) {
	key := refKey{resourceID: resourceID, version: version}
	if m[key] == nil {
		m[key] = make(map[string]*domain.FieldConfig)
	}
	m[key][field] = cfg
}

func (m refMap) flatten() []Ref {
	var out []Ref
	for key, fields := range m {
		for field, cfg := range fields {
			out = append(out, Ref{
				ResourceID:      key.resourceID,
				ResourceVersion: key.version,
				Field:           field,
				Config:          cfg,
			})
		}
	}
	return out
}

// GetRefs scans this resource's field declarations and every other published
// resource's declarations, returning the forward refs (fields of this
// resource pointing elsewhere) and the backward refs (fields elsewhere
// pointing here). version 0 means the latest version.
func (r *ReferenceResolver) GetRefs(ctx context.Context, resourceID string, version int64) (forward, backward []Ref, err error) {
	forwardMap := make(refMap)
	backwardMap := make(refMap)

	err = r.resources.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		src, err := tx.Resources().ByResourceID(ctx, resourceID, version)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.ResourceNotFoundError{ResourceID: resourceID, Version: version}
			}
			return err
		}

		for fieldName, field := range src.Config.Fields {
			field := field
			switch {
			case field.Ref != nil:
				if field.Ref.ResourceID == "" {
					// A self reference is visible from both directions.
					backwardMap.add(resourceID, version, fieldName, &field)
					forwardMap.add(resourceID, version, fieldName, &field)
				} else {
					forwardMap.add(field.Ref.ResourceID, field.Ref.ResourceVersion, fieldName, &field)
				}
			case field.Function != nil && field.Function.MultiRef != nil:
				virtual := field.Function.MultiRef
				if virtual.ResourceID != "" {
					backwardMap.add(virtual.ResourceID, virtual.ResourceVersion, virtual.Field, nil)
				} else {
					backwardMap.add(resourceID, version, virtual.Field, nil)
				}
			}
		}

		published, err := tx.Resources().Published(ctx)
		if err != nil {
			return err
		}
		for _, other := range published {
			if other.ResourceID == resourceID {
				continue
			}
			for fieldName, field := range other.Config.Fields {
				field := field
				if field.Ref != nil && field.Ref.ResourceID == resourceID && field.Ref.ResourceVersion == version {
					backwardMap.add(other.ResourceID, other.Version, fieldName, &field)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return forwardMap.flatten(), backwardMap.flatten(), nil
}

// GetReferencedEntries resolves every relation of one entry: backward refs by
// filtering the pointing resource's runtime projection on entryID, forward
// refs by following the ids stored in the entry's own fields. Dangling
// forward ids yield no record rather than an error.
func (r *ReferenceResolver) GetReferencedEntries(ctx context.Context, resourceID string, version int64, entryID string) ([]ReferencedEntry, error) {
	forward, backward, err := r.GetRefs(ctx, resourceID, version)
	if err != nil {
		return nil, err
	}

	var src *domain.Entry
	err = r.entries.Do(ctx, resourceID, func(ctx context.Context, res *domain.Resource, repo entries.Repository) error {
		e, err := repo.ByEntryID(ctx, entryID, version)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.EntryNotFoundError{
					ResourceID:      resourceID,
					EntryID:         entryID,
					ResourceVersion: res.Version,
				}
			}
			return err
		}
		src = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []ReferencedEntry

	for _, ref := range backward {
		ref := ref
		err := r.entries.Do(ctx, ref.ResourceID, func(ctx context.Context, _ *domain.Resource, repo entries.Repository) error {
			pointing, err := repo.ByReferenceable(ctx, map[string]any{ref.Field: entryID})
			if err != nil {
				return err
			}
			for _, e := range pointing {
				out = append(out, ReferencedEntry{
					ResourceID:      ref.ResourceID,
					ResourceVersion: ref.ResourceVersion,
					Entry:           e,
				})
			}
			return nil
		})
		if err != nil {
			var notFound *domain.ResourceNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
	}

	for _, ref := range forward {
		ids := referencedIDs(src.Body[ref.Field], ref.Config)
		if len(ids) == 0 {
			continue
		}
		ref := ref
		err := r.entries.Do(ctx, ref.ResourceID, func(ctx context.Context, _ *domain.Resource, repo entries.Repository) error {
			for _, id := range ids {
				e, err := repo.ByEntryID(ctx, id, ref.ResourceVersion)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						continue
					}
					return err
				}
				out = append(out, ReferencedEntry{
					ResourceID:      ref.ResourceID,
					ResourceVersion: ref.ResourceVersion,
					Entry:           e,
				})
			}
			return nil
		})
		if err != nil {
			var notFound *domain.ResourceNotFoundError
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
	}

	return out, nil
}

// referencedIDs normalizes the value of a ref-declared field to a list of
// external entry ids.
func referencedIDs(value any, cfg *domain.FieldConfig) []string {
	if value == nil {
		return nil
	}
	values := []any{value}
	if cfg != nil && cfg.Collection {
		list, ok := value.([]any)
		if !ok {
			return nil
		}
		values = list
	}
	var out []string
	for _, v := range values {
		switch id := v.(type) {
		case string:
			out = append(out, id)
		case float64:
			out = append(out, strconv.FormatFloat(id, 'f', -1, 64))
		}
	}
	return out
}
