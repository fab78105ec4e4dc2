package services

import (
	"context"
	"errors"

	"github.com/wI2L/jsondiff"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/schema"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// ResourceHandlers serves the resource lifecycle commands and the startup
// event that re-provisions storage for resources created in earlier runs.
type ResourceHandlers struct {
	uow     uow.ResourceUnitOfWork
	schemas *schema.ValidatorRegistry
	log     logging.Logger
}

func NewResourceHandlers(resourceUOW uow.ResourceUnitOfWork, schemas *schema.ValidatorRegistry, log logging.Logger) *ResourceHandlers {
	return &ResourceHandlers{uow: resourceUOW, schemas: schemas, log: log}
}

// CreateResource handles domain.CreateResource.
func (h *ResourceHandlers) CreateResource(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.CreateResource)
	res, err := domain.NewResource(c.ID, c.Config, c.CreatedBy, c.Timestamp)
	if err != nil {
		return err
	}

	return h.uow.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		_, err := tx.Resources().ByResourceID(ctx, res.ResourceID, 0)
		switch {
		case err == nil:
			return &domain.IntegrityError{ResourceID: res.ResourceID}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if err := tx.Resources().Put(ctx, res); err != nil {
			return err
		}
		if err := tx.CreateEntryTables(ctx, res.Config); err != nil {
			return err
		}

		em.Queue(domain.ResourceCreated{
			ID:         res.ID,
			ResourceID: res.ResourceID,
			Version:    res.Version,
			User:       res.LastModifiedBy,
			Timestamp:  c.Timestamp,
		})
		return nil
	})
}

// UpdateResource handles domain.UpdateResource: a config change appends a new
// resource version and drops the cached validator for the old one.
func (h *ResourceHandlers) UpdateResource(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.UpdateResource)
	if err := c.Config.Validate(); err != nil {
		return err
	}

	return h.uow.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		res, err := tx.Resources().ByResourceID(ctx, c.ResourceID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.ResourceNotFoundError{ResourceID: c.ResourceID}
			}
			return err
		}

		diff, err := jsondiff.Compare(res.Config, c.Config)
		if err != nil {
			return err
		}
		if len(diff) == 0 {
			return &domain.NoChangesMadeError{ResourceID: c.ResourceID}
		}
		if res.Version != c.Version {
			return &domain.UpdateConflictError{ResourceID: c.ResourceID, Diff: diff}
		}

		res.Config = c.Config
		if c.Config.Name != "" {
			res.Name = c.Config.Name
		}
		if err := res.Stamp(c.User, c.Message, c.Timestamp); err != nil {
			return err
		}
		if err := tx.Resources().Put(ctx, res); err != nil {
			return err
		}
		// Provision tables for referenceable fields the new config added.
		if err := tx.CreateEntryTables(ctx, res.Config); err != nil {
			return err
		}
		h.schemas.Invalidate(c.ResourceID)

		em.Queue(domain.ResourceUpdated{
			ID:         res.ID,
			ResourceID: res.ResourceID,
			Version:    res.Version,
			User:       c.User,
			Message:    c.Message,
			Timestamp:  c.Timestamp,
		})
		return nil
	})
}

// PublishResource handles domain.PublishResource. The previous published
// version is cleared in the same unit of work, so at most one version of a
// resource id is ever published.
func (h *ResourceHandlers) PublishResource(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.PublishResource)
	return h.uow.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		res, err := tx.Resources().ByResourceID(ctx, c.ResourceID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.ResourceNotFoundError{ResourceID: c.ResourceID}
			}
			return err
		}

		if err := res.Publish(c.User, c.Message, c.Timestamp); err != nil {
			return err
		}
		if err := tx.Resources().ClearPublished(ctx, c.ResourceID); err != nil {
			return err
		}
		if err := tx.Resources().Put(ctx, res); err != nil {
			return err
		}

		em.Queue(domain.ResourcePublished{
			ID:         res.ID,
			ResourceID: res.ResourceID,
			Version:    res.Version,
			User:       c.User,
			Timestamp:  c.Timestamp,
		})
		return nil
	})
}

// OnAppStarted re-provisions entry storage for every known resource and
// announces each one, so downstream consumers can rebuild their state.
func (h *ResourceHandlers) OnAppStarted(ctx context.Context, em *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.AppStarted)
	return h.uow.Do(ctx, func(ctx context.Context, tx uow.ResourceTx) error {
		ids, err := tx.Resources().ResourceIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			res, err := tx.Resources().ByResourceID(ctx, id, 0)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					// Only discarded versions remain.
					continue
				}
				return err
			}
			if err := tx.CreateEntryTables(ctx, res.Config); err != nil {
				return err
			}
			if err := h.schemas.Warm(res); err != nil {
				return err
			}
			h.log.Info(ctx, "resource loaded", "resource_id", res.ResourceID, "version", res.Version)
			em.Queue(domain.ResourceLoaded{
				ID:         res.ID,
				ResourceID: res.ResourceID,
				Version:    res.Version,
				Timestamp:  e.Timestamp,
			})
		}
		return nil
	})
}
