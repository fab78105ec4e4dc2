// Package services implements the command and event handlers behind the
// message bus. Each command handler runs inside one unit of work and queues
// the events describing what it committed.
package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/schema"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// EntryHandlers serves the entry lifecycle commands.
type EntryHandlers struct {
	uow     uow.EntryUnitOfWork
	schemas *schema.ValidatorRegistry
	log     logging.Logger
}

func NewEntryHandlers(entryUOW uow.EntryUnitOfWork, schemas *schema.ValidatorRegistry, log logging.Logger) *EntryHandlers {
	return &EntryHandlers{uow: entryUOW, schemas: schemas, log: log}
}

// addOne validates and persists one new entry inside an already open unit of
// work and returns the event describing it.
func (h *EntryHandlers) addOne(ctx context.Context, res *domain.Resource, repo entries.Repository,
	id uuid.UUID, body map[string]any, user, message string, cmd domain.AddEntry, seen map[string]struct{}) (domain.EntryAdded, error) {

	entryID, err := res.EntryID(body)
	if err != nil {
		return domain.EntryAdded{}, err
	}
	if err := h.schemas.ValidateEntry(res, body); err != nil {
		return domain.EntryAdded{}, err
	}

	if _, dup := seen[entryID]; dup {
		return domain.EntryAdded{}, &domain.IntegrityError{ResourceID: res.ResourceID, EntryID: entryID}
	}
	// A live entry under the same entry id faults, unless the command names
	// the same identity: re-dispatching an add with its original id is not a
	// collision.
	existing, err := repo.ByEntryID(ctx, entryID, 0)
	switch {
	case err == nil && !existing.Discarded && (id == uuid.Nil || existing.ID != id):
		return domain.EntryAdded{}, &domain.IntegrityError{ResourceID: res.ResourceID, EntryID: entryID}
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.EntryAdded{}, err
	}
	seen[entryID] = struct{}{}

	if id == uuid.Nil {
		id = uuid.New()
	}
	e := domain.NewEntry(id, res.ResourceID, entryID, body, user, message, cmd.Timestamp)
	if err := repo.Put(ctx, e); err != nil {
		return domain.EntryAdded{}, err
	}

	return domain.EntryAdded{
		ID:         e.ID,
		ResourceID: res.ResourceID,
		EntryID:    entryID,
		Version:    e.Version,
		Body:       body,
		Message:    e.Message,
		User:       e.LastModifiedBy,
		Timestamp:  cmd.Timestamp,
	}, nil
}

// AddEntry handles domain.AddEntry.
func (h *EntryHandlers) AddEntry(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.AddEntry)
	return h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, res *domain.Resource, repo entries.Repository) error {
		evt, err := h.addOne(ctx, res, repo, c.ID, c.Entry, c.User, c.Message, c, make(map[string]struct{}))
		if err != nil {
			return err
		}
		em.Queue(evt)
		return nil
	})
}

// AddEntries handles domain.AddEntries. The whole batch shares one unit of
// work: a failure on any item rolls back every item.
func (h *EntryHandlers) AddEntries(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.AddEntries)
	return h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, res *domain.Resource, repo entries.Repository) error {
		seen := make(map[string]struct{}, len(c.Entries))
		single := domain.AddEntry{
			ResourceID: c.ResourceID,
			User:       c.User,
			Message:    c.Message,
			Timestamp:  c.Timestamp,
		}
		for _, body := range c.Entries {
			evt, err := h.addOne(ctx, res, repo, uuid.Nil, body, c.User, c.Message, single, seen)
			if err != nil {
				return err
			}
			em.Queue(evt)
		}
		return nil
	})
}

// UpdateEntry handles domain.UpdateEntry.
func (h *EntryHandlers) UpdateEntry(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.UpdateEntry)
	return h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, res *domain.Resource, repo entries.Repository) error {
		if err := h.schemas.ValidateEntry(res, c.Entry); err != nil {
			return err
		}

		current, err := repo.ByEntryID(ctx, c.EntryID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.EntryNotFoundError{
					ResourceID:      c.ResourceID,
					EntryID:         c.EntryID,
					EntryVersion:    c.Version,
					ResourceVersion: res.Version,
				}
			}
			return err
		}

		diff, err := jsondiff.Compare(current.Body, c.Entry)
		if err != nil {
			return err
		}
		if len(diff) == 0 {
			return &domain.NoChangesMadeError{ResourceID: c.ResourceID, EntryID: c.EntryID}
		}
		if !c.Force && current.Version != c.Version {
			return &domain.UpdateConflictError{ResourceID: c.ResourceID, EntryID: c.EntryID, Diff: diff}
		}

		newEntryID, err := res.EntryID(c.Entry)
		if err != nil {
			return err
		}

		current.Body = c.Entry
		if err := current.Stamp(c.User, c.Message, c.Timestamp); err != nil {
			return err
		}

		if newEntryID != c.EntryID {
			oldEntryID := current.EntryID
			current.EntryID = newEntryID
			if err := repo.Move(ctx, current, oldEntryID); err != nil {
				return err
			}
		} else if err := repo.Update(ctx, current); err != nil {
			return err
		}

		em.Queue(domain.EntryUpdated{
			ID:         current.ID,
			ResourceID: c.ResourceID,
			EntryID:    newEntryID,
			Version:    current.Version,
			Body:       c.Entry,
			Message:    current.Message,
			User:       current.LastModifiedBy,
			Timestamp:  c.Timestamp,
		})
		return nil
	})
}

// DeleteEntry handles domain.DeleteEntry.
func (h *EntryHandlers) DeleteEntry(ctx context.Context, em *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.DeleteEntry)
	return h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, res *domain.Resource, repo entries.Repository) error {
		current, err := repo.ByEntryID(ctx, c.EntryID, 0)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return &domain.EntryNotFoundError{
					ResourceID:      c.ResourceID,
					EntryID:         c.EntryID,
					ResourceVersion: res.Version,
				}
			}
			return err
		}

		if err := current.Discard(c.User, c.Message, c.Timestamp); err != nil {
			return err
		}
		if err := repo.Delete(ctx, current); err != nil {
			return err
		}

		em.Queue(domain.EntryDeleted{
			ID:         current.ID,
			ResourceID: c.ResourceID,
			EntryID:    c.EntryID,
			Version:    current.Version,
			Message:    current.Message,
			User:       current.LastModifiedBy,
			Timestamp:  c.Timestamp,
		})
		return nil
	})
}
