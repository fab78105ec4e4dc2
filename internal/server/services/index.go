package services

import (
	"context"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/index"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// IndexHandlers forwards committed changes to the search index. All of its
// event handlers run after commit, so a failing index call never rolls back
// storage; the bus logs and isolates the failure.
type IndexHandlers struct {
	uow uow.EntryUnitOfWork
	idx index.Service
	log logging.Logger
}

func NewIndexHandlers(entryUOW uow.EntryUnitOfWork, idx index.Service, log logging.Logger) *IndexHandlers {
	return &IndexHandlers{uow: entryUOW, idx: idx, log: log}
}

func (h *IndexHandlers) OnResourceCreated(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.ResourceCreated)
	return h.idx.CreateIndex(ctx, e.ResourceID)
}

func (h *IndexHandlers) OnResourceLoaded(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.ResourceLoaded)
	return h.idx.CreateIndex(ctx, e.ResourceID)
}

func (h *IndexHandlers) OnResourcePublished(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.ResourcePublished)
	return h.idx.PublishIndex(ctx, e.ResourceID)
}

func (h *IndexHandlers) OnEntryAdded(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.EntryAdded)
	return h.idx.AddEntry(ctx, e.ResourceID, &domain.Entry{
		ID:             e.ID,
		EntryID:        e.EntryID,
		ResourceID:     e.ResourceID,
		Version:        e.Version,
		Body:           e.Body,
		Message:        e.Message,
		LastModified:   e.Timestamp,
		LastModifiedBy: e.User,
	})
}

func (h *IndexHandlers) OnEntryUpdated(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.EntryUpdated)
	return h.idx.UpdateEntry(ctx, e.ResourceID, &domain.Entry{
		ID:             e.ID,
		EntryID:        e.EntryID,
		ResourceID:     e.ResourceID,
		Version:        e.Version,
		Body:           e.Body,
		Message:        e.Message,
		LastModified:   e.Timestamp,
		LastModifiedBy: e.User,
	})
}

func (h *IndexHandlers) OnEntryDeleted(ctx context.Context, _ *bus.Emitter, evt domain.Event) error {
	e := evt.(domain.EntryDeleted)
	return h.idx.DeleteEntry(ctx, e.ResourceID, e.EntryID)
}

// ReindexResource handles domain.ReindexResource: rebuild the resource's
// index from the current non-discarded entries and publish it.
func (h *IndexHandlers) ReindexResource(ctx context.Context, _ *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.ReindexResource)

	var all []*domain.Entry
	err := h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, _ *domain.Resource, repo entries.Repository) error {
		var err error
		all, err = repo.AllEntries(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if err := h.idx.CreateIndex(ctx, c.ResourceID); err != nil {
		return err
	}
	for _, e := range all {
		if err := h.idx.AddEntry(ctx, c.ResourceID, e); err != nil {
			return err
		}
	}
	if err := h.idx.PublishIndex(ctx, c.ResourceID); err != nil {
		return err
	}
	h.log.Info(ctx, "resource reindexed", "resource_id", c.ResourceID, "entries", len(all))
	return nil
}
