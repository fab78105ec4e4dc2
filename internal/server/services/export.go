package services

import (
	"context"

	"github.com/spraakbanken/karp-backend/internal/logging"
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/export"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/entries"
	"github.com/spraakbanken/karp-backend/internal/server/uow"
)

// ExportHandlers dumps resource snapshots to object storage.
type ExportHandlers struct {
	uow      uow.EntryUnitOfWork
	exporter export.Exporter
	log      logging.Logger
}

func NewExportHandlers(entryUOW uow.EntryUnitOfWork, exporter export.Exporter, log logging.Logger) *ExportHandlers {
	return &ExportHandlers{uow: entryUOW, exporter: exporter, log: log}
}

// ExportResource handles domain.ExportResource: snapshot the current
// non-discarded entries in one read transaction, then upload outside of it.
func (h *ExportHandlers) ExportResource(ctx context.Context, _ *bus.Emitter, cmd domain.Command) error {
	c := cmd.(domain.ExportResource)

	var all []*domain.Entry
	err := h.uow.Do(ctx, c.ResourceID, func(ctx context.Context, _ *domain.Resource, repo entries.Repository) error {
		var err error
		all, err = repo.AllEntries(ctx)
		return err
	})
	if err != nil {
		return err
	}

	key, err := h.exporter.Export(ctx, c.ResourceID, all)
	if err != nil {
		return err
	}
	h.log.Info(ctx, "resource exported",
		"resource_id", c.ResourceID, "entries", len(all), "key", key, "user", c.User)
	return nil
}
