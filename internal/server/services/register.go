package services

import (
	"github.com/spraakbanken/karp-backend/internal/server/bus"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Handlers bundles the handler groups wired onto one message bus.
type Handlers struct {
	Entries   *EntryHandlers
	Resources *ResourceHandlers
	Index     *IndexHandlers
	Export    *ExportHandlers
}

// Register binds every command to its single handler and every event to its
// consumers. This table is the complete routing surface of the server.
func Register(b *bus.MessageBus, h Handlers) {
	b.RegisterCommand(domain.KindCreateResource, h.Resources.CreateResource)
	b.RegisterCommand(domain.KindUpdateResource, h.Resources.UpdateResource)
	b.RegisterCommand(domain.KindPublishResource, h.Resources.PublishResource)

	b.RegisterCommand(domain.KindAddEntry, h.Entries.AddEntry)
	b.RegisterCommand(domain.KindAddEntries, h.Entries.AddEntries)
	b.RegisterCommand(domain.KindUpdateEntry, h.Entries.UpdateEntry)
	b.RegisterCommand(domain.KindDeleteEntry, h.Entries.DeleteEntry)

	b.RegisterCommand(domain.KindReindexResource, h.Index.ReindexResource)
	b.RegisterCommand(domain.KindExportResource, h.Export.ExportResource)

	b.RegisterEvent(domain.KindAppStarted, h.Resources.OnAppStarted)
	b.RegisterEvent(domain.KindResourceCreated, h.Index.OnResourceCreated)
	b.RegisterEvent(domain.KindResourceLoaded, h.Index.OnResourceLoaded)
	b.RegisterEvent(domain.KindResourcePublished, h.Index.OnResourcePublished)
	b.RegisterEvent(domain.KindEntryAdded, h.Index.OnEntryAdded)
	b.RegisterEvent(domain.KindEntryUpdated, h.Index.OnEntryUpdated)
	b.RegisterEvent(domain.KindEntryDeleted, h.Index.OnEntryDeleted)
}
