package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommandKind tags each command variant; dispatch in the message bus is keyed
// by this enum rather than by runtime type lookup.
type CommandKind int

const (
	KindCreateResource CommandKind = iota + 1
	KindUpdateResource
	KindPublishResource
	KindAddEntry
	KindAddEntries
	KindUpdateEntry
	KindDeleteEntry
	KindReindexResource
	KindExportResource
)

func (k CommandKind) String() string {
	switch k {
	case KindCreateResource:
		return "CreateResource"
	case KindUpdateResource:
		return "UpdateResource"
	case KindPublishResource:
		return "PublishResource"
	case KindAddEntry:
		return "AddEntry"
	case KindAddEntries:
		return "AddEntries"
	case KindUpdateEntry:
		return "UpdateEntry"
	case KindDeleteEntry:
		return "DeleteEntry"
	case KindReindexResource:
		return "ReindexResource"
	case KindExportResource:
		return "ExportResource"
	default:
		return "UnknownCommand"
	}
}

// Command is an intent to mutate state, routed to exactly one handler.
type Command interface {
	CommandKind() CommandKind
}

// CreateResource registers a new resource from a config document.
type CreateResource struct {
	ID        uuid.UUID
	Config    ResourceConfig
	CreatedBy string
	Timestamp time.Time
}

func (CreateResource) CommandKind() CommandKind { return KindCreateResource }

// UpdateResource replaces the config of an existing resource, bumping its
// version.
type UpdateResource struct {
	ResourceID string
	Version    int64
	Config     ResourceConfig
	User       string
	Message    string
	Timestamp  time.Time
}

func (UpdateResource) CommandKind() CommandKind { return KindUpdateResource }

// PublishResource marks the current version of a resource as published.
type PublishResource struct {
	ResourceID string
	User       string
	Message    string
	Timestamp  time.Time
}

func (PublishResource) CommandKind() CommandKind { return KindPublishResource }

// AddEntry creates one entry in a resource.
type AddEntry struct {
	ResourceID string
	ID         uuid.UUID
	Entry      map[string]any
	User       string
	Message    string
	Timestamp  time.Time
}

func (AddEntry) CommandKind() CommandKind { return KindAddEntry }

// AddEntries creates a batch of entries in one unit of work; a failure
// anywhere aborts the whole batch.
type AddEntries struct {
	ResourceID string
	Entries    []map[string]any
	User       string
	Message    string
	Timestamp  time.Time
}

func (AddEntries) CommandKind() CommandKind { return KindAddEntries }

// UpdateEntry replaces the body of an entry. Version carries the version the
// caller based its edit on; unless Force is set a mismatch with the stored
// version faults with UpdateConflictError.
type UpdateEntry struct {
	ResourceID string
	ID         uuid.UUID
	EntryID    string
	Version    int64
	Entry      map[string]any
	User       string
	Message    string
	Force      bool
	Timestamp  time.Time
}

func (UpdateEntry) CommandKind() CommandKind { return KindUpdateEntry }

// DeleteEntry soft-deletes an entry.
type DeleteEntry struct {
	ResourceID string
	EntryID    string
	User       string
	Message    string
	Timestamp  time.Time
}

func (DeleteEntry) CommandKind() CommandKind { return KindDeleteEntry }

// ReindexResource streams all current entries of a resource to the index
// service.
type ReindexResource struct {
	ResourceID string
}

func (ReindexResource) CommandKind() CommandKind { return KindReindexResource }

// ExportResource dumps all current entries of a resource to object storage.
type ExportResource struct {
	ResourceID string
	User       string
	Timestamp  time.Time
}

func (ExportResource) CommandKind() CommandKind { return KindExportResource }
