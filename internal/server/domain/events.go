package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind tags each event variant for handler-table lookup.
type EventKind int

const (
	KindAppStarted EventKind = iota + 1
	KindResourceCreated
	KindResourceLoaded
	KindResourceUpdated
	KindResourcePublished
	KindEntryAdded
	KindEntryUpdated
	KindEntryDeleted
)

func (k EventKind) String() string {
	switch k {
	case KindAppStarted:
		return "AppStarted"
	case KindResourceCreated:
		return "ResourceCreated"
	case KindResourceLoaded:
		return "ResourceLoaded"
	case KindResourceUpdated:
		return "ResourceUpdated"
	case KindResourcePublished:
		return "ResourcePublished"
	case KindEntryAdded:
		return "EntryAdded"
	case KindEntryUpdated:
		return "EntryUpdated"
	case KindEntryDeleted:
		return "EntryDeleted"
	default:
		return "UnknownEvent"
	}
}

// Event is a fact that state changed, fanned out to zero or more handlers.
type Event interface {
	EventKind() EventKind
}

// AppStarted is raised once at boot so existing resources get set up.
type AppStarted struct {
	Timestamp time.Time
}

func (AppStarted) EventKind() EventKind { return KindAppStarted }

// ResourceCreated is raised after a resource is committed.
type ResourceCreated struct {
	ID         uuid.UUID
	ResourceID string
	Version    int64
	User       string
	Timestamp  time.Time
}

func (ResourceCreated) EventKind() EventKind { return KindResourceCreated }

// ResourceLoaded is raised during startup for every known resource.
type ResourceLoaded struct {
	ID         uuid.UUID
	ResourceID string
	Version    int64
	Timestamp  time.Time
}

func (ResourceLoaded) EventKind() EventKind { return KindResourceLoaded }

// ResourceUpdated is raised after a resource config change is committed.
type ResourceUpdated struct {
	ID         uuid.UUID
	ResourceID string
	Version    int64
	User       string
	Message    string
	Timestamp  time.Time
}

func (ResourceUpdated) EventKind() EventKind { return KindResourceUpdated }

// ResourcePublished is raised after a publish is committed.
type ResourcePublished struct {
	ID         uuid.UUID
	ResourceID string
	Version    int64
	User       string
	Timestamp  time.Time
}

func (ResourcePublished) EventKind() EventKind { return KindResourcePublished }

// EntryAdded is raised after a new entry is committed.
type EntryAdded struct {
	ID         uuid.UUID
	ResourceID string
	EntryID    string
	Version    int64
	Body       map[string]any
	Message    string
	User       string
	Timestamp  time.Time
}

func (EntryAdded) EventKind() EventKind { return KindEntryAdded }

// EntryUpdated is raised after an entry update is committed.
type EntryUpdated struct {
	ID         uuid.UUID
	ResourceID string
	EntryID    string
	Version    int64
	Body       map[string]any
	Message    string
	User       string
	Timestamp  time.Time
}

func (EntryUpdated) EventKind() EventKind { return KindEntryUpdated }

// EntryDeleted is raised after an entry discard is committed.
type EntryDeleted struct {
	ID         uuid.UUID
	ResourceID string
	EntryID    string
	Version    int64
	Message    string
	User       string
	Timestamp  time.Time
}

func (EntryDeleted) EventKind() EventKind { return KindEntryDeleted }
