// Package domain defines the core model for versioned lexical resources and
// their entries: entities, commands, events, and the error taxonomy shared by
// the repositories, the message bus, and the command handlers.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// EntryOp records the kind of the last mutation applied to an entry.
type EntryOp string

const (
	OpAdded   EntryOp = "ADDED"
	OpUpdated EntryOp = "UPDATED"
	OpDeleted EntryOp = "DELETED"
)

// EntryStatus is the editorial workflow status of an entry.
type EntryStatus string

const (
	StatusInProgress EntryStatus = "IN-PROGRESS"
	StatusInReview   EntryStatus = "IN_REVIEW"
	StatusOK         EntryStatus = "OK"
)

// Entry is one versioned lexical record belonging to a resource.
//
// ID is the immutable identity assigned at creation and stable across
// versions. EntryID is the mutable external key derived from the body via the
// resource's id field; it is unique among non-discarded entries of one
// resource. Every mutation appends an immutable history row keyed by
// (ID, Version) and updates one runtime-projection row keyed by EntryID.
type Entry struct {
	ID             uuid.UUID
	EntryID        string
	ResourceID     string
	Version        int64
	Body           map[string]any
	Status         EntryStatus
	Op             EntryOp
	Message        string
	LastModified   time.Time
	LastModifiedBy string
	Discarded      bool
}

// NewEntry constructs a version-1 entry in the IN-PROGRESS state.
func NewEntry(id uuid.UUID, resourceID, entryID string, body map[string]any, user, message string, now time.Time) *Entry {
	if message == "" {
		message = "Entry added."
	}
	if user == "" {
		user = "Unknown user"
	}
	return &Entry{
		ID:             id,
		EntryID:        entryID,
		ResourceID:     resourceID,
		Version:        1,
		Body:           body,
		Status:         StatusInProgress,
		Op:             OpAdded,
		Message:        message,
		LastModified:   now,
		LastModifiedBy: user,
	}
}

// Stamp records an update: the version is incremented by exactly one and the
// modification metadata is replaced. Discarded entries cannot be stamped.
func (e *Entry) Stamp(user, message string, now time.Time) error {
	if e.Discarded {
		return &DiscardedEntityError{EntityID: e.ID.String()}
	}
	e.Version++
	e.Op = OpUpdated
	e.Message = message
	e.LastModified = now
	e.LastModifiedBy = user
	return nil
}

// Discard soft-deletes the entry. The discard is itself a mutation: it bumps
// the version and appends to history. A discarded entry is terminal.
func (e *Entry) Discard(user, message string, now time.Time) error {
	if e.Discarded {
		return &DiscardedEntityError{EntityID: e.ID.String()}
	}
	if message == "" {
		message = "Entry deleted."
	}
	e.Version++
	e.Op = OpDeleted
	e.Message = message
	e.LastModified = now
	e.LastModifiedBy = user
	e.Discarded = true
	return nil
}
