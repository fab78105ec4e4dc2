package domain

import (
	"errors"
	"fmt"

	"github.com/wI2L/jsondiff"
)

// ErrNotFound is the absence signal returned by repository read paths.
// Handlers translate it into EntryNotFoundError/ResourceNotFoundError where
// absence is a business fault; callers match it with errors.Is.
var ErrNotFound = errors.New("not found")

// ResourceNotFoundError reports a lookup of an unknown resource.
type ResourceNotFoundError struct {
	ResourceID string
	Version    int64
}

func (e *ResourceNotFoundError) Error() string {
	if e.Version != 0 {
		return fmt.Sprintf("resource %q (version %d) not found", e.ResourceID, e.Version)
	}
	return fmt.Sprintf("resource %q not found", e.ResourceID)
}

// EntryNotFoundError reports a lookup of an unknown entry, with enough
// context for the boundary layer to render a precise message.
type EntryNotFoundError struct {
	ResourceID      string
	EntryID         string
	EntryVersion    int64
	ResourceVersion int64
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry %q not found in resource %q", e.EntryID, e.ResourceID)
}

// UpdateConflictError signals an optimistic-concurrency conflict: the stored
// version differs from the version the caller based its edit on. Diff is the
// structural difference between the stored and the submitted body; the caller
// must re-fetch and retry.
type UpdateConflictError struct {
	ResourceID string
	EntryID    string
	Diff       jsondiff.Patch
}

func (e *UpdateConflictError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("update conflict on resource %q", e.ResourceID)
	}
	return fmt.Sprintf("update conflict on entry %q in resource %q", e.EntryID, e.ResourceID)
}

// IntegrityError reports a duplicate external key: a non-discarded entry with
// the same entry id already exists under a different identity, or a resource
// id is already taken.
type IntegrityError struct {
	ResourceID string
	EntryID    string
}

func (e *IntegrityError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("resource %q already exists", e.ResourceID)
	}
	return fmt.Sprintf("an entry with entry_id %q already exists in resource %q", e.EntryID, e.ResourceID)
}

// EntryNotValidError reports a schema-validation failure for an entry body.
type EntryNotValidError struct {
	ResourceID string
	Reason     string
}

func (e *EntryNotValidError) Error() string {
	return fmt.Sprintf("entry not valid for resource %q: %s", e.ResourceID, e.Reason)
}

// MissingIDFieldError reports an entry body that lacks the configured id
// field, or a resource config without one.
type MissingIDFieldError struct {
	ResourceID string
	IDField    string
}

func (e *MissingIDFieldError) Error() string {
	if e.IDField == "" {
		return fmt.Sprintf("resource %q has no id field configured", e.ResourceID)
	}
	return fmt.Sprintf("entry for resource %q is missing the id field %q", e.ResourceID, e.IDField)
}

// NonExistingFieldError rejects a projection filter on a field that is not
// declared referenceable.
type NonExistingFieldError struct {
	Field string
}

func (e *NonExistingFieldError) Error() string {
	return fmt.Sprintf("field %q is not referenceable", e.Field)
}

// ResourceAlreadyPublishedError reports a publish of an already published
// resource version.
type ResourceAlreadyPublishedError struct {
	ResourceID string
}

func (e *ResourceAlreadyPublishedError) Error() string {
	return fmt.Sprintf("resource %q is already published", e.ResourceID)
}

// NoChangesMadeError signals an update whose body is identical to the stored
// one. It is a no-op signal, not a conflict; nothing is written.
type NoChangesMadeError struct {
	ResourceID string
	EntryID    string
}

func (e *NoChangesMadeError) Error() string {
	if e.EntryID == "" {
		return fmt.Sprintf("no changes made to resource %q", e.ResourceID)
	}
	return fmt.Sprintf("no changes made to entry %q in resource %q", e.EntryID, e.ResourceID)
}

// DiscardedEntityError reports a mutation attempted on a discarded entity.
type DiscardedEntityError struct {
	EntityID string
}

func (e *DiscardedEntityError) Error() string {
	return fmt.Sprintf("entity %s is discarded", e.EntityID)
}

// InvalidResourceIDError rejects a resource id that cannot name the
// per-resource entry tables.
type InvalidResourceIDError struct {
	ResourceID string
}

func (e *InvalidResourceIDError) Error() string {
	return fmt.Sprintf("invalid resource id %q", e.ResourceID)
}

// RepositoryError wraps storage-level failures (constraint violation,
// connectivity). It is opaque to business logic and the only fault class a
// caller may retry.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository failure in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("repository failure in %s", e.Op)
}

func (e *RepositoryError) Unwrap() error { return e.Err }
