package domain

import (
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ResourceOp records the kind of the last mutation applied to a resource.
type ResourceOp string

const (
	ResourceOpAdded     ResourceOp = "ADDED"
	ResourceOpUpdated   ResourceOp = "UPDATED"
	ResourceOpPublished ResourceOp = "PUBLISHED"
	ResourceOpDeleted   ResourceOp = "DELETED"
)

// resourceIDPattern restricts resource ids to strings that are safe to embed
// in table names for the per-resource entry tables. Field names obey the same
// rule since referenceable fields become projection columns.
var resourceIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// Validate checks that a config can name tables and columns and that its
// referenceable declarations point at existing fields.
func (c ResourceConfig) Validate() error {
	if !resourceIDPattern.MatchString(c.ResourceID) {
		return &InvalidResourceIDError{ResourceID: c.ResourceID}
	}
	for name := range c.Fields {
		if !resourceIDPattern.MatchString(name) {
			return &InvalidResourceIDError{ResourceID: c.ResourceID + "." + name}
		}
	}
	for _, name := range c.Referenceable {
		if _, ok := c.Fields[name]; !ok {
			return &NonExistingFieldError{Field: name}
		}
	}
	return nil
}

// RefConfig declares an explicit forward reference from a field to another
// resource. An empty ResourceID means a self reference.
type RefConfig struct {
	ResourceID      string `json:"resource_id,omitempty"`
	ResourceVersion int64  `json:"resource_version,omitempty"`
}

// MultiRefConfig declares a virtual, computed backward reference: entries of
// the target resource whose Field points back here.
type MultiRefConfig struct {
	ResourceID      string `json:"resource_id,omitempty"`
	ResourceVersion int64  `json:"resource_version,omitempty"`
	Field           string `json:"field"`
}

// FunctionConfig wraps the virtual-field declarations a field may carry.
type FunctionConfig struct {
	MultiRef *MultiRefConfig `json:"multi_ref,omitempty"`
}

// FieldConfig describes one field of a resource schema.
type FieldConfig struct {
	Type       string                 `json:"type"`
	Collection bool                   `json:"collection,omitempty"`
	Required   bool                   `json:"required,omitempty"`
	Fields     map[string]FieldConfig `json:"fields,omitempty"`
	Ref        *RefConfig             `json:"ref,omitempty"`
	Function   *FunctionConfig        `json:"function,omitempty"`
}

// ProtectedConfig marks which access levels require authorization. Writes are
// always protected; Read guards lookups too.
type ProtectedConfig struct {
	Read bool `json:"read,omitempty"`
}

// ResourceConfig is the schema plus behavioural settings of a resource. The
// declarations are data, not code: the reference resolver and the runtime
// projection interpret them at query time.
type ResourceConfig struct {
	ResourceID    string                 `json:"resource_id"`
	Name          string                 `json:"resource_name"`
	IDField       string                 `json:"id"`
	Fields        map[string]FieldConfig `json:"fields"`
	Referenceable []string               `json:"referenceable,omitempty"`
	Protected     *ProtectedConfig       `json:"protected,omitempty"`
}

// IsReferenceable reports whether field is declared filterable in the runtime
// projection.
func (c ResourceConfig) IsReferenceable(field string) bool {
	for _, f := range c.Referenceable {
		if f == field {
			return true
		}
	}
	return false
}

// Resource is a named lexicon: a versioned schema/config plus publication
// state. It follows the same history discipline as entries.
type Resource struct {
	ID             uuid.UUID
	ResourceID     string
	Version        int64
	Name           string
	Config         ResourceConfig
	IsPublished    *bool
	Op             ResourceOp
	Message        string
	LastModified   time.Time
	LastModifiedBy string
	Discarded      bool
}

// NewResource constructs a version-1 resource from a config.
func NewResource(id uuid.UUID, cfg ResourceConfig, createdBy string, now time.Time) (*Resource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = cfg.ResourceID
	}
	if createdBy == "" {
		createdBy = "Unknown user"
	}
	return &Resource{
		ID:             id,
		ResourceID:     cfg.ResourceID,
		Version:        1,
		Name:           name,
		Config:         cfg,
		Op:             ResourceOpAdded,
		Message:        "Resource added.",
		LastModified:   now,
		LastModifiedBy: createdBy,
	}, nil
}

// Stamp records a config update: version +1, publication state reset to
// unset for the new version.
func (r *Resource) Stamp(user, message string, now time.Time) error {
	if r.Discarded {
		return &DiscardedEntityError{EntityID: r.ID.String()}
	}
	r.Version++
	r.Op = ResourceOpUpdated
	r.Message = message
	r.LastModified = now
	r.LastModifiedBy = user
	r.IsPublished = nil
	return nil
}

// Publish marks this version as the published one. At most one version per
// resource id may be published; the repository clears the previous holder in
// the same unit of work.
func (r *Resource) Publish(user, message string, now time.Time) error {
	if r.Discarded {
		return &DiscardedEntityError{EntityID: r.ID.String()}
	}
	if r.IsPublished != nil && *r.IsPublished {
		return &ResourceAlreadyPublishedError{ResourceID: r.ResourceID}
	}
	published := true
	r.IsPublished = &published
	r.Version++
	r.Op = ResourceOpPublished
	if message == "" {
		message = "Resource published."
	}
	r.Message = message
	r.LastModified = now
	r.LastModifiedBy = user
	return nil
}

// EntryID extracts the external entry id from an entry body using the
// configured id field.
func (r *Resource) EntryID(body map[string]any) (string, error) {
	if r.Config.IDField == "" {
		return "", &MissingIDFieldError{ResourceID: r.ResourceID, IDField: ""}
	}
	v, ok := body[r.Config.IDField]
	if !ok {
		return "", &MissingIDFieldError{ResourceID: r.ResourceID, IDField: r.Config.IDField}
	}
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		// JSON numbers decode as float64; ids are stored as their literal form.
		return trimFloat(id), nil
	default:
		return "", &MissingIDFieldError{ResourceID: r.ResourceID, IDField: r.Config.IDField}
	}
}

// IsProtected reports whether operations at the given level on this resource
// require an authorization check.
func (r *Resource) IsProtected(level PermissionLevel) bool {
	if level >= PermissionWrite {
		return true
	}
	return r.Config.Protected != nil && r.Config.Protected.Read
}

// EntryJSONSchema derives the JSON-schema document entries of this resource
// must validate against. The derived document is data for the schema
// compiler; it is rebuilt whenever the config changes.
func (r *Resource) EntryJSONSchema() map[string]any {
	return fieldsToSchema(r.Config.Fields)
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func fieldsToSchema(fields map[string]FieldConfig) map[string]any {
	properties := make(map[string]any, len(fields))
	// Shaped as decoded JSON throughout, since the schema compiler consumes
	// the document the same way it would a parsed file.
	var required []any
	for name, field := range fields {
		if field.Function != nil {
			// Virtual fields are computed, never present in the body.
			continue
		}
		properties[name] = fieldToSchema(field)
		if field.Required {
			required = append(required, name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldToSchema(field FieldConfig) map[string]any {
	var inner map[string]any
	if field.Type == "object" {
		inner = fieldsToSchema(field.Fields)
	} else {
		inner = map[string]any{"type": field.Type}
	}
	if field.Collection {
		return map[string]any{"type": "array", "items": inner}
	}
	return inner
}
