// Package memstore holds the in-memory state shared by the memory
// repositories. A Store guards one State and applies mutations
// transactionally: the unit of work runs against a deep copy that replaces
// the committed state only when the scope returns nil.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// RuntimeRow is the memory analogue of one runtime-projection row.
type RuntimeRow struct {
	EntryID   string
	HistoryID int64
	ID        uuid.UUID
	Discarded bool
}

// ResourceEntries is the per-resource entry storage: append-only history plus
// the runtime projection keyed by entry id.
type ResourceEntries struct {
	Config  domain.ResourceConfig
	History []domain.Entry
	Runtime map[string]*RuntimeRow
}

// State is the whole store content.
type State struct {
	Resources []domain.Resource
	Entries   map[string]*ResourceEntries
}

func NewState() *State {
	return &State{Entries: make(map[string]*ResourceEntries)}
}

// Ensure creates the per-resource entry storage if missing and refreshes its
// config. The durable analogue is the repository manager creating the entry
// tables for a new resource.
func (s *State) Ensure(resourceID string, cfg domain.ResourceConfig) *ResourceEntries {
	re, ok := s.Entries[resourceID]
	if !ok {
		re = &ResourceEntries{Runtime: make(map[string]*RuntimeRow)}
		s.Entries[resourceID] = re
	}
	re.Config = cfg
	return re
}

// Clone deep-copies the state so a transaction can mutate freely.
func (s *State) Clone() *State {
	cloned := NewState()
	cloned.Resources = make([]domain.Resource, len(s.Resources))
	for i, r := range s.Resources {
		cloned.Resources[i] = CloneResource(r)
	}
	for id, re := range s.Entries {
		c := &ResourceEntries{
			Config:  CloneConfig(re.Config),
			History: make([]domain.Entry, len(re.History)),
			Runtime: make(map[string]*RuntimeRow, len(re.Runtime)),
		}
		for i, e := range re.History {
			c.History[i] = CloneEntry(e)
		}
		for k, row := range re.Runtime {
			rowCopy := *row
			c.Runtime[k] = &rowCopy
		}
		cloned.Entries[id] = c
	}
	return cloned
}

// CloneEntry copies an entry including its body document.
func CloneEntry(e domain.Entry) domain.Entry {
	cp := e
	cp.Body = cloneBody(e.Body)
	return cp
}

// CloneResource copies a resource including its publication pointer and its
// config document, so a transaction clone never aliases committed state.
func CloneResource(r domain.Resource) domain.Resource {
	cp := r
	if r.IsPublished != nil {
		published := *r.IsPublished
		cp.IsPublished = &published
	}
	cp.Config = CloneConfig(r.Config)
	return cp
}

// CloneConfig deep-copies a resource config.
func CloneConfig(cfg domain.ResourceConfig) domain.ResourceConfig {
	cp := cfg
	cp.Fields = cloneFields(cfg.Fields)
	if cfg.Referenceable != nil {
		cp.Referenceable = append([]string(nil), cfg.Referenceable...)
	}
	if cfg.Protected != nil {
		protected := *cfg.Protected
		cp.Protected = &protected
	}
	return cp
}

func cloneFields(fields map[string]domain.FieldConfig) map[string]domain.FieldConfig {
	if fields == nil {
		return nil
	}
	out := make(map[string]domain.FieldConfig, len(fields))
	for name, f := range fields {
		cp := f
		cp.Fields = cloneFields(f.Fields)
		if f.Ref != nil {
			ref := *f.Ref
			cp.Ref = &ref
		}
		if f.Function != nil {
			fn := *f.Function
			if f.Function.MultiRef != nil {
				mr := *f.Function.MultiRef
				fn.MultiRef = &mr
			}
			cp.Function = &fn
		}
		out[name] = cp
	}
	return out
}

func cloneBody(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneBody(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}

// Store guards a State and provides transactional access to it.
type Store struct {
	mu    sync.Mutex
	state *State
}

func NewStore() *Store {
	return &Store{state: NewState()}
}

// RunInTransaction executes fn against a copy of the state; the copy becomes
// the committed state only when fn returns nil.
func (st *Store) RunInTransaction(_ context.Context, fn func(*State) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx := st.state.Clone()
	if err := fn(tx); err != nil {
		return err
	}
	st.state = tx
	return nil
}

// View executes fn against a read-only copy of the state.
func (st *Store) View(_ context.Context, fn func(*State) error) error {
	st.mu.Lock()
	snapshot := st.state.Clone()
	st.mu.Unlock()
	return fn(snapshot)
}
