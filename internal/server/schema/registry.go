// Package schema validates entry bodies against the JSON schema derived from
// a resource config. Compiled validators are cached per resource version and
// evicted when the resource definition changes.
package schema

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// ValidatorRegistry caches compiled validators keyed by resource id and
// version. Safe for concurrent use.
type ValidatorRegistry struct {
	mu    sync.Mutex
	cache map[string]*jsonschema.Schema
}

func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{cache: make(map[string]*jsonschema.Schema)}
}

func cacheKey(resourceID string, version int64) string {
	return fmt.Sprintf("%s@%d", resourceID, version)
}

func (v *ValidatorRegistry) validator(res *domain.Resource) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	key := cacheKey(res.ResourceID, res.Version)
	if sch, ok := v.cache[key]; ok {
		return sch, nil
	}

	url := "resource:///" + key
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, res.EntryJSONSchema()); err != nil {
		return nil, fmt.Errorf("adding schema for %s: %w", key, err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compiling schema for %s: %w", key, err)
	}
	v.cache[key] = sch
	return sch, nil
}

// ValidateEntry checks an entry body against the resource's schema and
// reports violations as domain.EntryNotValidError.
func (v *ValidatorRegistry) ValidateEntry(res *domain.Resource, body map[string]any) error {
	sch, err := v.validator(res)
	if err != nil {
		return err
	}
	if err := sch.Validate(normalize(body)); err != nil {
		return &domain.EntryNotValidError{ResourceID: res.ResourceID, Reason: err.Error()}
	}
	return nil
}

// Warm compiles and caches the validator for a resource ahead of the first
// entry write. A config that no longer compiles surfaces here instead of on
// user requests.
func (v *ValidatorRegistry) Warm(res *domain.Resource) error {
	_, err := v.validator(res)
	return err
}

// Invalidate drops all cached validators for a resource. Called when a new
// version of the resource definition is stored.
func (v *ValidatorRegistry) Invalidate(resourceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	prefix := resourceID + "@"
	for key := range v.cache {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(v.cache, key)
		}
	}
}

// normalize deep-copies a decoded body into the generic shape the validator
// expects, so callers can pass bodies holding typed values.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}
