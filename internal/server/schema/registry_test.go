package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

func testResource(t *testing.T) *domain.Resource {
	t.Helper()
	cfg := domain.ResourceConfig{
		ResourceID: "places",
		IDField:    "code",
		Fields: map[string]domain.FieldConfig{
			"code":       {Type: "string", Required: true},
			"population": {Type: "integer"},
			"districts":  {Type: "string", Collection: true},
		},
	}
	res, err := domain.NewResource(uuid.New(), cfg, "tester", time.Now())
	if err != nil {
		t.Fatalf("NewResource error: %v", err)
	}
	return res
}

func TestValidateEntry_Valid(t *testing.T) {
	t.Parallel()

	reg := NewValidatorRegistry()
	res := testResource(t)

	body := map[string]any{
		"code":       "grund",
		"population": 3122,
		"districts":  []any{"north", "south"},
	}
	if err := reg.ValidateEntry(res, body); err != nil {
		t.Fatalf("valid body rejected: %v", err)
	}
}

func TestValidateEntry_MissingRequired(t *testing.T) {
	t.Parallel()

	reg := NewValidatorRegistry()
	res := testResource(t)

	var notValid *domain.EntryNotValidError
	err := reg.ValidateEntry(res, map[string]any{"population": 1})
	if !errors.As(err, &notValid) {
		t.Fatalf("want EntryNotValidError, got %v", err)
	}
	if notValid.ResourceID != "places" {
		t.Fatalf("resource id: got %q", notValid.ResourceID)
	}
}

func TestValidateEntry_WrongType(t *testing.T) {
	t.Parallel()

	reg := NewValidatorRegistry()
	res := testResource(t)

	var notValid *domain.EntryNotValidError
	err := reg.ValidateEntry(res, map[string]any{"code": "grund", "population": "many"})
	if !errors.As(err, &notValid) {
		t.Fatalf("want EntryNotValidError, got %v", err)
	}
}

func TestValidateEntry_CacheSurvivesInvalidate(t *testing.T) {
	t.Parallel()

	reg := NewValidatorRegistry()
	res := testResource(t)

	if err := reg.ValidateEntry(res, map[string]any{"code": "a"}); err != nil {
		t.Fatalf("first validation: %v", err)
	}

	// A config change makes population a string from now on.
	reg.Invalidate(res.ResourceID)
	res.Config.Fields["population"] = domain.FieldConfig{Type: "string"}
	if err := res.Stamp("tester", "edit", time.Now()); err != nil {
		t.Fatalf("Stamp error: %v", err)
	}

	if err := reg.ValidateEntry(res, map[string]any{"code": "a", "population": "many"}); err != nil {
		t.Fatalf("validator must be rebuilt for the new version: %v", err)
	}
}
