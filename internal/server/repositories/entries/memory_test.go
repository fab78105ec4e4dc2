package entries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
	"github.com/spraakbanken/karp-backend/internal/server/repositories/memstore"
)

func newMemoryRepo(t *testing.T) *MemoryRepository {
	t.Helper()
	cfg := domain.ResourceConfig{
		ResourceID: "places",
		IDField:    "code",
		Fields: map[string]domain.FieldConfig{
			"code":      {Type: "string"},
			"name":      {Type: "string"},
			"districts": {Type: "string", Collection: true},
		},
		Referenceable: []string{"code", "districts"},
	}
	state := memstore.NewState()
	return NewMemoryRepository("places", state.Ensure("places", cfg))
}

func mkEntry(entryID string, body map[string]any) *domain.Entry {
	return domain.NewEntry(uuid.New(), "places", entryID, body, "tester", "", time.Now())
}

func TestMemory_PutAndByEntryID(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	e := mkEntry("grund", map[string]any{"code": "grund"})
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := repo.ByEntryID(ctx, "grund", 0)
	if err != nil {
		t.Fatalf("ByEntryID error: %v", err)
	}
	if got.Version != 1 || got.EntryID != "grund" {
		t.Fatalf("got %+v", got)
	}

	if _, err := repo.ByEntryID(ctx, "missing", 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemory_UpdateKeepsHistory(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	e := mkEntry("grund", map[string]any{"code": "grund", "name": "Grund"})
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := e.Stamp("tester", "rename", time.Now()); err != nil {
		t.Fatalf("Stamp error: %v", err)
	}
	e.Body["name"] = "Grund by the lake"
	if err := repo.Update(ctx, e); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	latest, err := repo.ByEntryID(ctx, "grund", 0)
	if err != nil {
		t.Fatalf("ByEntryID error: %v", err)
	}
	if latest.Version != 2 || latest.Body["name"] != "Grund by the lake" {
		t.Fatalf("latest: %+v", latest)
	}

	v1, err := repo.ByEntryID(ctx, "grund", 1)
	if err != nil {
		t.Fatalf("ByEntryID v1 error: %v", err)
	}
	if v1.Body["name"] != "Grund" {
		t.Fatalf("history row mutated: %+v", v1)
	}

	history, err := repo.HistoryByEntryID(ctx, "grund")
	if err != nil {
		t.Fatalf("HistoryByEntryID error: %v", err)
	}
	if len(history) != 2 || history[0].Version != 1 || history[1].Version != 2 {
		t.Fatalf("history: %+v", history)
	}
}

func TestMemory_DeleteHidesFromEnumeration(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	e := mkEntry("grund", map[string]any{"code": "grund"})
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := e.Discard("tester", "", time.Now()); err != nil {
		t.Fatalf("Discard error: %v", err)
	}
	if err := repo.Delete(ctx, e); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	ids, err := repo.EntryIDs(ctx)
	if err != nil {
		t.Fatalf("EntryIDs error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("discarded entry still enumerated: %v", ids)
	}

	// History keeps the discard row.
	latest, err := repo.ByEntryID(ctx, "grund", 0)
	if err != nil {
		t.Fatalf("ByEntryID error: %v", err)
	}
	if !latest.Discarded || latest.Version != 2 {
		t.Fatalf("latest history row: %+v", latest)
	}
}

func TestMemory_MoveRenamesRuntimeRow(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	e := mkEntry("old", map[string]any{"code": "old"})
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := e.Stamp("tester", "rename", time.Now()); err != nil {
		t.Fatalf("Stamp error: %v", err)
	}
	e.EntryID = "new"
	e.Body = map[string]any{"code": "new"}
	if err := repo.Move(ctx, e, "old"); err != nil {
		t.Fatalf("Move error: %v", err)
	}

	ids, err := repo.EntryIDs(ctx)
	if err != nil {
		t.Fatalf("EntryIDs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "new" {
		t.Fatalf("ids after move: %v", ids)
	}
}

func TestMemory_ByReferenceable(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	a := mkEntry("a", map[string]any{"code": "a", "districts": []any{"north"}})
	b := mkEntry("b", map[string]any{"code": "b", "districts": []any{"north", "south"}})
	for _, e := range []*domain.Entry{a, b} {
		if err := repo.Put(ctx, e); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}

	got, err := repo.ByReferenceable(ctx, map[string]any{"districts": "south"})
	if err != nil {
		t.Fatalf("ByReferenceable error: %v", err)
	}
	if len(got) != 1 || got[0].EntryID != "b" {
		t.Fatalf("collection filter: %+v", got)
	}

	got, err = repo.ByReferenceable(ctx, map[string]any{"code": "a"})
	if err != nil {
		t.Fatalf("ByReferenceable error: %v", err)
	}
	if len(got) != 1 || got[0].EntryID != "a" {
		t.Fatalf("scalar filter: %+v", got)
	}

	var nonExisting *domain.NonExistingFieldError
	if _, err := repo.ByReferenceable(ctx, map[string]any{"name": "x"}); !errors.As(err, &nonExisting) {
		t.Fatalf("want NonExistingFieldError, got %v", err)
	}
}

func TestMemory_GetHistoryPagination(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	e := mkEntry("grund", map[string]any{"code": "grund"})
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := e.Stamp("tester", "edit", time.Now()); err != nil {
			t.Fatalf("Stamp error: %v", err)
		}
		if err := repo.Update(ctx, e); err != nil {
			t.Fatalf("Update error: %v", err)
		}
	}

	rows, total, err := repo.GetHistory(ctx, HistoryQuery{EntryID: "grund", Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if total != 5 {
		t.Fatalf("total: got %d want 5", total)
	}
	if len(rows) != 2 || rows[0].Version != 2 || rows[1].Version != 3 {
		t.Fatalf("page: %+v", rows)
	}

	rows, total, err = repo.GetHistory(ctx, HistoryQuery{EntryID: "grund", FromVersion: 2, ToVersion: 4})
	if err != nil {
		t.Fatalf("GetHistory error: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("version window: total=%d rows=%+v", total, rows)
	}
}

func TestMemory_ByIDSelectors(t *testing.T) {
	t.Parallel()

	repo := newMemoryRepo(t)
	ctx := context.Background()

	id := uuid.New()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := domain.NewEntry(id, "places", "grund", map[string]any{"code": "grund"}, "tester", "", base)
	if err := repo.Put(ctx, e); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	e.Body = map[string]any{"code": "grund", "name": "Grund"}
	if err := e.Stamp("tester", "", base.Add(time.Hour)); err != nil {
		t.Fatalf("Stamp error: %v", err)
	}
	if err := repo.Update(ctx, e); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, err := repo.ByID(ctx, id, ByIDQuery{Version: 1})
	if err != nil {
		t.Fatalf("ByID version error: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("got %+v", got)
	}

	got, err = repo.ByID(ctx, id, ByIDQuery{})
	if err != nil {
		t.Fatalf("ByID latest error: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("default selector must pick most recent: %+v", got)
	}

	cutoff := base.Add(30 * time.Minute)
	got, err = repo.ByID(ctx, id, ByIDQuery{BeforeDate: &cutoff})
	if err != nil {
		t.Fatalf("ByID before error: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("before-date selector: %+v", got)
	}

	got, err = repo.ByID(ctx, id, ByIDQuery{OldestFirst: true})
	if err != nil {
		t.Fatalf("ByID oldest error: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("oldest-first selector: %+v", got)
	}

	if _, err := repo.ByID(ctx, uuid.New(), ByIDQuery{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
