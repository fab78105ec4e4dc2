package resources

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func testConfig() domain.ResourceConfig {
	return domain.ResourceConfig{
		ResourceID: "places",
		IDField:    "code",
		Fields: map[string]domain.FieldConfig{
			"code": {Type: "string"},
		},
	}
}

func TestPut_InsertsVersionRow(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	res, err := domain.NewResource(uuid.New(), testConfig(), "alice", time.Now())
	if err != nil {
		t.Fatalf("NewResource error: %v", err)
	}

	mock.ExpectExec(`INSERT INTO resources .* VALUES .*`).
		WithArgs(res.ID, "places", int64(1), "places", sqlmock.AnyArg(), nil,
			res.LastModified, "alice", "Resource added.", "ADDED", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Put(context.Background(), res); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestByResourceID_LatestSkipsDiscarded(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "resource_id", "version", "name", "config", "is_published",
		"last_modified", "last_modified_by", "message", "op", "discarded",
	}).AddRow(id, "places", int64(4), "Places", []byte(`{"resource_id":"places","id":"code","fields":{"code":{"type":"string"}}}`),
		true, now, "alice", "Resource published.", "PUBLISHED", false)

	mock.ExpectQuery(`SELECT .* FROM resources WHERE resource_id = \$1 AND discarded = FALSE ORDER BY version DESC LIMIT 1`).
		WithArgs("places").
		WillReturnRows(rows)

	got, err := repo.ByResourceID(context.Background(), "places", 0)
	if err != nil {
		t.Fatalf("ByResourceID error: %v", err)
	}
	if got.Version != 4 || got.Config.IDField != "code" {
		t.Fatalf("got %+v", got)
	}
	if got.IsPublished == nil || !*got.IsPublished {
		t.Fatal("is_published lost in scan")
	}
}

func TestByResourceID_MissReturnsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM resources WHERE resource_id = \$1 AND version = \$2`).
		WithArgs("nope", int64(2)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ByResourceID(context.Background(), "nope", 2)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestClearPublished(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE resources SET is_published = FALSE WHERE resource_id = \$1 AND is_published = TRUE`).
		WithArgs("places").
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.ClearPublished(context.Background(), "places"); err != nil {
		t.Fatalf("ClearPublished error: %v", err)
	}
}
