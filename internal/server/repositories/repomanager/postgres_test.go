package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"

	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

func placesConfig() domain.ResourceConfig {
	return domain.ResourceConfig{
		ResourceID: "places",
		IDField:    "code",
		Fields: map[string]domain.FieldConfig{
			"code":       {Type: "string", Required: true},
			"population": {Type: "integer"},
			"districts":  {Type: "string", Collection: true},
		},
		Referenceable: []string{"code", "population", "districts"},
	}
}

func TestCreateEntryTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS entries_places`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runtime_places \(entry_id TEXT PRIMARY KEY.*code TEXT.*population BIGINT\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS runtime_places_districts`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS idx_runtime_places_districts_districts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	mgr := NewPostgresRepositoryManager()
	if err := mgr.CreateEntryTables(context.Background(), db, placesConfig()); err != nil {
		t.Fatalf("CreateEntryTables error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateEntryTables_ExecError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS entries_places`).
		WillReturnError(errors.New("exec-fail"))

	mgr := NewPostgresRepositoryManager()
	err = mgr.CreateEntryTables(context.Background(), db, placesConfig())
	var repoErr *domain.RepositoryError
	if !errors.As(err, &repoErr) {
		t.Fatalf("want RepositoryError, got %v", err)
	}
}

func TestRunMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var calls int
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		calls++
		return nil
	}

	mgr := NewPostgresRepositoryManager()
	if err := mgr.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("goose up calls: %d", calls)
	}
}
