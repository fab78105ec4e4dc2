package resources

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spraakbanken/karp-backend/internal/dbx"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

const resourceColumns = "id, resource_id, version, name, config, is_published, last_modified, last_modified_by, message, op, discarded"

// PostgresRepository implements Repository over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Put appends the resource as a new version row.
func (r *PostgresRepository) Put(ctx context.Context, res *domain.Resource) error {
	cfg, err := json.Marshal(res.Config)
	if err != nil {
		return &domain.RepositoryError{Op: "put", Err: err}
	}
	query := `
		INSERT INTO resources (id, resource_id, version, name, config, is_published, last_modified, last_modified_by, message, op, discarded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, query,
		res.ID, res.ResourceID, res.Version, res.Name, cfg, res.IsPublished,
		res.LastModified, res.LastModifiedBy, res.Message, string(res.Op), res.Discarded)
	if err != nil {
		return &domain.RepositoryError{Op: "put", Err: err}
	}
	return nil
}

// ByResourceID returns one version of a resource, latest when version is 0.
func (r *PostgresRepository) ByResourceID(ctx context.Context, resourceID string, version int64) (*domain.Resource, error) {
	var query string
	var args []any
	if version > 0 {
		query = fmt.Sprintf(`SELECT %s FROM resources WHERE resource_id = $1 AND version = $2`, resourceColumns)
		args = []any{resourceID, version}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM resources WHERE resource_id = $1 AND discarded = FALSE ORDER BY version DESC LIMIT 1`, resourceColumns)
		args = []any{resourceID}
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	res, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.RepositoryError{Op: "by_resource_id", Err: err}
	}
	return res, nil
}

// Published returns the published version of every resource.
func (r *PostgresRepository) Published(ctx context.Context) ([]*domain.Resource, error) {
	query := fmt.Sprintf(`SELECT %s FROM resources WHERE is_published = TRUE AND discarded = FALSE`, resourceColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "published", Err: err}
	}
	defer rows.Close()

	var out []*domain.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, &domain.RepositoryError{Op: "published", Err: err}
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "published", Err: err}
	}
	return out, nil
}

// ClearPublished removes the published mark from every version of the
// resource.
func (r *PostgresRepository) ClearPublished(ctx context.Context, resourceID string) error {
	query := `UPDATE resources SET is_published = FALSE WHERE resource_id = $1 AND is_published = TRUE`
	if _, err := r.db.ExecContext(ctx, query, resourceID); err != nil {
		return &domain.RepositoryError{Op: "clear_published", Err: err}
	}
	return nil
}

// ResourceIDs enumerates all known resource ids.
func (r *PostgresRepository) ResourceIDs(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT resource_id FROM resources WHERE discarded = FALSE`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "resource_ids", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.RepositoryError{Op: "resource_ids", Err: err}
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "resource_ids", Err: err}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (*domain.Resource, error) {
	var (
		res          domain.Resource
		cfg          []byte
		op           string
		message      sql.NullString
		isPublished  sql.NullBool
		lastModified time.Time
	)
	err := row.Scan(&res.ID, &res.ResourceID, &res.Version, &res.Name, &cfg,
		&isPublished, &lastModified, &res.LastModifiedBy, &message, &op, &res.Discarded)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cfg, &res.Config); err != nil {
		return nil, err
	}
	if isPublished.Valid {
		res.IsPublished = &isPublished.Bool
	}
	res.Message = message.String
	res.Op = domain.ResourceOp(op)
	res.LastModified = lastModified
	return &res, nil
}
