package entries

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spraakbanken/karp-backend/internal/dbx"
	"github.com/spraakbanken/karp-backend/internal/server/domain"
)

// Table naming for the per-resource tables. Resource and field names are
// validated in domain.NewResource, so embedding them in identifiers is safe.

func HistoryTableName(resourceID string) string { return "entries_" + resourceID }

func RuntimeTableName(resourceID string) string { return "runtime_" + resourceID }

func ChildTableName(resourceID, field string) string {
	return "runtime_" + resourceID + "_" + field
}

const historyColumns = "id, entry_id, version, last_modified, last_modified_by, body, status, message, op, discarded"

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or
// *sql.Tx) for one resource. Each resource owns a history table, a runtime
// table, and one child table per collection-valued referenceable field.
type PostgresRepository struct {
	db         dbx.DBTX
	resourceID string
	cfg        domain.ResourceConfig
	history    string
	runtime    string
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, resourceID string, cfg domain.ResourceConfig) *PostgresRepository {
	return &PostgresRepository{
		db:         db,
		resourceID: resourceID,
		cfg:        cfg,
		history:    HistoryTableName(resourceID),
		runtime:    RuntimeTableName(resourceID),
	}
}

func (r *PostgresRepository) scalarReferenceable() []string {
	var out []string
	for _, f := range r.cfg.Referenceable {
		if !r.cfg.Fields[f].Collection {
			out = append(out, f)
		}
	}
	return out
}

func (r *PostgresRepository) collectionReferenceable() []string {
	var out []string
	for _, f := range r.cfg.Referenceable {
		if r.cfg.Fields[f].Collection {
			out = append(out, f)
		}
	}
	return out
}

func (r *PostgresRepository) insertHistory(ctx context.Context, op string, e *domain.Entry) (int64, error) {
	body, err := json.Marshal(e.Body)
	if err != nil {
		return 0, &domain.RepositoryError{Op: op, Err: err}
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, entry_id, version, last_modified, last_modified_by, body, status, message, op, discarded)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING history_id`, r.history)
	var historyID int64
	err = r.db.QueryRowContext(ctx, query,
		e.ID, e.EntryID, e.Version, e.LastModified, e.LastModifiedBy,
		body, string(e.Status), e.Message, string(e.Op), e.Discarded,
	).Scan(&historyID)
	if err != nil {
		return 0, &domain.RepositoryError{Op: op, Err: err}
	}
	return historyID, nil
}

func (r *PostgresRepository) insertChildRows(ctx context.Context, op string, e *domain.Entry) error {
	for _, field := range r.collectionReferenceable() {
		values, ok := e.Body[field].([]any)
		if !ok {
			continue
		}
		query := fmt.Sprintf(`INSERT INTO %s (entry_id, %s) VALUES ($1, $2)`,
			ChildTableName(r.resourceID, field), field)
		for _, v := range values {
			if _, err := r.db.ExecContext(ctx, query, e.EntryID, v); err != nil {
				return &domain.RepositoryError{Op: op, Err: err}
			}
		}
	}
	return nil
}

func (r *PostgresRepository) deleteChildRows(ctx context.Context, op, entryID string) error {
	for _, field := range r.collectionReferenceable() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE entry_id = $1`, ChildTableName(r.resourceID, field))
		if _, err := r.db.ExecContext(ctx, query, entryID); err != nil {
			return &domain.RepositoryError{Op: op, Err: err}
		}
	}
	return nil
}

// Put inserts a new history row and a new runtime-projection row, including
// fan-out rows for collection-valued referenceable fields.
func (r *PostgresRepository) Put(ctx context.Context, e *domain.Entry) error {
	historyID, err := r.insertHistory(ctx, "put", e)
	if err != nil {
		return err
	}

	cols := []string{"entry_id", "history_id", "id", "discarded"}
	args := []any{e.EntryID, historyID, e.ID, e.Discarded}
	for _, field := range r.scalarReferenceable() {
		cols = append(cols, field)
		args = append(args, e.Body[field])
	}
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if col != "entry_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
		}
	}
	// Upsert: an entry id may be reused after its previous holder was
	// discarded; uniqueness holds only among non-discarded entries.
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (entry_id) DO UPDATE SET %s`,
		r.runtime, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return &domain.RepositoryError{Op: "put", Err: err}
	}

	if err := r.deleteChildRows(ctx, "put", e.EntryID); err != nil {
		return err
	}
	return r.insertChildRows(ctx, "put", e)
}

// Update inserts a history row for the new version and updates the existing
// projection row in place.
func (r *PostgresRepository) Update(ctx context.Context, e *domain.Entry) error {
	historyID, err := r.insertHistory(ctx, "update", e)
	if err != nil {
		return err
	}

	sets := []string{"history_id = $1", "id = $2", "discarded = $3"}
	args := []any{historyID, e.ID, e.Discarded}
	n := len(args)
	for _, field := range r.scalarReferenceable() {
		n++
		sets = append(sets, fmt.Sprintf("%s = $%d", field, n))
		args = append(args, e.Body[field])
	}
	args = append(args, e.EntryID)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE entry_id = $%d`,
		r.runtime, strings.Join(sets, ", "), n+1)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &domain.RepositoryError{Op: "update", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "update", Err: err}
	}
	if affected == 0 {
		return &domain.RepositoryError{Op: "update", Err: fmt.Errorf("could not find %q", e.EntryID)}
	}

	if err := r.deleteChildRows(ctx, "update", e.EntryID); err != nil {
		return err
	}
	return r.insertChildRows(ctx, "update", e)
}

// Move marks the projection row under oldEntryID discarded and inserts a
// fresh projection row under the entry's new id.
func (r *PostgresRepository) Move(ctx context.Context, e *domain.Entry, oldEntryID string) error {
	query := fmt.Sprintf(`UPDATE %s SET discarded = TRUE WHERE entry_id = $1`, r.runtime)
	res, err := r.db.ExecContext(ctx, query, oldEntryID)
	if err != nil {
		return &domain.RepositoryError{Op: "move", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "move", Err: err}
	}
	if affected == 0 {
		return &domain.RepositoryError{Op: "move", Err: fmt.Errorf("could not find %q", oldEntryID)}
	}
	return r.Put(ctx, e)
}

// Delete appends the discard to history and marks the projection row
// discarded.
func (r *PostgresRepository) Delete(ctx context.Context, e *domain.Entry) error {
	historyID, err := r.insertHistory(ctx, "delete", e)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET discarded = TRUE, history_id = $1 WHERE entry_id = $2`, r.runtime)
	res, err := r.db.ExecContext(ctx, query, historyID, e.EntryID)
	if err != nil {
		return &domain.RepositoryError{Op: "delete", Err: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &domain.RepositoryError{Op: "delete", Err: err}
	}
	if affected == 0 {
		return &domain.RepositoryError{Op: "delete", Err: fmt.Errorf("could not find %q", e.EntryID)}
	}
	return nil
}

// ByEntryID returns the most recent row for entryID, or the requested
// version when version > 0. Recency goes by insertion order rather than by
// version, since a re-created entry starts its version count over.
func (r *PostgresRepository) ByEntryID(ctx context.Context, entryID string, version int64) (*domain.Entry, error) {
	var query string
	var args []any
	if version > 0 {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE entry_id = $1 AND version = $2`, historyColumns, r.history)
		args = []any{entryID, version}
	} else {
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE entry_id = $1 ORDER BY history_id DESC LIMIT 1`, historyColumns, r.history)
		args = []any{entryID}
	}
	return r.queryOne(ctx, query, args...)
}

// ByID looks up one history row by identity with the query's time/version
// filters; with no selector the most-recent-by-time row is returned.
func (r *PostgresRepository) ByID(ctx context.Context, id uuid.UUID, q ByIDQuery) (*domain.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, historyColumns, r.history)
	args := []any{id}
	switch {
	case q.Version > 0:
		query += ` AND version = $2`
		args = append(args, q.Version)
	case q.AfterDate != nil:
		query += ` AND last_modified >= $2 ORDER BY last_modified`
		args = append(args, *q.AfterDate)
	case q.BeforeDate != nil:
		query += ` AND last_modified <= $2 ORDER BY last_modified DESC`
		args = append(args, *q.BeforeDate)
	case q.OldestFirst:
		query += ` ORDER BY last_modified`
	default:
		query += ` ORDER BY last_modified DESC`
	}
	query += ` LIMIT 1`
	return r.queryOne(ctx, query, args...)
}

// ByReferenceable joins the runtime projection (and child tables for
// collection fields) against the filters.
func (r *PostgresRepository) ByReferenceable(ctx context.Context, filters map[string]any) ([]*domain.Entry, error) {
	var scalars, collections []string
	for field := range filters {
		if !r.cfg.IsReferenceable(field) {
			return nil, &domain.NonExistingFieldError{Field: field}
		}
		if r.cfg.Fields[field].Collection {
			collections = append(collections, field)
		} else {
			scalars = append(scalars, field)
		}
	}

	var joins, conds []string
	var args []any
	conds = append(conds, "r.discarded = FALSE")
	for _, field := range scalars {
		args = append(args, filters[field])
		conds = append(conds, fmt.Sprintf("r.%s = $%d", field, len(args)))
	}
	for i, field := range collections {
		alias := fmt.Sprintf("c%d", i)
		joins = append(joins, fmt.Sprintf("JOIN %s %s ON %s.entry_id = r.entry_id",
			ChildTableName(r.resourceID, field), alias, alias))
		args = append(args, filters[field])
		conds = append(conds, fmt.Sprintf("%s.%s = $%d", alias, field, len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM %s r JOIN %s h ON r.history_id = h.history_id %s WHERE %s`,
		prefixColumns("h"), r.runtime, r.history, strings.Join(joins, " "), strings.Join(conds, " AND "))
	return r.queryMany(ctx, "by_referenceable", query, args...)
}

// HistoryByEntryID returns the full history for an entry id, oldest first.
func (r *PostgresRepository) HistoryByEntryID(ctx context.Context, entryID string) ([]*domain.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE entry_id = $1 ORDER BY version`, historyColumns, r.history)
	return r.queryMany(ctx, "history_by_entry_id", query, entryID)
}

// GetHistory returns one page of filtered history rows and the total count
// matching the filters.
func (r *PostgresRepository) GetHistory(ctx context.Context, q HistoryQuery) ([]*domain.Entry, int64, error) {
	var conds []string
	var args []any
	if q.UserID != "" {
		args = append(args, q.UserID)
		conds = append(conds, fmt.Sprintf("last_modified_by = $%d", len(args)))
	}
	if q.EntryID != "" {
		args = append(args, q.EntryID)
		conds = append(conds, fmt.Sprintf("entry_id = $%d", len(args)))
	}
	if q.EntryID != "" && q.FromVersion > 0 {
		args = append(args, q.FromVersion)
		conds = append(conds, fmt.Sprintf("version >= $%d", len(args)))
	} else if q.FromDate != nil {
		args = append(args, *q.FromDate)
		conds = append(conds, fmt.Sprintf("last_modified >= $%d", len(args)))
	}
	if q.EntryID != "" && q.ToVersion > 0 {
		args = append(args, q.ToVersion)
		conds = append(conds, fmt.Sprintf("version < $%d", len(args)))
	} else if q.ToDate != nil {
		args = append(args, *q.ToDate)
		conds = append(conds, fmt.Sprintf("last_modified <= $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s%s`, r.history, where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, &domain.RepositoryError{Op: "get_history", Err: err}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	pageArgs := append(args, limit, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY history_id LIMIT $%d OFFSET $%d`,
		historyColumns, r.history, where, len(args)+1, len(args)+2)
	rows, err := r.queryMany(ctx, "get_history", query, pageArgs...)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// EntryIDs enumerates the ids of all non-discarded entries.
func (r *PostgresRepository) EntryIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf(`SELECT entry_id FROM %s WHERE discarded = FALSE`, r.runtime)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.RepositoryError{Op: "entry_ids", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, &domain.RepositoryError{Op: "entry_ids", Err: err}
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: "entry_ids", Err: err}
	}
	return out, nil
}

// AllEntries returns the current version of every non-discarded entry.
func (r *PostgresRepository) AllEntries(ctx context.Context) ([]*domain.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s r JOIN %s h ON r.history_id = h.history_id WHERE r.discarded = FALSE`,
		prefixColumns("h"), r.runtime, r.history)
	return r.queryMany(ctx, "all_entries", query)
}

func prefixColumns(alias string) string {
	cols := strings.Split(historyColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

func (r *PostgresRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Entry, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	e, err := r.scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, &domain.RepositoryError{Op: "query", Err: err}
	}
	return e, nil
}

func (r *PostgresRepository) queryMany(ctx context.Context, op, query string, args ...any) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.RepositoryError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		e, err := r.scanEntry(rows)
		if err != nil {
			return nil, &domain.RepositoryError{Op: op, Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.RepositoryError{Op: op, Err: err}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanEntry(row rowScanner) (*domain.Entry, error) {
	var (
		e            domain.Entry
		body         []byte
		status, op   string
		message      sql.NullString
		lastModified time.Time
	)
	err := row.Scan(&e.ID, &e.EntryID, &e.Version, &lastModified, &e.LastModifiedBy,
		&body, &status, &message, &op, &e.Discarded)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &e.Body); err != nil {
		return nil, err
	}
	e.ResourceID = r.resourceID
	e.Status = domain.EntryStatus(status)
	e.Op = domain.EntryOp(op)
	e.Message = message.String
	e.LastModified = lastModified
	return &e, nil
}
