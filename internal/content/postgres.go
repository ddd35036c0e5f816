package content

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/gremlinhq/gremlin/internal/errors"
	"github.com/gremlinhq/gremlin/internal/pagination"
)

// PostgresAdapter persists resources in PostgreSQL. Its cursor encoding
// (an offset token prefixed with "pg:") is private to this adapter and
// deliberately different from the memory adapter's.
type PostgresAdapter struct {
	db *sql.DB
}

// NewPostgresAdapter wraps an open database handle.
func NewPostgresAdapter(db *sql.DB) *PostgresAdapter {
	return &PostgresAdapter{db: db}
}

// OpenPostgres connects to the database and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresAdapter{db: db}, nil
}

// Close releases the database handle.
func (a *PostgresAdapter) Close() error {
	return a.db.Close()
}

const resourcesDDL = `
CREATE TABLE IF NOT EXISTS gremlin_resources (
	id         TEXT PRIMARY KEY,
	type       TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS gremlin_resource_links (
	parent_id TEXT NOT NULL REFERENCES gremlin_resources(id) ON DELETE CASCADE,
	child_id  TEXT NOT NULL REFERENCES gremlin_resources(id) ON DELETE CASCADE,
	position  INTEGER NOT NULL,
	PRIMARY KEY (parent_id, child_id)
);`

// EnsureSchema creates the adapter's tables when absent.
func (a *PostgresAdapter) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, resourcesDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const selectResource = `SELECT id, type, fields, created_by, created_at, updated_at FROM gremlin_resources`

// GetResource returns the resource or NOT_FOUND.
func (a *PostgresAdapter) GetResource(ctx context.Context, id string) (Resource, error) {
	row := a.db.QueryRowContext(ctx, selectResource+` WHERE id = $1`, id)
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return Resource{}, errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	if err != nil {
		return Resource{}, fmt.Errorf("get resource: %w", err)
	}
	return res, nil
}

// ListResources pages resources ordered by creation time then ID.
func (a *PostgresAdapter) ListResources(ctx context.Context, opts ListOptions) (pagination.Page[Resource], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	offset := 0
	if opts.Cursor != "" {
		n, err := decodePgCursor(opts.Cursor)
		if err != nil {
			return pagination.Page[Resource]{}, errors.Validation("Invalid pagination cursor.", err)
		}
		offset = n
	}

	query := selectResource
	args := []any{}
	if opts.Type != "" {
		query += ` WHERE type = $1`
		args = append(args, opts.Type)
	}
	// Fetch one extra row to learn whether another page exists.
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit+1, offset)

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return pagination.Page[Resource]{}, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	items := make([]Resource, 0, limit)
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return pagination.Page[Resource]{}, fmt.Errorf("scan resource: %w", err)
		}
		items = append(items, res)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[Resource]{}, fmt.Errorf("list resources: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	return pagination.New(items, encodePgCursor(offset+len(items)), hasMore), nil
}

// CreateResource inserts a new resource, assigning ID and timestamps
// when absent.
func (a *PostgresAdapter) CreateResource(ctx context.Context, res Resource) (Resource, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	if res.Fields == nil {
		res.Fields = map[string]any{}
	}

	fields, err := json.Marshal(res.Fields)
	if err != nil {
		return Resource{}, fmt.Errorf("marshal fields: %w", err)
	}

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO gremlin_resources (id, type, fields, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		res.ID, res.Type, fields, res.CreatedByID, res.CreatedAt, res.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Resource{}, errors.Conflict(fmt.Sprintf("Resource already exists: %s", res.ID))
		}
		return Resource{}, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

// UpdateResource shallow-merges fields into the stored JSONB document.
func (a *PostgresAdapter) UpdateResource(ctx context.Context, id string, fields map[string]any) (Resource, error) {
	patch, err := json.Marshal(fields)
	if err != nil {
		return Resource{}, fmt.Errorf("marshal fields: %w", err)
	}

	row := a.db.QueryRowContext(ctx,
		`UPDATE gremlin_resources SET fields = fields || $2::jsonb, updated_at = $3 WHERE id = $1
		 RETURNING id, type, fields, created_by, created_at, updated_at`,
		id, patch, time.Now().UTC())
	res, err := scanResource(row)
	if err == sql.ErrNoRows {
		return Resource{}, errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	if err != nil {
		return Resource{}, fmt.Errorf("update resource: %w", err)
	}
	return res, nil
}

// DeleteResource removes the resource; links cascade.
func (a *PostgresAdapter) DeleteResource(ctx context.Context, id string) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM gremlin_resources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	if affected == 0 {
		return errors.NotFound(fmt.Sprintf("Resource not found: %s", id))
	}
	return nil
}

// AddResourceToResource appends child at the end of parent's children.
func (a *PostgresAdapter) AddResourceToResource(ctx context.Context, parentID, childID string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO gremlin_resource_links (parent_id, child_id, position)
		 SELECT $1, $2, COALESCE(MAX(position) + 1, 0) FROM gremlin_resource_links WHERE parent_id = $1`,
		parentID, childID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict(fmt.Sprintf("Resource %s is already attached to %s", childID, parentID))
		}
		if isForeignKeyViolation(err) {
			return errors.NotFound("Parent or child resource not found.")
		}
		return fmt.Errorf("add resource link: %w", err)
	}
	return nil
}

// RemoveResourceFromResource detaches child from parent.
func (a *PostgresAdapter) RemoveResourceFromResource(ctx context.Context, parentID, childID string) error {
	result, err := a.db.ExecContext(ctx,
		`DELETE FROM gremlin_resource_links WHERE parent_id = $1 AND child_id = $2`, parentID, childID)
	if err != nil {
		return fmt.Errorf("remove resource link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove resource link: %w", err)
	}
	if affected == 0 {
		return errors.NotFound(fmt.Sprintf("Resource %s is not attached to %s", childID, parentID))
	}
	return nil
}

// ReorderResources rewrites the positions of parent's children in one
// transaction.
func (a *PostgresAdapter) ReorderResources(ctx context.Context, parentID string, childIDs []string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	defer tx.Rollback()

	for pos, childID := range childIDs {
		result, err := tx.ExecContext(ctx,
			`UPDATE gremlin_resource_links SET position = $3 WHERE parent_id = $1 AND child_id = $2`,
			parentID, childID, pos)
		if err != nil {
			return fmt.Errorf("reorder: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("reorder: %w", err)
		}
		if affected == 0 {
			return errors.Validation(fmt.Sprintf("Resource %s is not attached to %s.", childID, parentID), nil)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("reorder: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (Resource, error) {
	var res Resource
	var fields []byte
	if err := row.Scan(&res.ID, &res.Type, &fields, &res.CreatedByID, &res.CreatedAt, &res.UpdatedAt); err != nil {
		return Resource{}, err
	}
	if err := json.Unmarshal(fields, &res.Fields); err != nil {
		return Resource{}, fmt.Errorf("unmarshal fields: %w", err)
	}
	return res, nil
}

func encodePgCursor(offset int) string {
	return "pg:" + strconv.Itoa(offset)
}

func decodePgCursor(cursor string) (int, error) {
	raw, ok := strings.CutPrefix(cursor, "pg:")
	if !ok {
		return 0, fmt.Errorf("unrecognized cursor")
	}
	return strconv.Atoi(raw)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23503"
}
