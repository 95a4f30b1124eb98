package cases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the case store.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists cases and their resources in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const resourceColumns = `case_id, resource_id, resource_type, original_url, s3_key, is_synced, created_at, updated_at`

// GetCase loads a case by id. Unknown ids return ErrCaseNotFound.
func (s *Store) GetCase(ctx context.Context, caseID string) (*Case, error) {
	query := `
		SELECT case_id, spark_title, reveal_title, series_name, difficulty_level, raw_row, created_at, updated_at
		FROM sim_cases
		WHERE case_id = $1
	`
	var (
		c   Case
		raw []byte
	)
	err := s.pool.QueryRow(ctx, query, caseID).Scan(
		&c.CaseID, &c.SparkTitle, &c.RevealTitle, &c.SeriesName, &c.DifficultyLevel, &raw, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cases: get case: %w", err)
	}
	c.RawRow = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.RawRow); err != nil {
			return nil, fmt.Errorf("cases: decode raw row for %s: %w", caseID, err)
		}
	}
	return &c, nil
}

// ListResources returns the resources of a case in insertion order.
func (s *Store) ListResources(ctx context.Context, caseID string) ([]Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM sim_resources
		WHERE case_id = $1
		ORDER BY created_at, resource_id
	`
	rows, err := s.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("cases: list resources: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// ListUnsyncedResources returns resources of a case whose media has not been mirrored.
func (s *Store) ListUnsyncedResources(ctx context.Context, caseID string) ([]Resource, error) {
	query := `SELECT ` + resourceColumns + `
		FROM sim_resources
		WHERE case_id = $1 AND is_synced = false
		ORDER BY created_at, resource_id
	`
	rows, err := s.pool.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("cases: list unsynced resources: %w", err)
	}
	defer rows.Close()
	return scanResources(rows)
}

// FindResource looks up a resource by id. When caseID is empty the most
// recently updated resource with that id across all cases is returned.
func (s *Store) FindResource(ctx context.Context, caseID, resourceID string) (*Resource, error) {
	var row pgx.Row
	if caseID != "" {
		row = s.pool.QueryRow(ctx, `SELECT `+resourceColumns+`
			FROM sim_resources
			WHERE case_id = $1 AND resource_id = $2
		`, caseID, resourceID)
	} else {
		row = s.pool.QueryRow(ctx, `SELECT `+resourceColumns+`
			FROM sim_resources
			WHERE resource_id = $1
			ORDER BY updated_at DESC
			LIMIT 1
		`, resourceID)
	}
	res, err := scanResource(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrResourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cases: find resource: %w", err)
	}
	return res, nil
}

// UpsertCase inserts or updates a case row. It reports whether the row was created.
func (s *Store) UpsertCase(ctx context.Context, c Case) (bool, error) {
	raw, err := json.Marshal(c.RawRow)
	if err != nil {
		return false, fmt.Errorf("cases: encode raw row: %w", err)
	}
	query := `
		INSERT INTO sim_cases (case_id, spark_title, reveal_title, series_name, difficulty_level, raw_row)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (case_id) DO UPDATE
		SET spark_title = EXCLUDED.spark_title,
			reveal_title = EXCLUDED.reveal_title,
			series_name = EXCLUDED.series_name,
			difficulty_level = EXCLUDED.difficulty_level,
			raw_row = EXCLUDED.raw_row,
			updated_at = now()
		RETURNING (xmax = 0)
	`
	var created bool
	if err := s.pool.QueryRow(ctx, query, c.CaseID, c.SparkTitle, c.RevealTitle, c.SeriesName, c.DifficultyLevel, raw).Scan(&created); err != nil {
		return false, fmt.Errorf("cases: upsert case: %w", err)
	}
	return created, nil
}

// UpsertResource inserts or updates a resource, leaving sync state untouched
// on update. It returns the stored row and whether it was created.
func (s *Store) UpsertResource(ctx context.Context, r Resource) (*Resource, bool, error) {
	query := `
		INSERT INTO sim_resources (case_id, resource_id, resource_type, original_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id, resource_id) DO UPDATE
		SET resource_type = EXCLUDED.resource_type,
			original_url = EXCLUDED.original_url,
			updated_at = now()
		RETURNING ` + resourceColumns + `, (xmax = 0)
	`
	var (
		out     Resource
		created bool
	)
	err := s.pool.QueryRow(ctx, query, r.CaseID, r.ResourceID, r.ResourceType, r.OriginalURL).Scan(
		&out.CaseID, &out.ResourceID, &out.ResourceType, &out.OriginalURL, &out.S3Key, &out.IsSynced, &out.CreatedAt, &out.UpdatedAt, &created,
	)
	if err != nil {
		return nil, false, fmt.Errorf("cases: upsert resource: %w", err)
	}
	return &out, created, nil
}

// MarkResourceSynced records the object key a resource was mirrored to.
func (s *Store) MarkResourceSynced(ctx context.Context, caseID, resourceID, s3Key string) error {
	query := `
		UPDATE sim_resources
		SET s3_key = $3, is_synced = true, updated_at = now()
		WHERE case_id = $1 AND resource_id = $2
	`
	tag, err := s.pool.Exec(ctx, query, caseID, resourceID, s3Key)
	if err != nil {
		return fmt.Errorf("cases: mark resource synced: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrResourceNotFound
	}
	return nil
}

func scanResources(rows pgx.Rows) ([]Resource, error) {
	var out []Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("cases: scan resource: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cases: iterate resources: %w", err)
	}
	return out, nil
}

func scanResource(row pgx.Row) (*Resource, error) {
	var r Resource
	if err := row.Scan(&r.CaseID, &r.ResourceID, &r.ResourceType, &r.OriginalURL, &r.S3Key, &r.IsSynced, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
