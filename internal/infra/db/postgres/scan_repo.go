package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const DefaultTable = "web_scans"

// ScanRepository is the append-only record store on PostgreSQL.
type ScanRepository struct {
	pool   *pgxpool.Pool
	table  string // sanitized identifier
	schema atomic.Bool
}

func NewScanRepository(pool *pgxpool.Pool, table string) *ScanRepository {
	if table == "" {
		table = DefaultTable
	}
	return &ScanRepository{pool: pool, table: pgx.Identifier{table}.Sanitize()}
}

// EnsureSchema creates the table and its index if they are missing.
func (r *ScanRepository) EnsureSchema(ctx context.Context) error {
	ddl := []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id         BIGSERIAL PRIMARY KEY,
  run_id     TEXT NOT NULL UNIQUE,
  url        TEXT NOT NULL,
  report     JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
);`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (url, created_at DESC, id DESC);`,
			pgx.Identifier{indexName(r.table)}.Sanitize(), r.table),
	}
	for _, stmt := range ddl {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: ensure schema: %w", domain.ErrStoreUnavailable, err)
		}
	}
	r.schema.Store(true)
	return nil
}

func indexName(sanitized string) string {
	name := sanitized
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	return name + "_url_created_idx"
}

func (r *ScanRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Append writes one record in a single INSERT.
func (r *ScanRepository) Append(ctx context.Context, rec *domain.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if !r.schema.Load() {
		if err := r.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	report, err := domain.EncodeOutcomes(rec.Outcomes)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (run_id, url, report, created_at) VALUES ($1, $2, $3, $4);`, r.table)
	if _, err := r.pool.Exec(ctx, q, rec.RunID, string(rec.Target), report, rec.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("%w: append %s: %w", domain.ErrStoreUnavailable, rec.RunID, err)
	}
	return nil
}

func (r *ScanRepository) Latest(ctx context.Context, target domain.Target) (*domain.Record, error) {
	q := fmt.Sprintf(`
SELECT run_id, url, report, created_at FROM %s
WHERE url = $1
ORDER BY created_at DESC, id DESC
LIMIT 1;`, r.table)
	rec, err := scanRecord(r.pool.QueryRow(ctx, q, string(target)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, target)
	}
	return rec, err
}

func (r *ScanRepository) Get(ctx context.Context, runID string) (*domain.Record, error) {
	q := fmt.Sprintf(`SELECT run_id, url, report, created_at FROM %s WHERE run_id = $1;`, r.table)
	rec, err := scanRecord(r.pool.QueryRow(ctx, q, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	return rec, err
}

func (r *ScanRepository) History(ctx context.Context, target domain.Target, limit int) ([]*domain.Record, error) {
	q := fmt.Sprintf(`
SELECT run_id, url, report, created_at FROM %s
WHERE url = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`, r.table)
	rows, err := r.pool.Query(ctx, q, string(target), domain.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: history: %w", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: history: %w", domain.ErrStoreUnavailable, err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var (
		runID, url string
		report     []byte
		createdAt  time.Time
	)
	if err := row.Scan(&runID, &url, &report, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return domain.DecodeRecord(runID, url, report, createdAt)
}
