package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const DefaultTable = "web_scans"

type ScanRepository struct {
	db     *sql.DB
	table  string
	schema atomic.Bool
}

func NewScanRepository(db *sql.DB, table string) *ScanRepository {
	if table == "" {
		table = DefaultTable
	}
	return &ScanRepository{db: db, table: quoteIdent(table)}
}

// EnsureSchema creates the table when missing. The index is declared inline
// because MySQL has no CREATE INDEX IF NOT EXISTS. url uses a binary
// collation: targets match byte for byte, never case- or accent-folded.
func (r *ScanRepository) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
  run_id     VARCHAR(36) NOT NULL,
  url        VARCHAR(2048) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
  report     JSON NOT NULL,
  created_at DATETIME(6) NOT NULL,
  UNIQUE KEY uq_run_id (run_id),
  KEY idx_url_created (url(255), created_at, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`, r.table)
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", domain.ErrStoreUnavailable, err)
	}
	r.schema.Store(true)
	return nil
}

func (r *ScanRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Append insert satu record, single statement
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

	q := fmt.Sprintf(`INSERT INTO %s (run_id, url, report, created_at) VALUES (?, ?, ?, ?)`, r.table)
	// JSON columns reject binary-charset parameters, so report goes as string
	_, err = r.db.ExecContext(ctx, q, rec.RunID, string(rec.Target), string(report), rec.CreatedAt.UTC())
	switch {
	case err == nil:
		return nil
	case isDuplicate(err):
		return fmt.Errorf("append: run id %s already stored: %w", rec.RunID, err)
	default:
		return fmt.Errorf("%w: append %s: %w", domain.ErrStoreUnavailable, rec.RunID, err)
	}
}

func (r *ScanRepository) Latest(ctx context.Context, target domain.Target) (*domain.Record, error) {
	q := fmt.Sprintf(`
SELECT run_id, url, report, created_at FROM %s
WHERE url = ?
ORDER BY created_at DESC, id DESC
LIMIT 1`, r.table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, string(target)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, target)
	}
	return rec, err
}

func (r *ScanRepository) Get(ctx context.Context, runID string) (*domain.Record, error) {
	q := fmt.Sprintf(`SELECT run_id, url, report, created_at FROM %s WHERE run_id = ?`, r.table)
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	return rec, err
}

// History N record terakhir untuk satu url
func (r *ScanRepository) History(ctx context.Context, target domain.Target, limit int) ([]*domain.Record, error) {
	q := fmt.Sprintf(`
SELECT run_id, url, report, created_at FROM %s
WHERE url = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, r.table)
	rows, err := r.db.QueryContext(ctx, q, string(target), domain.ClampLimit(limit))
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		runID, url string
		report     []byte
		createdAt  time.Time
	)
	if err := row.Scan(&runID, &url, &report, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return domain.DecodeRecord(runID, url, report, createdAt)
}
