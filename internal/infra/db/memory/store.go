// Package memory is a process-local Store used by tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

type row struct {
	id        int64
	runID     string
	url       string
	report    []byte
	createdAt time.Time
}

// Store keeps encoded rows exactly as a SQL backend would, so reads go
// through the same decoding path.
type Store struct {
	mu      sync.RWMutex
	rows    []row
	byRunID map[string]int
	nextID  int64
}

func New() *Store {
	return &Store{byRunID: make(map[string]int)}
}

func (s *Store) EnsureSchema(context.Context) error { return nil }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Append(ctx context.Context, r *domain.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("append: %w", err)
	}
	report, err := domain.EncodeOutcomes(r.Outcomes)
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byRunID[r.RunID]; dup {
		return fmt.Errorf("append: duplicate run id %s", r.RunID)
	}
	s.nextID++
	s.byRunID[r.RunID] = len(s.rows)
	s.rows = append(s.rows, row{
		id:        s.nextID,
		runID:     r.RunID,
		url:       string(r.Target),
		report:    report,
		createdAt: r.CreatedAt.UTC().Truncate(time.Microsecond),
	})
	return nil
}

func (s *Store) Latest(ctx context.Context, target domain.Target) (*domain.Record, error) {
	recs, err := s.History(ctx, target, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, target)
	}
	return recs[0], nil
}

func (s *Store) Get(_ context.Context, runID string) (*domain.Record, error) {
	s.mu.RLock()
	i, ok := s.byRunID[runID]
	var r row
	if ok {
		r = s.rows[i]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, runID)
	}
	return decode(r)
}

// History orders by created_at then insertion sequence, newest first.
func (s *Store) History(_ context.Context, target domain.Target, limit int) ([]*domain.Record, error) {
	limit = domain.ClampLimit(limit)

	s.mu.RLock()
	var matched []row
	for _, r := range s.rows {
		if r.url == string(target) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	out := make([]*domain.Record, 0, len(matched))
	for _, r := range matched {
		rec, err := decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func sortNewestFirst(rows []row) {
	slices.SortFunc(rows, func(a, b row) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		switch {
		case a.id > b.id:
			return -1
		case a.id < b.id:
			return 1
		}
		return 0
	})
}

func decode(r row) (*domain.Record, error) {
	return domain.DecodeRecord(r.runID, r.url, r.report, r.createdAt)
}
