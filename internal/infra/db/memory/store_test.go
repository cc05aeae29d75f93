package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func record(t *testing.T, runID string, target domain.Target, at time.Time) *domain.Record {
	t.Helper()
	p, err := domain.StructuredPayload(map[string]any{"ok": true})
	require.NoError(t, err)
	return &domain.Record{
		RunID:  runID,
		Target: target,
		Outcomes: map[domain.Engine]domain.EngineOutcome{
			domain.EngineWhatWeb: domain.OK(domain.EngineWhatWeb, domain.FormatJSON, p, nil),
			domain.EngineNmap:    domain.Failed(domain.EngineNmap, domain.FormatXML, "exit status 1"),
		},
		CreatedAt: at,
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnsureSchema(ctx))
	}
	require.NoError(t, s.Append(ctx, record(t, "r1", "https://a.test", t0)))
	require.NoError(t, s.EnsureSchema(ctx))

	got, err := s.Latest(ctx, "https://a.test")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RunID)
}

func TestReadYourWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := record(t, "r1", "https://a.test", t0.Add(123456789*time.Nanosecond))

	require.NoError(t, s.Append(ctx, in))

	got, err := s.Latest(ctx, in.Target)
	require.NoError(t, err)
	want := *in
	want.CreatedAt = in.CreatedAt.Truncate(time.Microsecond)
	assert.Equal(t, &want, got)

	byID, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, got, byID)
}

func TestLatest_NotFound(t *testing.T) {
	s := New()
	_, err := s.Latest(context.Background(), "https://none.test")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryOrdering(t *testing.T) {
	s := New()
	ctx := context.Background()
	target := domain.Target("https://a.test")

	require.NoError(t, s.Append(ctx, record(t, "old", target, t0)))
	// same timestamp: insertion order decides
	require.NoError(t, s.Append(ctx, record(t, "tie-1", target, t0.Add(time.Minute))))
	require.NoError(t, s.Append(ctx, record(t, "tie-2", target, t0.Add(time.Minute))))
	require.NoError(t, s.Append(ctx, record(t, "other", "https://b.test", t0.Add(time.Hour))))

	recs, err := s.History(ctx, target, 0)
	require.NoError(t, err)
	var ids []string
	for _, r := range recs {
		ids = append(ids, r.RunID)
	}
	assert.Equal(t, []string{"tie-2", "tie-1", "old"}, ids)

	latest, err := s.Latest(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, "tie-2", latest.RunID)

	recs, err = s.History(ctx, target, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestAppend_Rejects(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, record(t, "r1", "https://a.test", t0)))
	assert.Error(t, s.Append(ctx, record(t, "r1", "https://a.test", t0)), "duplicate run id")
	assert.Error(t, s.Append(ctx, record(t, "r2", "not a url", t0)), "invalid target")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, s.Append(cancelled, record(t, "r3", "https://a.test", t0)), domain.ErrStoreUnavailable)

	recs, err := s.History(ctx, "https://a.test", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
