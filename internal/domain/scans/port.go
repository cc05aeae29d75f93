package scans

import "context"

// Runner port: invokes one engine against one target. It never returns an
// error; every failure is reported inside the outcome.
type Runner interface {
	Run(ctx context.Context, target Target, engine EngineConfig) RunResult
}

// Store port (append-only persistence for combined records)
type Store interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, r *Record) error
	Latest(ctx context.Context, target Target) (*Record, error)
	Get(ctx context.Context, runID string) (*Record, error)
	History(ctx context.Context, target Target, limit int) ([]*Record, error)
	Ping(ctx context.Context) error
}

// ArtifactStore port (archive of raw engine output)
type ArtifactStore interface {
	Archive(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// EventPublisher announces records that were appended.
type EventPublisher interface {
	PublishCompleted(ctx context.Context, r *Record) error
}

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// ClampLimit applies the history paging bounds.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}
