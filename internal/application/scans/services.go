package scans

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bryanwahyu/webscan/internal/application"
	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
)

const tracerName = "github.com/bryanwahyu/webscan/internal/application/scans"

// Run results reported to the Observer.
const (
	ResultOK        = "ok"
	ResultCancelled = "cancelled"
	ResultFailed    = "persist_failed"
	ResultInvalid   = "invalid"
)

// Observer receives run and engine measurements.
type Observer interface {
	ObserveEngine(engine, status string, degraded bool, d time.Duration)
	ObserveRun(result string, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) ObserveEngine(string, string, bool, time.Duration) {}
func (noopObserver) ObserveRun(string, time.Duration)                  {}

// Service implements use-cases untuk Scan: fan out to every configured
// engine, persist one combined record, read it back.
// Service is safe for concurrent use once constructed.
type Service struct {
	Store   domain.Store
	Runner  domain.Runner
	Engines []domain.EngineConfig
	// Sequential runs engines one at a time in configuration order.
	Sequential bool

	Artifacts domain.ArtifactStore  // optional
	Events    domain.EventPublisher // optional
	Observer  Observer              // optional
	Clock     application.Clock
	Logger    *slog.Logger
	NewID     func() string
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) observer() Observer {
	if s.Observer != nil {
		return s.Observer
	}
	return noopObserver{}
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

//
// ==== USE CASES ====
//

// Analyze validates raw, runs every configured engine, and returns the
// record as read back from the store.
func (s *Service) Analyze(ctx context.Context, raw string) (*domain.Record, error) {
	target, err := domain.ParseTarget(raw)
	if err != nil {
		s.observer().ObserveRun(ResultInvalid, 0)
		return nil, err
	}

	rec, err := s.RunAll(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return s.readBack(ctx, target, rec.RunID)
}

// readBack returns this run's record. Another run for the same target may
// have been appended in between, in which case Latest is not ours.
func (s *Service) readBack(ctx context.Context, target domain.Target, runID string) (*domain.Record, error) {
	latest, err := s.Store.Latest(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("%w: latest %s: %w", domain.ErrStoreRead, target, err)
	}
	if latest.RunID == runID {
		return latest, nil
	}

	s.logger().Info("newer run landed before read-back, reading by run id",
		"target", target, "run_id", runID, "latest_run_id", latest.RunID)
	rec, err := s.Store.Get(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("%w: run %s: %w", domain.ErrStoreRead, runID, err)
	}
	return rec, nil
}

// RunAll runs engines (the configured set when nil) against target and
// appends exactly one record. Engine failures are recorded in the outcome
// map and never abort the run.
func (s *Service) RunAll(ctx context.Context, target domain.Target, engines []domain.EngineConfig) (*domain.Record, error) {
	if err := target.Validate(); err != nil {
		s.observer().ObserveRun(ResultInvalid, 0)
		return nil, err
	}
	if engines == nil {
		engines = s.Engines
	}
	if err := checkEngines(engines); err != nil {
		s.observer().ObserveRun(ResultInvalid, 0)
		return nil, err
	}

	start := time.Now()
	runID := s.newID()
	log := s.logger().With("run_id", runID, "target", target)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "scan.run", trace.WithAttributes(
		attribute.String("scan.run_id", runID),
		attribute.String("scan.target", string(target)),
		attribute.Int("scan.engines", len(engines)),
	))
	defer span.End()

	log.Info("scan started", "engines", len(engines), "sequential", s.Sequential)
	results := s.runEngines(ctx, target, engines)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		s.observer().ObserveRun(ResultCancelled, time.Since(start))
		log.Warn("scan cancelled, nothing persisted", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}

	outcomes := make(map[domain.Engine]domain.EngineOutcome, len(engines))
	for i, cfg := range engines {
		o := s.checkOutcome(cfg, results[i].Outcome)
		if o.Status == domain.StatusOK && s.Artifacts != nil && len(results[i].Raw) > 0 {
			o.ArtifactURL = s.archive(ctx, target, runID, cfg.Name, results[i])
		}
		outcomes[cfg.Name] = o
	}

	rec := &domain.Record{
		RunID:     runID,
		Target:    target,
		Outcomes:  outcomes,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	if err := s.Store.Append(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		s.observer().ObserveRun(ResultFailed, time.Since(start))
		log.Error("scan record not persisted", "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrOrchestration, err)
	}

	if s.Events != nil {
		if err := s.Events.PublishCompleted(ctx, rec); err != nil {
			log.Warn("publish scan completed failed", "error", err)
		}
	}

	counts := rec.Counts()
	s.observer().ObserveRun(ResultOK, time.Since(start))
	log.Info("scan finished",
		"failed_engines", rec.Failures(),
		"findings", counts.Total,
		"critical", counts.Critical,
		"high", counts.High,
		"duration_ms", time.Since(start).Milliseconds())
	return rec, nil
}

func checkEngines(engines []domain.EngineConfig) error {
	seen := make(map[domain.Engine]bool, len(engines))
	for _, e := range engines {
		if e.Name == "" {
			return fmt.Errorf("%w: engine without name", domain.ErrValidation)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: engine %q configured twice", domain.ErrValidation, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// runEngines returns one result per engine, index-aligned with engines.
func (s *Service) runEngines(ctx context.Context, target domain.Target, engines []domain.EngineConfig) []domain.RunResult {
	results := make([]domain.RunResult, len(engines))
	if s.Sequential {
		for i, cfg := range engines {
			results[i] = s.runOne(ctx, target, cfg)
		}
		return results
	}

	var wg sync.WaitGroup
	for i, cfg := range engines {
		wg.Add(1)
		go func(i int, cfg domain.EngineConfig) {
			defer wg.Done()
			results[i] = s.runOne(ctx, target, cfg)
		}(i, cfg)
	}
	wg.Wait()
	return results
}

func (s *Service) runOne(ctx context.Context, target domain.Target, cfg domain.EngineConfig) domain.RunResult {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scan.engine",
		trace.WithAttributes(attribute.String("scan.engine", string(cfg.Name))))
	defer span.End()

	start := time.Now()
	res := s.Runner.Run(ctx, target, cfg)
	o := res.Outcome

	span.SetAttributes(attribute.String("scan.status", string(o.Status)))
	if o.Status == domain.StatusError {
		span.SetStatus(codes.Error, o.ErrorDetail)
		s.logger().Warn("engine failed", "engine", cfg.Name, "target", target, "detail", o.ErrorDetail)
	}
	s.observer().ObserveEngine(string(cfg.Name), string(o.Status), o.Degraded(), time.Since(start))
	return res
}

// checkOutcome makes sure the map entry for cfg is a valid outcome for cfg.
func (s *Service) checkOutcome(cfg domain.EngineConfig, o domain.EngineOutcome) domain.EngineOutcome {
	if o.Engine == "" {
		o.Engine = cfg.Name
	}
	if o.Engine != cfg.Name {
		return domain.Failed(cfg.Name, o.Format, fmt.Sprintf("runner reported engine %q", o.Engine))
	}
	if err := o.Validate(); err != nil {
		return domain.Failed(cfg.Name, o.Format, "invalid outcome: "+err.Error())
	}
	return o
}

func (s *Service) archive(ctx context.Context, target domain.Target, runID string, engine domain.Engine, res domain.RunResult) string {
	ext := res.RawFormat
	if ext == "" || ext == string(domain.FormatText) {
		ext = "txt"
	}
	key := fmt.Sprintf("%s/%s/%s.%s", target.Host(), runID, engine, ext)
	url, err := s.Artifacts.Archive(ctx, key, contentType(ext), res.Raw)
	if err != nil {
		s.logger().Warn("archive raw output failed", "engine", engine, "key", key, "error", err)
		return ""
	}
	return url
}

func contentType(ext string) string {
	switch ext {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Latest returns the most recent record for raw.
func (s *Service) Latest(ctx context.Context, raw string) (*domain.Record, error) {
	target, err := domain.ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	return s.Store.Latest(ctx, target)
}

// History returns up to limit records for raw, newest first.
func (s *Service) History(ctx context.Context, raw string, limit int) ([]*domain.Record, error) {
	target, err := domain.ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	return s.Store.History(ctx, target, domain.ClampLimit(limit))
}

// Get ambil 1 record by run id
func (s *Service) Get(ctx context.Context, runID string) (*domain.Record, error) {
	if _, err := uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: run id %q", domain.ErrValidation, runID)
	}
	return s.Store.Get(ctx, runID)
}

// IsCancelled reports whether err came from a cancelled run or request.
func IsCancelled(err error) bool {
	return errors.Is(err, domain.ErrCancelled) || errors.Is(err, context.Canceled)
}
