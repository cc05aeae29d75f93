package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
	"github.com/bryanwahyu/webscan/internal/middleware"
)

// Scanner is the application surface the router serves.
type Scanner interface {
	Analyze(ctx context.Context, rawURL string) (*domain.Record, error)
	Latest(ctx context.Context, rawURL string) (*domain.Record, error)
	History(ctx context.Context, rawURL string, limit int) ([]*domain.Record, error)
	Get(ctx context.Context, runID string) (*domain.Record, error)
}

type Options struct {
	Logger  *slog.Logger
	Metrics *middleware.Metrics // nil disables /metrics

	APIKeys     map[string]string
	CORSOrigins []string
	RateRPS     float64
	RateBurst   int

	MaxBodyBytes        int64
	AllowPrivateTargets bool

	// Health runs on /health; Ready on /readyz.
	Health map[string]middleware.HealthChecker
	Ready  map[string]middleware.HealthChecker
}

type Router struct {
	scans  Scanner
	logger *slog.Logger
	opts   Options
}

func NewRouter(scans Scanner, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 64 << 10
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := &Router{scans: scans, logger: opts.Logger, opts: opts}
	mux := chi.NewRouter()

	mux.Use(chimw.RequestID)
	mux.Use(chimw.Recoverer)
	mux.Use(middleware.LoggingMiddleware(opts.Logger))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	mux.Use(middleware.RateLimitMiddleware(opts.RateRPS, opts.RateBurst))

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/readyz", middleware.HealthHandler(opts.Ready))
	mux.Get("/livez", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics.Handler())
	}

	mux.Route("/api/webscan", func(rt chi.Router) {
		rt.Post("/", r.wrap(r.handleAnalyze))
		rt.Get("/latest", r.wrap(r.handleLatest))
		rt.Get("/history", r.wrap(r.handleHistory))
		rt.Get("/runs/{id}", r.wrap(r.handleGet))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap maps error kinds onto status codes and writes {"error": "..."}.
func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			r.logger.ErrorContext(req.Context(), "request failed",
				"path", req.URL.Path, "status", status, "error", err)
		}
		writeJSON(w, status, map[string]string{"error": msg})
	}
}

func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, err.Error()
	// the record was appended; whatever broke the read-back, say so
	case errors.Is(err, domain.ErrStoreRead):
		return http.StatusBadGateway, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, domain.ErrCancelled.Error()
	case errors.Is(err, domain.ErrOrchestration), errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// POST /api/webscan
// Body: {"url": "<absolute http(s) url>"}
// Runs every configured engine synchronously and returns the stored record.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		URL string `json:"url"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.opts.MaxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", domain.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	if err := r.guard(body.URL); err != nil {
		return err
	}

	rec, err := r.scans.Analyze(req.Context(), body.URL)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// GET /api/webscan/latest?url=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	rec, err := r.scans.Latest(req.Context(), req.URL.Query().Get("url"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// GET /api/webscan/history?url=&limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"))
	if err != nil {
		return err
	}
	recs, err := r.scans.History(req.Context(), req.URL.Query().Get("url"), limit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []*domain.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
	return nil
}

// GET /api/webscan/runs/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateRunID(id); err != nil {
		return err
	}
	rec, err := r.scans.Get(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

func (r *Router) guard(rawURL string) error {
	if r.opts.AllowPrivateTargets {
		return nil
	}
	return middleware.ValidateURL(rawURL)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
