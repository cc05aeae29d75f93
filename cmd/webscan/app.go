package main

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"

	"github.com/bryanwahyu/webscan/internal/application"
	appscans "github.com/bryanwahyu/webscan/internal/application/scans"
	"github.com/bryanwahyu/webscan/internal/config"
	domain "github.com/bryanwahyu/webscan/internal/domain/scans"
	"github.com/bryanwahyu/webscan/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/webscan/internal/infra/db/mysql"
	"github.com/bryanwahyu/webscan/internal/infra/db/postgres"
	"github.com/bryanwahyu/webscan/internal/infra/events"
	"github.com/bryanwahyu/webscan/internal/infra/executor/process"
	minioStore "github.com/bryanwahyu/webscan/internal/infra/storage"
	"github.com/bryanwahyu/webscan/internal/infra/telemetry"
	"github.com/bryanwahyu/webscan/internal/middleware"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds every wired dependency of one process.
type app struct {
	store   domain.Store
	runner  *process.Runner
	service *appscans.Service
	metrics *middleware.Metrics

	closers []func(context.Context)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func (a *app) onClose(f func(context.Context)) {
	a.closers = append(a.closers, f)
}

// newApp connects the store and, when configured, the artifact archive,
// the event topic and the trace exporter.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{metrics: middleware.NewMetrics()}

	shutdown, err := telemetry.Setup(ctx, telemetry.Options{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     version,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func(ctx context.Context) {
		if err := shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	})

	store, err := openStore(ctx, cfg, a)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.store = store

	a.runner = process.NewRunner(cfg.Scan.TempDir, logger)
	a.runner.Docker = cfg.Scan.Docker

	a.service = &appscans.Service{
		Store:      store,
		Runner:     a.runner,
		Engines:    cfg.EngineConfigs(),
		Sequential: cfg.Scan.Sequential,
		Observer:   a.metrics,
		Clock:      application.SystemClock{},
		Logger:     logger,
	}

	if cfg.Minio.Enabled {
		archive, err := minioStore.New(ctx, minioStore.Options{
			Endpoint:  cfg.Minio.Endpoint,
			Region:    cfg.Minio.Region,
			Bucket:    cfg.Minio.BucketName,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			UseSSL:    cfg.Minio.UseSSL,
		})
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("minio init: %w", err)
		}
		a.service.Artifacts = archive
	}

	a.service.Events = events.NoopPublisher{}
	if cfg.PubSub.Topic != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		pub := events.NewPubSubPublisher(client.Topic(cfg.PubSub.Topic))
		a.onClose(func(context.Context) {
			pub.Stop()
			client.Close()
		})
		a.service.Events = pub
	}

	logger.Info("app ready",
		"driver", cfg.Database.Driver,
		"engines", len(a.service.Engines),
		"sequential", cfg.Scan.Sequential,
		"minio", cfg.Minio.Enabled,
		"pubsub", cfg.PubSub.Topic != "",
		"tracing", cfg.Telemetry.Endpoint != "")
	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, a *app) (domain.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverMySQL:
		db, err := mysqlp.Connect(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		a.onClose(func(context.Context) { db.Close() })
		return mysqlp.NewScanRepository(db, cfg.Database.Table), nil
	default:
		pool, err := postgres.NewDB(ctx, cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		a.onClose(func(context.Context) { pool.Close() })
		return postgres.NewScanRepository(pool, cfg.Database.Table), nil
	}
}

// engineCheckers reports each configured engine binary as a health check.
func (a *app) engineCheckers() map[string]middleware.HealthChecker {
	out := make(map[string]middleware.HealthChecker, len(a.service.Engines))
	for _, e := range a.service.Engines {
		out["engine:"+string(e.Name)] = middleware.CheckerFunc(func(context.Context) error {
			return a.runner.Check(e)
		})
	}
	return out
}
