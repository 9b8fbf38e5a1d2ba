package common

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/nmls-crawler/internal/archive"
	"github.com/jonesrussell/nmls-crawler/internal/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/database"
	"github.com/jonesrussell/nmls-crawler/internal/dateparse"
	"github.com/jonesrussell/nmls-crawler/internal/extract"
	"github.com/jonesrussell/nmls-crawler/internal/fetcher"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
	"github.com/jonesrussell/nmls-crawler/internal/metrics"
	"github.com/jonesrussell/nmls-crawler/internal/sink"
	"github.com/jonesrussell/nmls-crawler/internal/status"
)

// Runner owns the long-lived resources shared by crawl runs: the database,
// the sinks, the archiver and the metrics registry.
type Runner struct {
	deps     *CommandDeps
	db       *sqlx.DB
	postgres *sink.Postgres
	sink     crawler.RecordSink
	archiver *archive.Archiver
	registry *prometheus.Registry
	checks   map[string]status.Check
	current  atomic.Pointer[metrics.Metrics]
	fetcher  atomic.Pointer[fetcher.Fetcher]
}

// NewRunner connects to the database and builds the sinks.
func NewRunner(ctx context.Context, deps *CommandDeps) (*Runner, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config
	log := deps.Logger

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	pg, err := sink.NewPostgres(db, cfg.Database, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Runner{
		deps:     deps,
		db:       db,
		postgres: pg,
		sink:     pg,
		registry: prometheus.NewRegistry(),
		checks:   map[string]status.Check{"database": pg.Ping},
	}

	if cfg.Elasticsearch.Enabled {
		client, esErr := sink.NewElasticsearchClient(cfg.Elasticsearch)
		if esErr != nil {
			_ = db.Close()
			return nil, esErr
		}
		mirror := sink.NewElasticsearch(client, cfg.Elasticsearch.Index, log)
		r.sink = sink.NewFanout(pg, log, mirror)
		r.checks["elasticsearch"] = mirror.TestConnection
	}

	if cfg.Crawler.ArchiveHTML {
		a, archErr := archive.NewArchiver(cfg.MinIO, log)
		if archErr != nil {
			_ = db.Close()
			return nil, archErr
		}
		r.archiver = a
		r.checks["archive"] = a.HealthCheck
	}

	return r, nil
}

// Migrate creates the schema and tables.
func (r *Runner) Migrate(ctx context.Context) error {
	return r.postgres.EnsureSchema(ctx)
}

// Run performs one complete crawl and returns its counters.
func (r *Runner) Run(ctx context.Context) (metrics.Stats, error) {
	cfg := r.deps.Config
	runID := uuid.NewString()
	log := r.deps.Logger

	// Only the latest run's series stay on /metrics.
	m := metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"run_id": runID}, r.registry))
	if prev := r.current.Swap(m); prev != nil {
		prev.Unregister()
	}
	r.fetcher.Store(nil)

	dates := dateparse.New(dateparse.RussianMonths(), dateparse.WithLogger(log))
	deps := crawler.Deps{
		Config:    cfg.Crawler,
		Sink:      r.sink,
		Extractor: extract.New(dates, time.Now, log),
		Metrics:   m,
		Logger:    log,
		RunID:     runID,
	}
	if r.archiver != nil {
		deps.Archiver = r.archiver
	}

	c, err := crawler.New(deps)
	if err != nil {
		return metrics.Stats{}, err
	}
	f, err := fetcher.New(ctx, cfg.Crawler, c, log.With(logger.String(logger.KeyRunID, runID)))
	if err != nil {
		return metrics.Stats{}, err
	}
	c.SetFetcher(f)
	r.fetcher.Store(f)

	if err = c.Start(ctx); err != nil {
		return r.Snapshot(), err
	}
	c.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.Canceled) {
		return r.Snapshot(), fmt.Errorf("crawl interrupted: %w", ctxErr)
	}
	return r.Snapshot(), nil
}

// Snapshot returns the counters of the current or last run.
func (r *Runner) Snapshot() metrics.Stats {
	m := r.current.Load()
	if m == nil {
		return metrics.Stats{}
	}
	s := m.Snapshot()
	if f := r.fetcher.Load(); f != nil {
		s.ThrottleDelay = f.Delay()
	}
	return s
}

// StatusServer builds the status server over the runner's registry and
// health checks.
func (r *Runner) StatusServer() *status.Server {
	return status.NewServer(status.Deps{
		Config:   r.deps.Config.Server,
		Gatherer: r.registry,
		Stats:    r,
		Checks:   r.checks,
		Logger:   r.deps.Logger,
	})
}

// Close releases the database connection.
func (r *Runner) Close() error {
	return r.db.Close()
}
