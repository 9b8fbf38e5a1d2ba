// Package sink persists crawl records. Advertisements are upserted; images
// and phones are inserted once per advertisement.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	dbconfig "github.com/jonesrussell/nmls-crawler/internal/config/database"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// ErrInvalidConfig is returned by NewPostgres for a missing database or
// schema and table names.
var ErrInvalidConfig = errors.New("invalid sink configuration")

// ErrUnknownRecord is returned for a record type the sink does not store.
var ErrUnknownRecord = errors.New("unknown record type")

var advtColumns = []string{
	"id", "url", "title", "price", "date_update", "is_company", "contactname",
	"company", "region", "city", "address", "description", "advt_type", "cat",
	"source", "lat", "lon", "params", "date_posted", "is_active",
}

// Postgres writes records, one transaction per record, through a single
// writer.
type Postgres struct {
	db         *sqlx.DB
	logger     logger.Logger
	searchPath string
	schema     string
	tables     tables
	advtSQL    string
	imageSQL   string
	phoneSQL   string
	mu         sync.Mutex
}

type tables struct {
	advt, images, phones string
}

// NewPostgres creates a Postgres sink over db using the schema and table
// names in cfg.
func NewPostgres(db *sqlx.DB, cfg *dbconfig.Config, log logger.Logger) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is nil", ErrInvalidConfig)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	for name, v := range map[string]string{
		"schema":       cfg.Schema,
		"advt_table":   cfg.AdvtTable,
		"images_table": cfg.ImagesTable,
		"phones_table": cfg.PhonesTable,
	} {
		if strings.TrimSpace(v) == "" {
			return nil, fmt.Errorf("%w: %s is empty", ErrInvalidConfig, name)
		}
	}
	if log == nil {
		log = logger.NewNop()
	}

	t := tables{
		advt:   pq.QuoteIdentifier(cfg.AdvtTable),
		images: pq.QuoteIdentifier(cfg.ImagesTable),
		phones: pq.QuoteIdentifier(cfg.PhonesTable),
	}
	return &Postgres{
		db:         db,
		logger:     log.With(logger.Component("sink")),
		searchPath: "SET LOCAL search_path TO " + pq.QuoteIdentifier(cfg.Schema) + ", public",
		schema:     pq.QuoteIdentifier(cfg.Schema),
		tables:     t,
		advtSQL:    upsertAdvtSQL(t.advt),
		imageSQL: `INSERT INTO ` + t.images + ` (advt_id, url, date_update)
VALUES (:advt_id, :url, :date_update)
ON CONFLICT (advt_id, url) DO NOTHING`,
		phoneSQL: `INSERT INTO ` + t.phones + ` (advt_id, phone, is_fake, date_update)
VALUES (:advt_id, :phone, :is_fake, :date_update)
ON CONFLICT (advt_id, phone) DO NOTHING`,
	}, nil
}

func upsertAdvtSQL(table string) string {
	named := make([]string, len(advtColumns))
	var updates []string
	for i, col := range advtColumns {
		named[i] = ":" + col
		if col != "id" {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}
	return `INSERT INTO ` + table + ` (` + strings.Join(advtColumns, ", ") + `)
VALUES (` + strings.Join(named, ", ") + `)
ON CONFLICT (id) DO UPDATE SET ` + strings.Join(updates, ", ")
}

// Write stores rec in its own transaction. On failure the transaction is
// rolled back, the error is logged with the record kind and key, and
// returned.
func (p *Postgres) Write(ctx context.Context, rec domain.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.write(ctx, rec); err != nil {
		p.logger.Error("Failed to write record",
			logger.String("kind", string(rec.Kind())),
			logger.String("key", rec.Key()),
			logger.Err(err),
		)
		return err
	}
	return nil
}

func (p *Postgres) write(ctx context.Context, rec domain.Record) (err error) {
	query, err := p.queryFor(rec)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("failed to roll back: %w", rbErr))
			}
		}
	}()

	if _, err = tx.ExecContext(ctx, p.searchPath); err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}
	if _, err = tx.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to write %s: %w", rec.Kind(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (p *Postgres) queryFor(rec domain.Record) (string, error) {
	switch rec.(type) {
	case *domain.Advertisement:
		return p.advtSQL, nil
	case *domain.Image:
		return p.imageSQL, nil
	case *domain.PhoneNumber:
		return p.phoneSQL, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownRecord, rec)
	}
}

// EnsureSchema creates the schema and tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + p.schema,
		`CREATE TABLE IF NOT EXISTS ` + p.schema + `.` + p.tables.advt + ` (
	id          CHAR(40) PRIMARY KEY,
	url         TEXT NOT NULL,
	title       TEXT,
	price       BIGINT NOT NULL DEFAULT 0,
	date_update TIMESTAMPTZ NOT NULL,
	is_company  BOOLEAN NOT NULL DEFAULT FALSE,
	contactname TEXT,
	company     TEXT,
	region      TEXT,
	city        TEXT,
	address     TEXT,
	description TEXT,
	advt_type   INTEGER NOT NULL,
	cat         INTEGER NOT NULL,
	source      INTEGER NOT NULL,
	lat         DOUBLE PRECISION,
	lon         DOUBLE PRECISION,
	params      JSONB,
	date_posted TIMESTAMPTZ,
	is_active   BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`CREATE TABLE IF NOT EXISTS ` + p.schema + `.` + p.tables.images + ` (
	advt_id     CHAR(40) NOT NULL,
	url         TEXT NOT NULL,
	date_update TIMESTAMPTZ NOT NULL,
	UNIQUE (advt_id, url)
)`,
		`CREATE TABLE IF NOT EXISTS ` + p.schema + `.` + p.tables.phones + ` (
	advt_id     CHAR(40) NOT NULL,
	phone       BIGINT NOT NULL,
	is_fake     BOOLEAN NOT NULL DEFAULT FALSE,
	date_update TIMESTAMPTZ NOT NULL,
	UNIQUE (advt_id, phone)
)`,
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	p.logger.Info("Schema ready", logger.String("schema", p.schema))
	return nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
