// Package postgres persists matched thesis records to Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/thesis-crawler/internal/crawler"
)

const defaultTable = "theses"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RecordStoreConfig controls the Postgres connection pool used for record rows.
type RecordStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes one row per record. It implements crawler.RecordSink.
type RecordStore struct {
	pool  txPool
	table string
	runID string
	ids   crawler.IDGenerator
	clock crawler.Clock
}

// NewRecordStore connects to Postgres using cfg.
func NewRecordStore(
	ctx context.Context,
	cfg RecordStoreConfig,
	runID string,
	ids crawler.IDGenerator,
	clock crawler.Clock,
) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRecordStoreWithPool(pool, cfg.Table, runID, ids, clock)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewRecordStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRecordStoreWithPool(
	pool txPool,
	table string,
	runID string,
	ids crawler.IDGenerator,
	clock crawler.Clock,
) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table, runID: runID, ids: ids, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the records table when it does not exist.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          uuid PRIMARY KEY,
	run_id      text NOT NULL,
	crawled_at  timestamptz NOT NULL,
	url         text NOT NULL,
	query       text NOT NULL,
	keywords    text[] NOT NULL,
	title       text,
	date        text,
	author      text,
	advisor     text,
	abstract    text,
	pdf_url     text,
	doi         text
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Save inserts every record in one transaction. Nothing is written when any
// insert fails.
func (s *RecordStore) Save(ctx context.Context, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	run_id,
	crawled_at,
	url,
	query,
	keywords,
	title,
	date,
	author,
	advisor,
	abstract,
	pdf_url,
	doi
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	crawledAt := s.clock.Now()
	for _, rec := range records {
		id, err := s.ids.NewID()
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record id: %w", err)
		}
		keywords := rec.Keywords
		if keywords == nil {
			keywords = []string{}
		}
		args := []any{
			id,
			s.runID,
			crawledAt,
			rec.URL,
			rec.Query,
			keywords,
			nullable(rec.Title),
			nullable(rec.Date),
			nullable(rec.Author),
			nullable(rec.Advisor),
			nullable(rec.Abstract),
			nullable(rec.PDFURL),
			nullable(rec.DOI),
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("insert record %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
